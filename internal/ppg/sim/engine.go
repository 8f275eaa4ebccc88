// Package sim schedules the simulated signal chain. An Engine owns the
// generator, the per-channel buffers and filters, and two periodic tasks: a
// fast physics tick that produces samples and a slow algorithm tick that
// evaluates the selected estimator on a snapshot of the buffers.
package sim

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/pulse.lab/internal/monitoring"
	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/ppg/estimate"
	"github.com/banshee-data/pulse.lab/internal/timeutil"
)

// channelState is the signal chain of one wavelength.
type channelState struct {
	raw      *ppg.RingBuffer[float64]
	filtered *ppg.RingBuffer[float64]
	filter   *ppg.AnalogFilter
	// filteredSum tracks the sum of filtered so the running DC is O(1).
	filteredSum float64
}

func (c *channelState) reset() {
	c.raw.Reset()
	c.filtered.Reset()
	c.filter.Reset()
	c.filteredSum = 0
}

// Engine is one independent simulation. Multiple engines may run side by
// side; they share nothing.
type Engine struct {
	cfg    Config
	clock  timeutil.Clock
	logger *log.Logger
	spo2   *estimate.SpO2Estimator

	// mu guards the signal chain. The physics tick is its only writer.
	mu           sync.Mutex
	gen          *ppg.Generator
	channels     [ppg.NumChannels]*channelState
	points       *ppg.RingBuffer[ppg.ProcessedPoint]
	physicsTicks uint64

	// ctrlMu guards the configuration-layer inputs. When both are held, mu
	// is taken first.
	ctrlMu  sync.RWMutex
	params  ppg.Params
	emitter ppg.Emitter
	algo    estimate.Algorithm

	readoutMu  sync.RWMutex
	latest     Readout
	algoTicks  uint64
	lastStatus estimate.Status

	sinkMu sync.RWMutex
	sinks  []Sink

	runMu   sync.Mutex
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates cfg, fills in defaults and returns a stopped engine.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("sim config: %w", err)
	}
	algo, err := estimate.New(cfg.Algorithm, cfg.Thresholds, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("sim config: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		spo2:    estimate.NewSpO2Estimator(cfg.Thresholds),
		gen:     ppg.NewGenerator(cfg.SampleRate, cfg.RespirationDepth, cfg.Seed),
		points:  ppg.NewRingBuffer[ppg.ProcessedPoint](cfg.BufferCapacity),
		params:  cfg.Params,
		emitter: cfg.Emitter,
		algo:    algo,
	}
	for c := range e.channels {
		e.channels[c] = &channelState{
			raw:      ppg.NewRingBuffer[float64](cfg.BufferCapacity),
			filtered: ppg.NewRingBuffer[float64](cfg.BufferCapacity),
			filter:   ppg.NewAnalogFilter(cfg.FilterMode, cfg.SampleRate),
		}
	}
	e.latest = e.emptyReadout()
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Start launches the physics, algorithm and sink delivery tasks. Calling
// Start on a running engine is a no-op. The tasks end when ctx is cancelled
// or Stop is called; either way buffers and filters are cleared once they
// have exited.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.running {
		if e.runCtx.Err() == nil {
			return nil
		}
		// The parent context ended; collect the old tasks before restarting.
		e.haltLocked()
		e.clearState()
	}

	runCtx, cancel := context.WithCancel(ctx)
	physics := e.clock.NewTicker(e.cfg.PhysicsTick)
	algorithm := e.clock.NewTicker(e.cfg.AlgorithmTick)
	queue := make(chan Readout, e.cfg.SinkQueue)

	e.runCtx = runCtx
	e.cancel = cancel
	e.running = true

	e.wg.Add(3)
	go e.loop(runCtx, physics, e.PhysicsTick)
	go e.loop(runCtx, algorithm, func() { e.algorithmTick(queue) })
	go e.deliverLoop(runCtx, queue)
	go e.teardownOnCancel(ctx, runCtx)

	e.logger.Printf("sim: started physics=%v algorithm=%v rate=%.0fHz samples/tick=%d",
		e.cfg.PhysicsTick, e.cfg.AlgorithmTick, e.cfg.SampleRate, e.cfg.SamplesPerTick())
	return nil
}

func (e *Engine) loop(ctx context.Context, ticker timeutil.Ticker, fn func()) {
	defer e.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			fn()
		}
	}
}

// teardownOnCancel clears state after the parent context of run ends. Stop
// and Reset clear state themselves and are left alone.
func (e *Engine) teardownOnCancel(parent, run context.Context) {
	<-run.Done()
	if parent.Err() == nil {
		return
	}
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running || e.runCtx != run {
		return
	}
	e.haltLocked()
	e.clearState()
	e.logger.Printf("sim: context ended, state cleared")
}

func (e *Engine) deliverLoop(ctx context.Context, queue <-chan Readout) {
	defer e.wg.Done()
	for {
		select {
		case r := <-queue:
			e.deliver(r)
		case <-ctx.Done():
			for {
				select {
				case r := <-queue:
					e.deliver(r)
				default:
					return
				}
			}
		}
	}
}

// Running reports whether the periodic tasks are active.
func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running && e.runCtx.Err() == nil
}

// Stop cancels both periodic tasks, waits for them to exit and clears every
// buffer and filter. It is safe to call on a stopped engine.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running {
		return
	}
	e.haltLocked()
	e.clearState()
	e.logger.Printf("sim: stopped")
}

// haltLocked cancels and joins the tasks. runMu must be held.
func (e *Engine) haltLocked() {
	e.cancel()
	e.wg.Wait()
	e.running = false
}

// Reset stops the engine, clears all state and restores the default
// parameters. Emitter and algorithm selections are kept.
func (e *Engine) Reset() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		e.haltLocked()
	}
	e.clearState()

	e.ctrlMu.Lock()
	e.params = ppg.DefaultParams()
	e.ctrlMu.Unlock()
	e.logger.Printf("sim: reset to default parameters")
}

func (e *Engine) clearState() {
	e.mu.Lock()
	for _, c := range e.channels {
		c.reset()
	}
	e.points.Reset()
	e.gen.Reseed(e.cfg.Seed)
	e.physicsTicks = 0
	e.mu.Unlock()

	e.ctrlMu.RLock()
	e.algo.Reset()
	e.ctrlMu.RUnlock()

	e.readoutMu.Lock()
	e.algoTicks = 0
	e.lastStatus = estimate.StatusScanning
	e.latest = e.emptyReadout()
	e.readoutMu.Unlock()
}

func (e *Engine) emptyReadout() Readout {
	e.ctrlMu.RLock()
	defer e.ctrlMu.RUnlock()
	return Readout{
		Timestamp: e.clock.Now(),
		Algorithm: e.algo.Kind(),
		Emitter:   e.emitter,
		Params:    e.params,
		Result:    estimate.Result{Status: estimate.StatusScanning},
	}
}

// PhysicsTick generates one tick worth of samples and pushes them through the
// filters into the buffers.
func (e *Engine) PhysicsTick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ctrlMu.RLock()
	params, emitter := e.params, e.emitter
	e.ctrlMu.RUnlock()

	for i := 0; i < e.cfg.SamplesPerTick(); i++ {
		e.pushSampleLocked(e.gen.Next(params, emitter), params, emitter)
	}
	e.physicsTicks++
}

func (e *Engine) pushSampleLocked(s ppg.Sample, params ppg.Params, emitter ppg.Emitter) {
	var filtered [ppg.NumChannels]float64
	var dc [ppg.NumChannels]float64
	for _, c := range emitter.Channels() {
		st := e.channels[c]
		if st.raw.IsEmpty() {
			st.filter.Reset()
		}
		st.raw.Push(s.Value(c))

		f := st.filter.Apply(s.Value(c), params.FilterCutoffHz)
		old, evicted := st.filtered.Push(f)
		st.filteredSum += f
		if evicted {
			st.filteredSum -= old
		}
		filtered[c] = f
		dc[c] = st.filteredSum / float64(st.filtered.Len())
	}

	primary := emitter.Primary()
	e.points.Push(ppg.ProcessedPoint{
		Time:     s.Time,
		Raw:      s.Value(primary),
		RawGreen: s.Value(ppg.ChannelGreen),
		RawRed:   s.Value(ppg.ChannelRed),
		RawIR:    s.Value(ppg.ChannelIR),
		Filtered: filtered[primary],
		DC:       dc[primary],
		AC:       filtered[primary] - dc[primary],
	})
}

// snapshot copies the buffers the estimators read. It holds mu only for the
// copy.
func (e *Engine) snapshot() (estimate.Snapshot, ppg.Params, estimate.Algorithm) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ctrlMu.RLock()
	params, emitter, algo := e.params, e.emitter, e.algo
	e.ctrlMu.RUnlock()

	primary := e.channels[emitter.Primary()]
	snap := estimate.Snapshot{
		SampleRate: e.cfg.SampleRate,
		Emitter:    emitter,
		Raw:        primary.raw.Snapshot(),
		Filtered:   primary.filtered.Snapshot(),
	}
	if emitter.SupportsSpO2() {
		snap.Red = e.channels[ppg.ChannelRed].filtered.Snapshot()
		snap.IR = e.channels[ppg.ChannelIR].filtered.Snapshot()
	}
	return snap, params, algo
}

// AlgorithmTick evaluates the selected algorithm, SpO2 and quality on a fresh
// snapshot, stores the readout and hands it to every sink on the caller's
// goroutine.
func (e *Engine) AlgorithmTick() Readout {
	return e.algorithmTick(nil)
}

// algorithmTick queues the readout for the delivery task when queue is set,
// dropping it if the queue is full.
func (e *Engine) algorithmTick(queue chan<- Readout) Readout {
	snap, params, algo := e.snapshot()

	start := time.Now()
	res := algo.Evaluate(snap, params)
	spo2 := e.spo2.Evaluate(snap)
	evalDuration := time.Since(start)

	r := Readout{
		Timestamp:    e.clock.Now(),
		Algorithm:    algo.Kind(),
		Emitter:      snap.Emitter,
		Params:       params,
		Result:       res,
		SpO2:         spo2,
		SNR:          estimate.ConfiguredSNR(params),
		MeasuredSNR:  estimate.MeasuredSNR(snap.Raw, snap.Filtered),
		Samples:      snap.Len(),
		EvalDuration: evalDuration,
	}

	e.readoutMu.Lock()
	e.algoTicks++
	r.Tick = e.algoTicks
	prev := e.lastStatus
	e.lastStatus = res.Status
	e.latest = r
	e.readoutMu.Unlock()

	if prev != res.Status {
		e.logger.Printf("sim: %s status %s -> %s", algo.Name(), prev, res.Status)
	}
	monitoring.Debugf("sim: tick=%d algo=%s samples=%d eval=%v", r.Tick, r.Algorithm, r.Samples, evalDuration)

	if queue == nil {
		e.deliver(r)
		return r
	}
	select {
	case queue <- r:
	default:
		e.logger.Printf("sim: sink queue full, dropped readout %d", r.Tick)
	}
	return r
}

func (e *Engine) deliver(r Readout) {
	e.sinkMu.RLock()
	sinks := append([]Sink(nil), e.sinks...)
	e.sinkMu.RUnlock()

	for _, s := range sinks {
		if err := s.RecordReadout(r); err != nil {
			e.logger.Printf("sim: sink error on readout %d: %v", r.Tick, err)
		}
	}
}

// AddSink registers s to receive every subsequent readout.
func (e *Engine) AddSink(s Sink) {
	if s == nil {
		return
	}
	e.sinkMu.Lock()
	e.sinks = append(e.sinks, s)
	e.sinkMu.Unlock()
}

// SetParams replaces the simulation parameters after validating them.
func (e *Engine) SetParams(p ppg.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.ctrlMu.Lock()
	e.params = p
	e.ctrlMu.Unlock()
	return nil
}

// Params returns the current simulation parameters.
func (e *Engine) Params() ppg.Params {
	e.ctrlMu.RLock()
	defer e.ctrlMu.RUnlock()
	return e.params
}

// SetEmitter switches the emitter. Buffers and filters are cleared because
// the previous channel data no longer describes the device.
func (e *Engine) SetEmitter(em ppg.Emitter) error {
	if _, err := ppg.ParseEmitter(em.String()); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ctrlMu.Lock()
	changed := e.emitter != em
	e.emitter = em
	e.ctrlMu.Unlock()

	if changed {
		for _, c := range e.channels {
			c.reset()
		}
		e.points.Reset()
		e.logger.Printf("sim: emitter set to %s", em)
	}
	return nil
}

// Emitter returns the current emitter selection.
func (e *Engine) Emitter() ppg.Emitter {
	e.ctrlMu.RLock()
	defer e.ctrlMu.RUnlock()
	return e.emitter
}

// SetAlgorithm swaps the estimator used by subsequent algorithm ticks.
func (e *Engine) SetAlgorithm(kind estimate.Kind) error {
	algo, err := estimate.New(kind, e.cfg.Thresholds, e.cfg.Seed)
	if err != nil {
		return err
	}
	e.ctrlMu.Lock()
	changed := e.algo.Kind() != kind
	e.algo = algo
	e.ctrlMu.Unlock()
	if changed {
		e.logger.Printf("sim: algorithm set to %s (%s)", kind, algo.Name())
	}
	return nil
}

// Algorithm returns the selected algorithm kind.
func (e *Engine) Algorithm() estimate.Kind {
	e.ctrlMu.RLock()
	defer e.ctrlMu.RUnlock()
	return e.algo.Kind()
}

// Latest returns the most recent readout.
func (e *Engine) Latest() Readout {
	e.readoutMu.RLock()
	defer e.readoutMu.RUnlock()
	return e.latest
}

// Points returns the processed point history, oldest first.
func (e *Engine) Points() []ppg.ProcessedPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.points.Snapshot()
}

// PhysicsTicks returns the number of physics ticks since the last reset.
func (e *Engine) PhysicsTicks() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.physicsTicks
}
