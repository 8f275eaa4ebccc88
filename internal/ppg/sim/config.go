package sim

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/banshee-data/pulse.lab/internal/config"
	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/ppg/estimate"
	"github.com/banshee-data/pulse.lab/internal/timeutil"
)

// Config describes one engine instance.
type Config struct {
	// SampleRate is the simulated front-end rate in Hz. It sets the time step
	// of the generator and the lag scale of the estimators.
	SampleRate float64
	// PhysicsTick is the wall-clock period of the sample generator.
	PhysicsTick time.Duration
	// AlgorithmTick is the wall-clock period of the estimators.
	AlgorithmTick time.Duration
	// BufferCapacity bounds every per-channel buffer and the point history.
	BufferCapacity int

	FilterMode       ppg.FilterMode
	RespirationDepth float64
	Thresholds       estimate.Thresholds

	// Seed drives generator noise and algorithm jitter.
	Seed int64

	Params    ppg.Params
	Emitter   ppg.Emitter
	Algorithm estimate.Kind

	// Clock is optional; nil uses the real clock.
	Clock timeutil.Clock
	// Logger is optional; nil uses log.Default().
	Logger *log.Logger
	// SinkQueue is the number of readouts buffered for sinks while running.
	SinkQueue int
}

// DefaultConfig returns the canonical engine setup: 50 Hz sampling, a 20ms
// physics tick, a 500ms algorithm tick and 200-sample buffers.
func DefaultConfig() Config {
	return Config{
		SampleRate:       ppg.DefaultSampleRate,
		PhysicsTick:      20 * time.Millisecond,
		AlgorithmTick:    500 * time.Millisecond,
		BufferCapacity:   200,
		FilterMode:       ppg.FilterEMA,
		RespirationDepth: 0.05,
		Thresholds:       estimate.DefaultThresholds(),
		Seed:             1,
		Params:           ppg.DefaultParams(),
		Emitter:          ppg.EmitterMulti,
		Algorithm:        estimate.KindAutocorrelator,
		SinkQueue:        64,
	}
}

// ConfigFromSimConfig maps a loaded tuning file onto an engine config.
func ConfigFromSimConfig(c *config.SimConfig) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}
	cfg.SampleRate = c.GetSampleRateHz()
	cfg.PhysicsTick = c.GetPhysicsTick()
	cfg.AlgorithmTick = c.GetAlgorithmTick()
	cfg.BufferCapacity = c.GetBufferCapacity()
	cfg.FilterMode = c.GetFilterMode()
	cfg.RespirationDepth = c.GetRespirationDepth()
	cfg.Thresholds = c.GetThresholds()
	cfg.Seed = c.GetSeed()
	cfg.Params = c.GetParams()
	cfg.Emitter = c.GetEmitter()
	cfg.Algorithm = c.GetAlgorithm()
	return cfg
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if !(c.SampleRate > 0) || math.IsInf(c.SampleRate, 0) {
		c.SampleRate = def.SampleRate
	}
	if c.PhysicsTick <= 0 {
		c.PhysicsTick = def.PhysicsTick
	}
	if c.AlgorithmTick <= 0 {
		c.AlgorithmTick = def.AlgorithmTick
	}
	if c.BufferCapacity < 2 {
		c.BufferCapacity = def.BufferCapacity
	}
	if c.FilterMode == "" {
		c.FilterMode = def.FilterMode
	}
	if c.Thresholds == (estimate.Thresholds{}) {
		c.Thresholds = def.Thresholds
	}
	if c.Params == (ppg.Params{}) {
		c.Params = def.Params
	}
	if c.SinkQueue <= 0 {
		c.SinkQueue = def.SinkQueue
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

func (c Config) validate() error {
	if _, err := ppg.ParseFilterMode(string(c.FilterMode)); err != nil {
		return err
	}
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("initial params: %w", err)
	}
	if c.Thresholds.MinSamples > c.BufferCapacity {
		return fmt.Errorf("min samples %d exceeds buffer capacity %d", c.Thresholds.MinSamples, c.BufferCapacity)
	}
	return nil
}

// SamplesPerTick is the number of samples generated per physics tick so that
// simulated time keeps pace with the sample rate. It is at least one.
func (c Config) SamplesPerTick() int {
	n := int(math.Round(c.SampleRate * c.PhysicsTick.Seconds()))
	if n < 1 {
		return 1
	}
	return n
}
