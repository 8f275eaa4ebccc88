package main

import (
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pulse.lab/internal/config"
	"github.com/banshee-data/pulse.lab/internal/monitoring"
	"github.com/banshee-data/pulse.lab/internal/plot"
	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/ppg/estimate"
	"github.com/banshee-data/pulse.lab/internal/ppg/sim"
)

// Scenario is one seeded simulation shared by every algorithm run.
type Scenario struct {
	Sim      sim.Config
	Duration time.Duration
	// PlotDir receives PNG plots when non-empty.
	PlotDir string
}

// ComparisonResult holds the results of algorithm comparison.
type ComparisonResult struct {
	Emitter          ppg.Emitter `json:"emitter"`
	Params           ppg.Params  `json:"params"`
	Seed             int64       `json:"seed"`
	SimulatedSecs    float64     `json:"simulated_secs"`
	ProcessingTimeMs int64       `json:"processing_time_ms"`
	PerAlgorithm     []AlgoStats `json:"per_algorithm"`
	Plots            []string    `json:"plots,omitempty"`
}

// AlgoStats holds per-algorithm statistics.
type AlgoStats struct {
	Algorithm        estimate.Kind  `json:"algorithm"`
	Name             string         `json:"name"`
	Ticks            int            `json:"ticks"`
	EstimateTicks    int            `json:"estimate_ticks"`
	LockRatio        float64        `json:"lock_ratio"`
	MeanAbsErrorBPM  float64        `json:"mean_abs_error_bpm"`
	MaxAbsErrorBPM   int            `json:"max_abs_error_bpm"`
	SpO2Ticks        int            `json:"spo2_ticks"`
	MeanAbsErrorSpO2 float64        `json:"mean_abs_error_spo2"`
	AvgEvalUs        float64        `json:"avg_eval_us"`
	Statuses         map[string]int `json:"statuses"`
}

func newScenario(cfg Config, simCfg *config.SimConfig) (Scenario, error) {
	c := sim.ConfigFromSimConfig(simCfg)
	c.Seed = cfg.Seed
	if cfg.Emitter != "" {
		em, err := ppg.ParseEmitter(cfg.Emitter)
		if err != nil {
			return Scenario{}, err
		}
		c.Emitter = em
	}
	if err := cfg.Params.Validate(); err != nil {
		return Scenario{}, err
	}
	c.Params = cfg.Params
	if !cfg.Verbose {
		c.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Duration <= 0 {
		return Scenario{}, fmt.Errorf("duration must be positive, got %v", cfg.Duration)
	}

	s := Scenario{Sim: c, Duration: cfg.Duration}
	if cfg.Plots {
		s.PlotDir = cfg.OutputDir
		if s.PlotDir == "" {
			s.PlotDir = "."
		}
	}
	return s, nil
}

// runComparison replays the scenario once per algorithm, ticking the engine
// by hand as fast as possible.
func runComparison(s Scenario) (*ComparisonResult, error) {
	start := time.Now()
	physicsTicks := int(s.Duration / s.Sim.PhysicsTick)
	perAlgo := int(math.Round(float64(s.Sim.AlgorithmTick) / float64(s.Sim.PhysicsTick)))
	if perAlgo < 1 {
		perAlgo = 1
	}

	result := &ComparisonResult{
		Emitter:       s.Sim.Emitter,
		Params:        s.Sim.Params,
		Seed:          s.Sim.Seed,
		SimulatedSecs: (time.Duration(physicsTicks) * s.Sim.PhysicsTick).Seconds(),
	}

	for i, kind := range estimate.Kinds {
		c := s.Sim
		c.Algorithm = kind
		e, err := sim.New(c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}

		var readouts []sim.Readout
		e.AddSink(sim.SinkFunc(func(r sim.Readout) error {
			readouts = append(readouts, r)
			return nil
		}))

		var plotter *plot.WaveformPlotter
		if s.PlotDir != "" {
			if plotter, err = plot.NewWaveformPlotter(s.PlotDir); err != nil {
				return nil, err
			}
			e.AddSink(plotter)
		}

		for t := 1; t <= physicsTicks; t++ {
			e.PhysicsTick()
			if t%perAlgo == 0 {
				e.AlgorithmTick()
			}
		}

		stats := summarise(kind, readouts)
		monitoring.Debugf("algo-compare: %s lock=%.2f mae=%.2f", kind, stats.LockRatio, stats.MeanAbsErrorBPM)
		result.PerAlgorithm = append(result.PerAlgorithm, stats)

		if plotter != nil {
			if i == 0 {
				path, err := plotter.SavePoints(e.Points(), c.Emitter, "waveform.png")
				if err != nil {
					return nil, err
				}
				result.Plots = append(result.Plots, path)
			}
			title := fmt.Sprintf("%s: %d bpm target, %s", stats.Name, c.Params.HeartRateBPM, c.Emitter)
			path, err := plotter.SaveEstimates(title, fmt.Sprintf("estimates_%s.png", kind))
			if err != nil {
				return nil, err
			}
			result.Plots = append(result.Plots, path)
		}
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

func summarise(kind estimate.Kind, readouts []sim.Readout) AlgoStats {
	name := kind.String()
	if a, err := estimate.New(kind, estimate.DefaultThresholds(), 0); err == nil {
		name = a.Name()
	}
	stats := AlgoStats{
		Algorithm: kind,
		Name:      name,
		Ticks:     len(readouts),
		Statuses:  make(map[string]int),
	}

	var hrErr, spo2Err []float64
	var evalUs float64
	for _, r := range readouts {
		stats.Statuses[r.Result.Status.String()]++
		evalUs += float64(r.EvalDuration.Nanoseconds()) / 1e3
		if bpm, ok := r.Result.Estimate(); ok {
			d := bpm - r.Params.HeartRateBPM
			if d < 0 {
				d = -d
			}
			hrErr = append(hrErr, float64(d))
			if d > stats.MaxAbsErrorBPM {
				stats.MaxAbsErrorBPM = d
			}
		}
		if pct, ok := r.SpO2.Value(); ok {
			spo2Err = append(spo2Err, math.Abs(float64(pct-r.Params.SpO2Target)))
		}
	}

	stats.EstimateTicks = len(hrErr)
	stats.SpO2Ticks = len(spo2Err)
	if stats.Ticks > 0 {
		stats.LockRatio = float64(stats.EstimateTicks) / float64(stats.Ticks)
		stats.AvgEvalUs = evalUs / float64(stats.Ticks)
	}
	if len(hrErr) > 0 {
		stats.MeanAbsErrorBPM = stat.Mean(hrErr, nil)
	}
	if len(spo2Err) > 0 {
		stats.MeanAbsErrorSpO2 = stat.Mean(spo2Err, nil)
	}
	return stats
}
