package sim

import (
	"time"

	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/ppg/estimate"
)

// Readout is everything the device reports after one algorithm tick.
type Readout struct {
	Timestamp    time.Time           `json:"timestamp"`
	Tick         uint64              `json:"tick"`
	Algorithm    estimate.Kind       `json:"algorithm"`
	Emitter      ppg.Emitter         `json:"emitter"`
	Params       ppg.Params          `json:"params"`
	Result       estimate.Result     `json:"result"`
	SpO2         estimate.SpO2Result `json:"spo2"`
	SNR          float64             `json:"snr_db"`
	MeasuredSNR  float64             `json:"measured_snr_db"`
	Samples      int                 `json:"samples"`
	EvalDuration time.Duration       `json:"eval_duration_ns"`
}

// Sink receives every readout. Errors are logged by the engine and never
// stop the simulation.
type Sink interface {
	RecordReadout(r Readout) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Readout) error

func (f SinkFunc) RecordReadout(r Readout) error { return f(r) }
