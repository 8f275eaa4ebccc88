package estimate

import (
	"math"

	"github.com/banshee-data/pulse.lab/internal/ppg"
)

// Calibration line and reporting bounds for saturation.
const (
	SpO2CalOffset = 110.0
	SpO2CalSlope  = 25.0
	MinSpO2       = 85
	MaxSpO2       = 100

	dcEpsilon = 1e-9
)

// SpO2Estimator applies the empirical ratio-of-ratios calibration to the red
// and IR filtered channels.
type SpO2Estimator struct {
	th Thresholds
}

// NewSpO2Estimator returns a saturation estimator.
func NewSpO2Estimator(th Thresholds) *SpO2Estimator {
	return &SpO2Estimator{th: th}
}

// Evaluate returns unavailable unless both oximetry channels carry enough
// samples and pulsatile signal.
func (e *SpO2Estimator) Evaluate(snap Snapshot) SpO2Result {
	if !snap.Emitter.SupportsSpO2() {
		return SpO2Result{}
	}
	if len(snap.Red) < e.th.minSamples() || len(snap.IR) < e.th.minSamples() {
		return SpO2Result{}
	}
	if !ppg.AllFinite(snap.Red) || !ppg.AllFinite(snap.IR) {
		return SpO2Result{}
	}
	redAC, redDC := ppg.ACDC(snap.Red)
	irAC, irDC := ppg.ACDC(snap.IR)
	return e.FromComponents(redAC, redDC, irAC, irDC)
}

// FromComponents computes saturation from AC and DC statistics directly.
func (e *SpO2Estimator) FromComponents(redAC, redDC, irAC, irDC float64) SpO2Result {
	for _, v := range []float64{redAC, redDC, irAC, irDC} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return SpO2Result{}
		}
	}
	if math.Abs(redDC) < dcEpsilon || math.Abs(irDC) < dcEpsilon {
		return SpO2Result{}
	}
	minAC := math.Max(e.th.SpO2MinAC, 0)
	if !(redAC > minAC) || !(irAC > minAC) {
		return SpO2Result{}
	}

	r := (redAC / redDC) / (irAC / irDC)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return SpO2Result{}
	}
	pct := int(math.Round(math.Max(MinSpO2, math.Min(MaxSpO2, SpO2CalOffset-SpO2CalSlope*r))))
	return SpO2Result{Percentage: &pct}
}
