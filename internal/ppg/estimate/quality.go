package estimate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pulse.lab/internal/ppg"
)

const (
	// nominalSignal is the reference pulse amplitude for the configured SNR.
	nominalSignal = 0.5
	snrEpsilon    = 0.001
	// MaxMeasuredSNR caps the measured SNR when the residual is effectively zero.
	MaxMeasuredSNR = 60.0
)

// ConfiguredSNR estimates the signal-to-noise ratio in dB from the configured
// noise and motion levels, floored at zero.
func ConfiguredSNR(p ppg.Params) float64 {
	n, m := p.NoiseLevel, p.MotionArtifactLevel
	if math.IsNaN(n) || math.IsNaN(m) {
		return 0
	}
	denom := math.Max(n, 0) + math.Max(m, 0) + snrEpsilon
	snr := 20 * math.Log10(nominalSignal/denom)
	if !(snr > 0) || math.IsInf(snr, 0) {
		return 0
	}
	return snr
}

// MeasuredSNR compares the power kept by the smoothing filter to the power it
// removed: 10*log10(var(filtered)/var(raw-filtered)), floored at zero and
// capped at MaxMeasuredSNR.
func MeasuredSNR(raw, filtered []float64) float64 {
	n := min(len(raw), len(filtered))
	if n < 2 {
		return 0
	}
	residual := make([]float64, n)
	for i := 0; i < n; i++ {
		residual[i] = raw[len(raw)-n+i] - filtered[len(filtered)-n+i]
	}
	signal := stat.PopVariance(filtered[len(filtered)-n:], nil)
	noise := stat.PopVariance(residual, nil)
	if !(signal > 0) {
		return 0
	}
	if noise < 1e-12 {
		return MaxMeasuredSNR
	}
	snr := 10 * math.Log10(signal/noise)
	switch {
	case math.IsNaN(snr) || snr < 0:
		return 0
	case snr > MaxMeasuredSNR:
		return MaxMeasuredSNR
	}
	return snr
}
