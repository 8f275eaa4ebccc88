package ppg

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// flatEpsilon is the standard deviation below which a window is treated as
// carrying no signal.
const flatEpsilon = 1e-9

// Mean returns the arithmetic mean of xs, or zero for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// ACDC returns the pulsatile amplitude (RMS of the mean-subtracted window)
// and baseline (mean) of xs.
func ACDC(xs []float64) (ac, dc float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	dc = stat.Mean(xs, nil)
	ac = math.Sqrt(stat.PopVariance(xs, nil))
	return ac, dc
}

// MeanSubtract returns a copy of xs with its mean removed.
func MeanSubtract(xs []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	copy(out, xs)
	floats.AddConst(-stat.Mean(xs, nil), out)
	return out
}

// Normalize returns the z-scored copy of xs. ok is false when the window is
// empty or flat, in which case no scaling is meaningful.
func Normalize(xs []float64) (out []float64, ok bool) {
	ac, _ := ACDC(xs)
	if len(xs) == 0 || ac < flatEpsilon || math.IsNaN(ac) {
		return nil, false
	}
	out = MeanSubtract(xs)
	floats.Scale(1/ac, out)
	return out, true
}

// AllFinite reports whether xs contains no NaN or infinite value.
func AllFinite(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
