package estimate

import (
	"math"

	"github.com/banshee-data/pulse.lab/internal/ppg"
)

// Plausible heart-rate span searched by the autocorrelator.
const (
	MinSearchBPM = 40
	MaxSearchBPM = 200
)

// Autocorrelator finds the lag that best matches the z-scored filtered signal
// against a delayed copy of itself.
type Autocorrelator struct {
	th Thresholds
}

var _ Algorithm = (*Autocorrelator)(nil)

// NewAutocorrelator returns an autocorrelation estimator.
func NewAutocorrelator(th Thresholds) *Autocorrelator {
	return &Autocorrelator{th: th}
}

func (a *Autocorrelator) Kind() Kind   { return KindAutocorrelator }
func (a *Autocorrelator) Name() string { return "Autocorrelation" }
func (a *Autocorrelator) Reset()       {}

func (a *Autocorrelator) Evaluate(snap Snapshot, _ ppg.Params) Result {
	if len(snap.Filtered) < a.th.minSamples() || !(snap.SampleRate > 0) {
		return noEstimate(StatusScanning)
	}
	if !ppg.AllFinite(snap.Filtered) {
		return noEstimate(StatusWeakSignal)
	}
	x, ok := ppg.Normalize(snap.Filtered)
	if !ok {
		return noEstimate(StatusWeakSignal)
	}

	lagMin, lagMax := LagRange(snap.SampleRate)
	lag, corr := BestLag(x, lagMin, lagMax)
	if lag == 0 || !(corr > a.th.AutocorrMinCorrelation) {
		return noEstimate(StatusWeakSignal)
	}
	bpm := int(math.Round(60 * snap.SampleRate / float64(lag)))
	if bpm < MinSearchBPM || bpm > MaxSearchBPM {
		return noEstimate(StatusWeakSignal)
	}
	return withEstimate(StatusTracked, bpm)
}

// LagRange converts the searched heart-rate span to sample lags. Every lag in
// the returned range maps back to a rate inside [MinSearchBPM, MaxSearchBPM].
// lagMax is below lagMin when the sample rate is too low to resolve any lag.
func LagRange(sampleRate float64) (lagMin, lagMax int) {
	lagMin = int(math.Ceil(sampleRate * 60 / MaxSearchBPM))
	lagMax = int(math.Floor(sampleRate * 60 / MinSearchBPM))
	if lagMin < 1 {
		lagMin = 1
	}
	return lagMin, lagMax
}

// BestLag returns the lag in [lagMin, lagMax] maximising the mean lagged
// product sum(x[i]*x[i+L])/(n-L). Ties keep the first lag seen. lag is zero
// when no lag in the range fits inside x.
func BestLag(x []float64, lagMin, lagMax int) (lag int, corr float64) {
	n := len(x)
	if lagMax > n-1 {
		lagMax = n - 1
	}
	corr = math.Inf(-1)
	for l := lagMin; l <= lagMax; l++ {
		sum := 0.0
		for i := 0; i+l < n; i++ {
			sum += x[i] * x[i+l]
		}
		c := sum / float64(n-l)
		if c > corr {
			corr = c
			lag = l
		}
	}
	if lag == 0 {
		return 0, 0
	}
	return lag, corr
}
