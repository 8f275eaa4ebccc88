package ppg

import (
	"fmt"
	"math"
	"strings"
)

// FilterMode selects the smoothing applied by the analog front end.
type FilterMode string

const (
	// FilterEMA is a single-pole low-pass whose alpha follows the cutoff.
	FilterEMA FilterMode = "ema"
	// FilterMovingAverage averages the most recent sampleRate/cutoff samples.
	FilterMovingAverage FilterMode = "moving_average"
)

// ParseFilterMode validates a configured mode. Empty selects FilterEMA.
func ParseFilterMode(s string) (FilterMode, error) {
	switch FilterMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterEMA:
		return FilterEMA, nil
	case FilterMovingAverage, "sma":
		return FilterMovingAverage, nil
	default:
		return "", fmt.Errorf("unknown filter mode %q: expected %q or %q", s, FilterEMA, FilterMovingAverage)
	}
}

// AnalogFilter approximates the front-end smoothing stage. State persists
// across samples until Reset; the first sample after a reset seeds the output
// with itself.
type AnalogFilter struct {
	mode       FilterMode
	sampleRate float64

	last    float64
	seeded  bool
	history *RingBuffer[float64]
}

// NewAnalogFilter returns a filter for the given mode and sample rate.
func NewAnalogFilter(mode FilterMode, sampleRate float64) *AnalogFilter {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		sampleRate = DefaultSampleRate
	}
	f := &AnalogFilter{mode: mode, sampleRate: sampleRate}
	if mode == FilterMovingAverage {
		f.history = NewRingBuffer[float64](int(math.Ceil(sampleRate)))
	}
	return f
}

// Mode returns the configured filter mode.
func (f *AnalogFilter) Mode() FilterMode { return f.mode }

// Apply filters one raw sample. Non-finite input leaves the state untouched
// and returns the previous output.
func (f *AnalogFilter) Apply(raw, cutoffHz float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return f.last
	}
	if f.mode == FilterMovingAverage {
		return f.applyMovingAverage(raw, cutoffHz)
	}
	if !f.seeded {
		f.last = raw
		f.seeded = true
		return raw
	}
	alpha := Alpha(cutoffHz, f.sampleRate)
	f.last = alpha*raw + (1-alpha)*f.last
	return f.last
}

func (f *AnalogFilter) applyMovingAverage(raw, cutoffHz float64) float64 {
	f.history.Push(raw)
	f.seeded = true
	window := MovingAverageWindow(f.sampleRate, cutoffHz, f.history.Cap())
	tail := f.history.Tail(window)
	sum := 0.0
	for _, v := range tail {
		sum += v
	}
	f.last = sum / float64(len(tail))
	return f.last
}

// Last returns the most recent output.
func (f *AnalogFilter) Last() float64 { return f.last }

// Reset clears the filter memory.
func (f *AnalogFilter) Reset() {
	f.last = 0
	f.seeded = false
	if f.history != nil {
		f.history.Reset()
	}
}

// Alpha maps a cutoff frequency to the one-pole smoothing constant
// dt/(RC+dt). The result is in (0, 1]; an unusable cutoff disables smoothing.
func Alpha(cutoffHz, sampleRate float64) float64 {
	if !(cutoffHz > 0) || math.IsInf(cutoffHz, 0) || !(sampleRate > 0) {
		return 1
	}
	dt := 1 / sampleRate
	rc := 1 / (2 * math.Pi * cutoffHz)
	a := dt / (rc + dt)
	if a <= 0 || math.IsNaN(a) {
		return 1
	}
	return math.Min(a, 1)
}

// MovingAverageWindow returns max(1, floor(sampleRate/cutoffHz)) capped at
// maxWindow.
func MovingAverageWindow(sampleRate, cutoffHz float64, maxWindow int) int {
	if maxWindow < 1 {
		maxWindow = 1
	}
	if !(cutoffHz > 0) || math.IsInf(cutoffHz, 0) {
		return 1
	}
	w := math.Floor(sampleRate / cutoffHz)
	if !(w >= 1) {
		return 1
	}
	if w > float64(maxWindow) {
		return maxWindow
	}
	return int(w)
}
