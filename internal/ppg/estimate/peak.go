package estimate

import (
	"math"

	"github.com/banshee-data/pulse.lab/internal/ppg"
)

// PeakDetector counts falling zero crossings of the mean-subtracted raw
// signal. It refuses to run at all once noise or motion exceed its gates,
// which is what makes it the brittle baseline among the algorithms.
type PeakDetector struct {
	th Thresholds
}

var _ Algorithm = (*PeakDetector)(nil)

// NewPeakDetector returns a zero-crossing counter.
func NewPeakDetector(th Thresholds) *PeakDetector {
	return &PeakDetector{th: th}
}

func (d *PeakDetector) Kind() Kind   { return KindPeakDetector }
func (d *PeakDetector) Name() string { return "Peak Detector" }
func (d *PeakDetector) Reset()       {}

// Evaluate applies the artifact gate before anything else so excess noise or
// motion always reports NoiseError.
func (d *PeakDetector) Evaluate(snap Snapshot, params ppg.Params) Result {
	if params.MotionArtifactLevel > d.th.PeakMaxMotion || params.NoiseLevel > d.th.PeakMaxNoise ||
		math.IsNaN(params.MotionArtifactLevel) || math.IsNaN(params.NoiseLevel) {
		return noEstimate(StatusNoiseError)
	}
	n := snap.Len()
	if n < d.th.minSamples() || !(snap.SampleRate > 0) || !ppg.AllFinite(snap.Raw) {
		return noEstimate(StatusScanning)
	}

	crossings := FallingZeroCrossings(ppg.MeanSubtract(snap.Raw))
	if crossings == 0 {
		return noEstimate(StatusScanning)
	}
	duration := float64(n) / snap.SampleRate
	bpm := int(math.Round(float64(crossings) / duration * 60))
	return withEstimate(StatusLocked, bpm)
}

// FallingZeroCrossings counts transitions from non-negative to negative.
func FallingZeroCrossings(xs []float64) int {
	count := 0
	for i := 1; i < len(xs); i++ {
		if xs[i-1] >= 0 && xs[i] < 0 {
			count++
		}
	}
	return count
}
