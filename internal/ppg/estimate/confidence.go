package estimate

import (
	"math"
	"math/rand"
	"sync"

	"github.com/banshee-data/pulse.lab/internal/ppg"
)

// jitterSpanBPM is the full width of the uniform jitter added to the target.
const jitterSpanBPM = 3.0

// ConfidenceEstimator stands in for a learned model. It trusts the target
// heart rate while the configured SNR stays above threshold and reports Lost
// otherwise, degrading gracefully instead of failing hard.
type ConfidenceEstimator struct {
	th   Thresholds
	seed int64

	mu  sync.Mutex
	rng *rand.Rand
}

var _ Algorithm = (*ConfidenceEstimator)(nil)

// NewConfidenceEstimator returns an estimator whose jitter is seeded by seed.
func NewConfidenceEstimator(th Thresholds, seed int64) *ConfidenceEstimator {
	return &ConfidenceEstimator{th: th, seed: seed, rng: rand.New(rand.NewSource(seed))}
}

func (c *ConfidenceEstimator) Kind() Kind   { return KindConfidence }
func (c *ConfidenceEstimator) Name() string { return "Confidence Model" }

// Reset rewinds the jitter source to its seed.
func (c *ConfidenceEstimator) Reset() {
	c.mu.Lock()
	c.rng = rand.New(rand.NewSource(c.seed))
	c.mu.Unlock()
}

func (c *ConfidenceEstimator) Evaluate(snap Snapshot, params ppg.Params) Result {
	if snap.Len() < c.th.minSamples() {
		return noEstimate(StatusScanning)
	}
	if !(ConfiguredSNR(params) > c.th.ConfidenceMinSNR) {
		return noEstimate(StatusLost)
	}

	c.mu.Lock()
	jitter := (c.rng.Float64() - 0.5) * jitterSpanBPM
	c.mu.Unlock()

	hr := ppg.Params{HeartRateBPM: params.HeartRateBPM}.Clamped().HeartRateBPM
	return withEstimate(StatusInferring, int(math.Round(float64(hr)+jitter)))
}
