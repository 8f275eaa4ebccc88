package estimate

import (
	"fmt"
	"strings"

	"github.com/banshee-data/pulse.lab/internal/ppg"
)

// Snapshot is an immutable copy of the buffers taken at one algorithm tick.
// Raw and Filtered hold the primary channel; Red and IR hold the filtered
// oximetry channels and are empty when the emitter does not drive them.
type Snapshot struct {
	SampleRate float64
	Emitter    ppg.Emitter
	Raw        []float64
	Filtered   []float64
	Red        []float64
	IR         []float64
}

// Len returns the number of primary-channel samples.
func (s Snapshot) Len() int { return len(s.Raw) }

// Algorithm is the contract shared by all heart-rate estimators. Evaluate is a
// pure function of its inputs apart from any seeded jitter source the
// implementation owns.
type Algorithm interface {
	// Kind identifies the variant in the closed set of algorithms.
	Kind() Kind

	// Name returns a human readable label for logs and readouts.
	Name() string

	// Evaluate maps a buffer snapshot and the current parameters to a result.
	Evaluate(snap Snapshot, params ppg.Params) Result

	// Reset restores any internal state to its initial value.
	Reset()
}

// Kind enumerates the available algorithms.
type Kind int

const (
	KindPeakDetector Kind = iota
	KindAutocorrelator
	KindConfidence
)

// Kinds lists every algorithm in presentation order.
var Kinds = []Kind{KindPeakDetector, KindAutocorrelator, KindConfidence}

func (k Kind) String() string {
	switch k {
	case KindPeakDetector:
		return "basic"
	case KindAutocorrelator:
		return "dsp"
	case KindConfidence:
		return "ml"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts the short ids and the firmware option ids.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic", "basic_algo", "peak", "peak_detector":
		return KindPeakDetector, nil
	case "dsp", "dsp_algo", "autocorr", "autocorrelator":
		return KindAutocorrelator, nil
	case "ml", "ml_algo", "confidence":
		return KindConfidence, nil
	default:
		return 0, fmt.Errorf("unknown algorithm %q: expected basic, dsp or ml", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Thresholds are the tunable acceptance limits shared by the estimators.
// All values refer to normalised signals or the 0..1 parameter scale.
type Thresholds struct {
	MinSamples             int
	PeakMaxMotion          float64
	PeakMaxNoise           float64
	AutocorrMinCorrelation float64
	ConfidenceMinSNR       float64
	SpO2MinAC              float64
}

// DefaultThresholds returns the canonical limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSamples:             50,
		PeakMaxMotion:          0.15,
		PeakMaxNoise:           0.2,
		AutocorrMinCorrelation: 0.5,
		ConfidenceMinSNR:       0,
		SpO2MinAC:              5e-4,
	}
}

func (t Thresholds) minSamples() int {
	if t.MinSamples < 2 {
		return 2
	}
	return t.MinSamples
}

// New constructs the algorithm for kind. seed drives any jitter the variant
// adds so runs are reproducible.
func New(kind Kind, th Thresholds, seed int64) (Algorithm, error) {
	switch kind {
	case KindPeakDetector:
		return NewPeakDetector(th), nil
	case KindAutocorrelator:
		return NewAutocorrelator(th), nil
	case KindConfidence:
		return NewConfidenceEstimator(th, seed), nil
	default:
		return nil, fmt.Errorf("unsupported algorithm kind %d", int(kind))
	}
}

// All returns one instance of every algorithm, in Kinds order.
func All(th Thresholds, seed int64) []Algorithm {
	out := make([]Algorithm, 0, len(Kinds))
	for _, k := range Kinds {
		a, err := New(k, th, seed)
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}
