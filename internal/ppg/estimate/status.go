// Package estimate holds the firmware-side estimators that run on buffer
// snapshots: three interchangeable heart-rate algorithms, the SpO2
// ratio-of-ratios estimator and signal quality measures.
//
// Nothing here returns an error. Every degenerate input maps to an explicit
// status or an unavailable result.
package estimate

import "fmt"

// Status is the state an algorithm reports alongside its estimate.
type Status int

const (
	StatusScanning Status = iota
	StatusLocked
	StatusNoiseError
	StatusWeakSignal
	StatusTracked
	StatusInferring
	StatusLost
)

var statusNames = [...]string{
	StatusScanning:   "Scanning",
	StatusLocked:     "Locked",
	StatusNoiseError: "Noise Error",
	StatusWeakSignal: "Weak Signal",
	StatusTracked:    "Tracked",
	StatusInferring:  "Inferring",
	StatusLost:       "Lost",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HasEstimate reports whether the status carries a heart-rate value.
func (s Status) HasEstimate() bool {
	switch s {
	case StatusLocked, StatusTracked, StatusInferring:
		return true
	}
	return false
}

// Result is the output of one algorithm evaluation. It is produced whole on
// every tick and never updated in place.
type Result struct {
	HeartRateBPM *int   `json:"heart_rate_bpm"`
	Status       Status `json:"status"`
}

// Estimate returns the heart rate and whether one was produced.
func (r Result) Estimate() (int, bool) {
	if r.HeartRateBPM == nil {
		return 0, false
	}
	return *r.HeartRateBPM, true
}

func withEstimate(status Status, bpm int) Result {
	return Result{HeartRateBPM: &bpm, Status: status}
}

func noEstimate(status Status) Result {
	return Result{Status: status}
}

// SpO2Result is a saturation reading in percent, or unavailable when nil.
type SpO2Result struct {
	Percentage *int `json:"percentage"`
}

// Available reports whether a saturation value was computed.
func (r SpO2Result) Available() bool { return r.Percentage != nil }

// Value returns the saturation and whether it is available.
func (r SpO2Result) Value() (int, bool) {
	if r.Percentage == nil {
		return 0, false
	}
	return *r.Percentage, true
}
