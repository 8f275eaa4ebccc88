// Package ppg models the optical signal chain of a wrist-worn pulse oximeter:
// a synthetic multi-wavelength photoplethysmography (PPG) generator, fixed
// capacity sample buffers and the analog front-end smoothing filter.
package ppg

import (
	"fmt"
	"math"
	"strings"
)

// Accepted ranges for the simulation parameters.
const (
	MinHeartRateBPM = 40
	MaxHeartRateBPM = 180
	MinSpO2Target   = 80
	MaxSpO2Target   = 100
	MaxArtifact     = 1.0
)

// Params are the user-controlled simulation inputs. They are owned by the
// configuration layer; the signal chain only ever reads a copy.
type Params struct {
	HeartRateBPM        int     `json:"heart_rate_bpm"`
	SpO2Target          int     `json:"spo2_target"`
	MotionArtifactLevel float64 `json:"motion_artifact_level"`
	NoiseLevel          float64 `json:"noise_level"`
	FilterCutoffHz      float64 `json:"filter_cutoff_hz"`
}

// DefaultParams returns the parameters a freshly reset device starts with.
func DefaultParams() Params {
	return Params{
		HeartRateBPM:        75,
		SpO2Target:          98,
		MotionArtifactLevel: 0,
		NoiseLevel:          0,
		FilterCutoffHz:      5,
	}
}

// Validate reports the first parameter outside its accepted range.
func (p Params) Validate() error {
	if p.HeartRateBPM < MinHeartRateBPM || p.HeartRateBPM > MaxHeartRateBPM {
		return fmt.Errorf("heart_rate_bpm must be between %d and %d, got %d", MinHeartRateBPM, MaxHeartRateBPM, p.HeartRateBPM)
	}
	if p.SpO2Target < MinSpO2Target || p.SpO2Target > MaxSpO2Target {
		return fmt.Errorf("spo2_target must be between %d and %d, got %d", MinSpO2Target, MaxSpO2Target, p.SpO2Target)
	}
	if !inUnitRange(p.MotionArtifactLevel) {
		return fmt.Errorf("motion_artifact_level must be between 0 and 1, got %f", p.MotionArtifactLevel)
	}
	if !inUnitRange(p.NoiseLevel) {
		return fmt.Errorf("noise_level must be between 0 and 1, got %f", p.NoiseLevel)
	}
	if math.IsNaN(p.FilterCutoffHz) || math.IsInf(p.FilterCutoffHz, 0) || p.FilterCutoffHz <= 0 {
		return fmt.Errorf("filter_cutoff_hz must be positive, got %f", p.FilterCutoffHz)
	}
	return nil
}

// Clamped returns a copy of p forced into the accepted ranges. Non-finite
// values fall back to the defaults so nothing downstream sees NaN.
func (p Params) Clamped() Params {
	def := DefaultParams()
	out := p
	out.HeartRateBPM = clampInt(p.HeartRateBPM, MinHeartRateBPM, MaxHeartRateBPM)
	out.SpO2Target = clampInt(p.SpO2Target, MinSpO2Target, MaxSpO2Target)
	out.MotionArtifactLevel = clampFinite(p.MotionArtifactLevel, 0, MaxArtifact, def.MotionArtifactLevel)
	out.NoiseLevel = clampFinite(p.NoiseLevel, 0, MaxArtifact, def.NoiseLevel)
	if math.IsNaN(p.FilterCutoffHz) || math.IsInf(p.FilterCutoffHz, 0) || p.FilterCutoffHz <= 0 {
		out.FilterCutoffHz = def.FilterCutoffHz
	}
	return out
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= MaxArtifact
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFinite(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Max(lo, math.Min(hi, v))
}

// Channel identifies one optical wavelength.
type Channel int

const (
	ChannelGreen Channel = iota
	ChannelRed
	ChannelIR

	// NumChannels is the number of wavelengths the front end can drive.
	NumChannels = 3
)

func (c Channel) String() string {
	switch c {
	case ChannelGreen:
		return "green"
	case ChannelRed:
		return "red"
	case ChannelIR:
		return "ir"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Emitter is the optical emitter fitted to the device. It decides which
// channels are driven and which one the heart-rate algorithms read.
type Emitter int

const (
	EmitterGreenOnly Emitter = iota
	EmitterRedIR
	EmitterMulti
)

func (e Emitter) String() string {
	switch e {
	case EmitterGreenOnly:
		return "green_only"
	case EmitterRedIR:
		return "red_ir"
	case EmitterMulti:
		return "multi"
	default:
		return fmt.Sprintf("emitter(%d)", int(e))
	}
}

// ParseEmitter accepts the emitter option ids used by the configuration layer.
func ParseEmitter(s string) (Emitter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "green_only", "green":
		return EmitterGreenOnly, nil
	case "red_ir", "redir":
		return EmitterRedIR, nil
	case "multi", "multi_wavelength":
		return EmitterMulti, nil
	default:
		return 0, fmt.Errorf("unknown emitter %q: expected green_only, red_ir or multi", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e Emitter) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Emitter) UnmarshalText(b []byte) error {
	v, err := ParseEmitter(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Channels lists the wavelengths driven by the emitter.
func (e Emitter) Channels() []Channel {
	switch e {
	case EmitterGreenOnly:
		return []Channel{ChannelGreen}
	case EmitterRedIR:
		return []Channel{ChannelRed, ChannelIR}
	default:
		return []Channel{ChannelGreen, ChannelRed, ChannelIR}
	}
}

// Active reports whether the emitter drives channel c.
func (e Emitter) Active(c Channel) bool {
	for _, ch := range e.Channels() {
		if ch == c {
			return true
		}
	}
	return false
}

// Primary is the channel the heart-rate algorithms consume. Green gives the
// strongest pulsatile component at the wrist, so any emitter that has it uses
// it; Red+IR falls back to IR.
func (e Emitter) Primary() Channel {
	if e == EmitterRedIR {
		return ChannelIR
	}
	return ChannelGreen
}

// SupportsSpO2 reports whether both red and IR channels are available.
func (e Emitter) SupportsSpO2() bool {
	return e.Active(ChannelRed) && e.Active(ChannelIR)
}
