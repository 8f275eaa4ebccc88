package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/ppg/estimate"
)

// DefaultConfigPath is the canonical defaults file, relative to the repo root.
const DefaultConfigPath = "config/pulselab.defaults.json"

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// SimConfig is the startup tuning for the simulation engine. Every field is
// optional; the Get* accessors supply defaults for anything omitted, so a
// partial file is safe. The parameter fields share their JSON names with the
// /api/params payload.
type SimConfig struct {
	// Scheduler
	SampleRateHz   *float64 `json:"sample_rate_hz,omitempty"`
	PhysicsTick    *string  `json:"physics_tick,omitempty"`   // duration string like "20ms"
	AlgorithmTick  *string  `json:"algorithm_tick,omitempty"` // duration string like "500ms"
	BufferCapacity *int     `json:"buffer_capacity,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`

	// Front end
	FilterMode       *string  `json:"filter_mode,omitempty"`
	RespirationDepth *float64 `json:"respiration_depth,omitempty"`

	// Estimator thresholds
	MinSamples             *int     `json:"min_samples,omitempty"`
	PeakMaxMotion          *float64 `json:"peak_max_motion,omitempty"`
	PeakMaxNoise           *float64 `json:"peak_max_noise,omitempty"`
	AutocorrMinCorrelation *float64 `json:"autocorr_min_correlation,omitempty"`
	ConfidenceMinSNR       *float64 `json:"confidence_min_snr,omitempty"`
	SpO2MinAC              *float64 `json:"spo2_min_ac,omitempty"`

	// Initial selections and parameters
	Emitter             *string  `json:"emitter,omitempty"`
	Algorithm           *string  `json:"algorithm,omitempty"`
	HeartRateBPM        *int     `json:"heart_rate_bpm,omitempty"`
	SpO2Target          *int     `json:"spo2_target,omitempty"`
	MotionArtifactLevel *float64 `json:"motion_artifact_level,omitempty"`
	NoiseLevel          *float64 `json:"noise_level,omitempty"`
	FilterCutoffHz      *float64 `json:"filter_cutoff_hz,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptySimConfig returns a config with every field unset.
func EmptySimConfig() *SimConfig {
	return &SimConfig{}
}

// LoadSimConfig reads and validates a JSON config file. The path must carry a
// .json extension and the file must be under 1MB.
func LoadSimConfig(path string) (*SimConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySimConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory or
// one of its parents. It panics on failure and is intended for test setup.
func MustLoadDefaultConfig() *SimConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadSimConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks every field that is set.
func (c *SimConfig) Validate() error {
	if c.SampleRateHz != nil && !(*c.SampleRateHz > 0 && *c.SampleRateHz <= 10000) {
		return invalid("sample_rate_hz must be in (0, 10000], got %f", *c.SampleRateHz)
	}
	for name, v := range map[string]*string{"physics_tick": c.PhysicsTick, "algorithm_tick": c.AlgorithmTick} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return invalid("invalid %s %q: %v", name, *v, err)
		}
		if d <= 0 {
			return invalid("%s must be positive, got %s", name, d)
		}
	}
	if c.BufferCapacity != nil && *c.BufferCapacity < 2 {
		return invalid("buffer_capacity must be at least 2, got %d", *c.BufferCapacity)
	}
	if c.MinSamples != nil && *c.MinSamples < 2 {
		return invalid("min_samples must be at least 2, got %d", *c.MinSamples)
	}
	if minSamples, capacity := c.GetThresholds().MinSamples, c.GetBufferCapacity(); minSamples > capacity {
		return invalid("min_samples %d exceeds buffer_capacity %d", minSamples, capacity)
	}
	if c.FilterMode != nil {
		if _, err := ppg.ParseFilterMode(*c.FilterMode); err != nil {
			return invalid("%v", err)
		}
	}
	if c.RespirationDepth != nil && !unit(*c.RespirationDepth) {
		return invalid("respiration_depth must be between 0 and 1, got %f", *c.RespirationDepth)
	}
	for name, v := range map[string]*float64{
		"peak_max_motion":          c.PeakMaxMotion,
		"peak_max_noise":           c.PeakMaxNoise,
		"autocorr_min_correlation": c.AutocorrMinCorrelation,
	} {
		if v != nil && !unit(*v) {
			return invalid("%s must be between 0 and 1, got %f", name, *v)
		}
	}
	if c.ConfidenceMinSNR != nil && (math.IsNaN(*c.ConfidenceMinSNR) || *c.ConfidenceMinSNR < 0) {
		return invalid("confidence_min_snr must be non-negative, got %f", *c.ConfidenceMinSNR)
	}
	if c.SpO2MinAC != nil && (math.IsNaN(*c.SpO2MinAC) || *c.SpO2MinAC < 0) {
		return invalid("spo2_min_ac must be non-negative, got %f", *c.SpO2MinAC)
	}
	if c.Emitter != nil {
		if _, err := ppg.ParseEmitter(*c.Emitter); err != nil {
			return invalid("%v", err)
		}
	}
	if c.Algorithm != nil {
		if _, err := estimate.ParseKind(*c.Algorithm); err != nil {
			return invalid("%v", err)
		}
	}
	if err := c.GetParams().Validate(); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func unit(v float64) bool { return !math.IsNaN(v) && v >= 0 && v <= 1 }

// GetSampleRateHz returns the simulated sample rate.
func (c *SimConfig) GetSampleRateHz() float64 {
	if c.SampleRateHz == nil {
		return ppg.DefaultSampleRate
	}
	return *c.SampleRateHz
}

// GetPhysicsTick returns the wall-clock period of the sample generator.
func (c *SimConfig) GetPhysicsTick() time.Duration {
	return parseDurationOr(c.PhysicsTick, 20*time.Millisecond)
}

// GetAlgorithmTick returns the wall-clock period of the estimators.
func (c *SimConfig) GetAlgorithmTick() time.Duration {
	return parseDurationOr(c.AlgorithmTick, 500*time.Millisecond)
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetBufferCapacity returns the per-channel ring buffer size.
func (c *SimConfig) GetBufferCapacity() int {
	if c.BufferCapacity == nil {
		return 200
	}
	return *c.BufferCapacity
}

// GetSeed returns the random seed shared by noise and jitter sources.
func (c *SimConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetFilterMode returns the front-end filter mode.
func (c *SimConfig) GetFilterMode() ppg.FilterMode {
	if c.FilterMode == nil {
		return ppg.FilterEMA
	}
	m, err := ppg.ParseFilterMode(*c.FilterMode)
	if err != nil {
		return ppg.FilterEMA
	}
	return m
}

// GetRespirationDepth returns the respiratory amplitude modulation depth.
func (c *SimConfig) GetRespirationDepth() float64 {
	if c.RespirationDepth == nil {
		return 0.05
	}
	return *c.RespirationDepth
}

// GetThresholds returns the estimator limits with defaults filled in.
func (c *SimConfig) GetThresholds() estimate.Thresholds {
	th := estimate.DefaultThresholds()
	if c.MinSamples != nil {
		th.MinSamples = *c.MinSamples
	}
	if c.PeakMaxMotion != nil {
		th.PeakMaxMotion = *c.PeakMaxMotion
	}
	if c.PeakMaxNoise != nil {
		th.PeakMaxNoise = *c.PeakMaxNoise
	}
	if c.AutocorrMinCorrelation != nil {
		th.AutocorrMinCorrelation = *c.AutocorrMinCorrelation
	}
	if c.ConfidenceMinSNR != nil {
		th.ConfidenceMinSNR = *c.ConfidenceMinSNR
	}
	if c.SpO2MinAC != nil {
		th.SpO2MinAC = *c.SpO2MinAC
	}
	return th
}

// GetEmitter returns the initial emitter selection.
func (c *SimConfig) GetEmitter() ppg.Emitter {
	if c.Emitter == nil {
		return ppg.EmitterMulti
	}
	e, err := ppg.ParseEmitter(*c.Emitter)
	if err != nil {
		return ppg.EmitterMulti
	}
	return e
}

// GetAlgorithm returns the initial algorithm selection.
func (c *SimConfig) GetAlgorithm() estimate.Kind {
	if c.Algorithm == nil {
		return estimate.KindAutocorrelator
	}
	k, err := estimate.ParseKind(*c.Algorithm)
	if err != nil {
		return estimate.KindAutocorrelator
	}
	return k
}

// GetParams returns the initial simulation parameters.
func (c *SimConfig) GetParams() ppg.Params {
	p := ppg.DefaultParams()
	if c.HeartRateBPM != nil {
		p.HeartRateBPM = *c.HeartRateBPM
	}
	if c.SpO2Target != nil {
		p.SpO2Target = *c.SpO2Target
	}
	if c.MotionArtifactLevel != nil {
		p.MotionArtifactLevel = *c.MotionArtifactLevel
	}
	if c.NoiseLevel != nil {
		p.NoiseLevel = *c.NoiseLevel
	}
	if c.FilterCutoffHz != nil {
		p.FilterCutoffHz = *c.FilterCutoffHz
	}
	return p
}
