package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/ppg/estimate"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptySimConfig_Defaults(t *testing.T) {
	cfg := EmptySimConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50.0, cfg.GetSampleRateHz())
	assert.Equal(t, 20*time.Millisecond, cfg.GetPhysicsTick())
	assert.Equal(t, 500*time.Millisecond, cfg.GetAlgorithmTick())
	assert.Equal(t, 200, cfg.GetBufferCapacity())
	assert.Equal(t, int64(1), cfg.GetSeed())
	assert.Equal(t, ppg.FilterEMA, cfg.GetFilterMode())
	assert.Equal(t, 0.05, cfg.GetRespirationDepth())
	assert.Equal(t, ppg.EmitterMulti, cfg.GetEmitter())
	assert.Equal(t, estimate.KindAutocorrelator, cfg.GetAlgorithm())
	assert.Equal(t, ppg.DefaultParams(), cfg.GetParams())
	if diff := cmp.Diff(estimate.DefaultThresholds(), cfg.GetThresholds()); diff != "" {
		t.Errorf("GetThresholds() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := EmptySimConfig()

	// The shipped defaults file must agree with the built-in fallbacks.
	assert.Equal(t, empty.GetSampleRateHz(), cfg.GetSampleRateHz())
	assert.Equal(t, empty.GetPhysicsTick(), cfg.GetPhysicsTick())
	assert.Equal(t, empty.GetAlgorithmTick(), cfg.GetAlgorithmTick())
	assert.Equal(t, empty.GetBufferCapacity(), cfg.GetBufferCapacity())
	assert.Equal(t, empty.GetFilterMode(), cfg.GetFilterMode())
	assert.Equal(t, empty.GetEmitter(), cfg.GetEmitter())
	assert.Equal(t, empty.GetAlgorithm(), cfg.GetAlgorithm())
	assert.Equal(t, empty.GetParams(), cfg.GetParams())
	if diff := cmp.Diff(empty.GetThresholds(), cfg.GetThresholds()); diff != "" {
		t.Errorf("thresholds drifted from defaults (-want +got):\n%s", diff)
	}
}

func TestLoadSimConfig_Partial(t *testing.T) {
	path := writeConfig(t, "partial.json", `{"heart_rate_bpm": 120, "emitter": "red_ir", "physics_tick": "5ms"}`)
	cfg, err := LoadSimConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.GetParams().HeartRateBPM)
	assert.Equal(t, 98, cfg.GetParams().SpO2Target)
	assert.Equal(t, ppg.EmitterRedIR, cfg.GetEmitter())
	assert.Equal(t, 5*time.Millisecond, cfg.GetPhysicsTick())
	assert.Equal(t, 500*time.Millisecond, cfg.GetAlgorithmTick())
}

func TestLoadSimConfig_Errors(t *testing.T) {
	t.Run("extension", func(t *testing.T) {
		_, err := LoadSimConfig(writeConfig(t, "cfg.yaml", `{}`))
		assert.ErrorContains(t, err, ".json extension")
	})
	t.Run("missing", func(t *testing.T) {
		_, err := LoadSimConfig(filepath.Join(t.TempDir(), "absent.json"))
		assert.ErrorContains(t, err, "failed to stat")
	})
	t.Run("too large", func(t *testing.T) {
		body := `{"seed": 1` + strings.Repeat(" ", maxConfigFileSize) + `}`
		_, err := LoadSimConfig(writeConfig(t, "big.json", body))
		assert.ErrorContains(t, err, "too large")
	})
	t.Run("malformed", func(t *testing.T) {
		_, err := LoadSimConfig(writeConfig(t, "bad.json", `{"seed":`))
		assert.ErrorContains(t, err, "failed to parse")
	})
	t.Run("invalid value", func(t *testing.T) {
		_, err := LoadSimConfig(writeConfig(t, "hr.json", `{"heart_rate_bpm": 300}`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestSimConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     SimConfig
		wantErr bool
	}{
		{"empty", SimConfig{}, false},
		{"sample rate zero", SimConfig{SampleRateHz: ptrFloat64(0)}, true},
		{"bad tick", SimConfig{PhysicsTick: ptrString("fast")}, true},
		{"negative tick", SimConfig{AlgorithmTick: ptrString("-1s")}, true},
		{"tiny buffer", SimConfig{BufferCapacity: ptrInt(1)}, true},
		{"min samples above capacity", SimConfig{BufferCapacity: ptrInt(100), MinSamples: ptrInt(150)}, true},
		{"min samples above default capacity", SimConfig{MinSamples: ptrInt(300)}, true},
		{"capacity below default min samples", SimConfig{BufferCapacity: ptrInt(30)}, true},
		{"min samples equal to capacity", SimConfig{BufferCapacity: ptrInt(60), MinSamples: ptrInt(60)}, false},
		{"unknown filter", SimConfig{FilterMode: ptrString("kalman")}, true},
		{"respiration depth", SimConfig{RespirationDepth: ptrFloat64(1.5)}, true},
		{"gate above one", SimConfig{PeakMaxNoise: ptrFloat64(2)}, true},
		{"negative snr", SimConfig{ConfidenceMinSNR: ptrFloat64(-1)}, true},
		{"unknown emitter", SimConfig{Emitter: ptrString("uv")}, true},
		{"unknown algorithm", SimConfig{Algorithm: ptrString("fft")}, true},
		{"spo2 target", SimConfig{SpO2Target: ptrInt(60)}, true},
		{"valid overrides", SimConfig{
			Seed:          ptrInt64(99),
			FilterMode:    ptrString("moving_average"),
			Algorithm:     ptrString("ml_algo"),
			NoiseLevel:    ptrFloat64(0.3),
			PeakMaxMotion: ptrFloat64(0.2),
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
