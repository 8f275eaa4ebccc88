package plot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/ppg/estimate"
	"github.com/banshee-data/pulse.lab/internal/ppg/sim"
)

func isPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data[:8])
}

func TestSample(t *testing.T) {
	wp, err := NewWaveformPlotter(filepath.Join(t.TempDir(), "nested", "out"))
	require.NoError(t, err)

	hr, spo2 := 74, 97
	wp.Sample(sim.Readout{Tick: 1, Params: ppg.DefaultParams(), Result: estimate.Result{Status: estimate.StatusScanning}})
	require.NoError(t, wp.RecordReadout(sim.Readout{
		Tick:   2,
		Params: ppg.DefaultParams(),
		Result: estimate.Result{HeartRateBPM: &hr, Status: estimate.StatusTracked},
		SpO2:   estimate.SpO2Result{Percentage: &spo2},
		SNR:    54,
	}))

	samples := wp.Samples()
	require.Len(t, samples, 2)
	assert.False(t, samples[0].HasHR)
	assert.Equal(t, EstimateSample{
		Tick: 2, HeartRateBPM: 74, HasHR: true, SpO2: 97, HasSpO2: true,
		TargetHR: 75, TargetSpO2: 98, SNR: 54,
	}, samples[1])

	wp.Reset()
	assert.Empty(t, wp.Samples())
}

func TestSaveEmpty(t *testing.T) {
	wp, err := NewWaveformPlotter(t.TempDir())
	require.NoError(t, err)

	_, err = wp.SavePoints(nil, ppg.EmitterMulti, "points.png")
	assert.ErrorIs(t, err, ErrNoData)
	_, err = wp.SaveEstimates("empty", "estimates.png")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSaveFromEngineRun(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Emitter = ppg.EmitterRedIR
	e, err := sim.New(cfg)
	require.NoError(t, err)

	wp, err := NewWaveformPlotter(t.TempDir())
	require.NoError(t, err)
	e.AddSink(wp)
	for i := 0; i < 500; i++ {
		e.PhysicsTick()
		if i%25 == 24 {
			e.AlgorithmTick()
		}
	}
	require.Len(t, wp.Samples(), 20)

	path, err := wp.SavePoints(e.Points(), e.Emitter(), "waveform.png")
	require.NoError(t, err)
	isPNG(t, path)

	path, err = wp.SaveEstimates("dsp red_ir", "estimates.png")
	require.NoError(t, err)
	isPNG(t, path)
}

func TestSaveKeepsFilesInOutputDir(t *testing.T) {
	dir := t.TempDir()
	wp, err := NewWaveformPlotter(dir)
	require.NoError(t, err)
	wp.Sample(sim.Readout{Tick: 1, Params: ppg.DefaultParams()})

	path, err := wp.SaveEstimates("escape", "../../escape.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.png"), path)
	isPNG(t, path)
}
