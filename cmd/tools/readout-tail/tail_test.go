package main

import (
	"bytes"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.lab/internal/monitoring"
	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/ppg/sim"
	"github.com/banshee-data/pulse.lab/internal/readoutmux"
)

const stream = `HR=--,SPO2=--,STATUS=Scanning,SNR=0.0

HR=74,SPO2=97,STATUS=Tracked,SNR=50.0
garbage
HR=76,SPO2=99,STATUS=Tracked,SNR=52.0,FW=2
HR=--,SPO2=--,STATUS=Noise Error,SNR=1.0
`

func TestTail(t *testing.T) {
	monitoring.SetLogger(nil)

	var seen []string
	s, err := tail(strings.NewReader(stream), 0, func(l readoutmux.Line) { seen = append(seen, l.Status) })
	require.NoError(t, err)

	assert.Equal(t, 4, s.Lines)
	assert.Equal(t, 1, s.Malformed)
	want := map[string]int{"Scanning": 1, "Tracked": 2, "Noise Error": 1}
	if diff := cmp.Diff(want, s.Statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Scanning", "Tracked", "Tracked", "Noise Error"}, seen)
	assert.Equal(t, 2, s.HRCount)
	assert.InDelta(t, 75, s.HRMean, 1e-9)
	assert.Equal(t, 74.0, s.HRMin)
	assert.Equal(t, 76.0, s.HRMax)
	assert.InDelta(t, 98, s.SpO2Mean, 1e-9)
	assert.InDelta(t, 25.75, s.SNRMean, 1e-9)
	require.NotNil(t, s.Last)
	assert.Equal(t, "Noise Error", s.Last.Status)
}

func TestTail_MaxLines(t *testing.T) {
	s, err := tail(strings.NewReader(stream), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Lines)
	assert.Equal(t, 1, s.Statuses["Tracked"])
}

func TestTail_Empty(t *testing.T) {
	s, err := tail(strings.NewReader(""), 0, nil)
	require.NoError(t, err)
	assert.Zero(t, s.Lines)
	assert.Nil(t, s.Last)

	var buf bytes.Buffer
	printSummary(&buf, s)
	assert.Contains(t, buf.String(), "HR:   no estimates")
	assert.Contains(t, buf.String(), "SpO2: no estimates")
}

// Lines written by a running engine through the mux parse back.
func TestTail_EngineOutput(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	cfg.Emitter = ppg.EmitterRedIR
	e, err := sim.New(cfg)
	require.NoError(t, err)

	var out bytes.Buffer
	e.AddSink(sim.SinkFunc(func(r sim.Readout) error {
		_, err := out.WriteString(readoutmux.FormatReadout(r) + "\n")
		return err
	}))
	for tick := 0; tick < 10; tick++ {
		for i := 0; i < 25; i++ {
			e.PhysicsTick()
		}
		e.AlgorithmTick()
	}

	s, err := tail(&out, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, s.Lines)
	assert.Zero(t, s.Malformed)
	assert.GreaterOrEqual(t, s.Statuses["Scanning"], 1, "first tick has too few samples")

	var buf bytes.Buffer
	printSummary(&buf, s)
	assert.Contains(t, buf.String(), "Lines: 10 (malformed 0)")
}
