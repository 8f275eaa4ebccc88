package readoutmux

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.lab/internal/ppg/estimate"
	"github.com/banshee-data/pulse.lab/internal/ppg/sim"
)

func ip(v int) *int { return &v }

func TestFormatReadout(t *testing.T) {
	tests := []struct {
		name string
		in   sim.Readout
		want string
	}{
		{
			name: "scanning",
			in:   sim.Readout{Result: estimate.Result{Status: estimate.StatusScanning}},
			want: "HR=--,SPO2=--,STATUS=Scanning,SNR=0.0",
		},
		{
			name: "tracked with spo2",
			in: sim.Readout{
				Result: estimate.Result{HeartRateBPM: ip(75), Status: estimate.StatusTracked},
				SpO2:   estimate.SpO2Result{Percentage: ip(98)},
				SNR:    53.98,
			},
			want: "HR=75,SPO2=98,STATUS=Tracked,SNR=54.0",
		},
		{
			name: "noise error",
			in:   sim.Readout{Result: estimate.Result{Status: estimate.StatusNoiseError}, SNR: 1.24},
			want: "HR=--,SPO2=--,STATUS=Noise Error,SNR=1.2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatReadout(tt.in))
		})
	}
}

func TestParseLine(t *testing.T) {
	got, err := ParseLine("HR=75,SPO2=98,STATUS=Tracked,SNR=54.0\n")
	require.NoError(t, err)
	want := Line{HeartRateBPM: ip(75), SpO2Pct: ip(98), Status: "Tracked", SNR: 54}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseLine mismatch (-want +got):\n%s", diff)
	}

	got, err = ParseLine("HR=--,SPO2=--,STATUS=Weak Signal,SNR=0.0,FW=2")
	require.NoError(t, err)
	assert.Nil(t, got.HeartRateBPM)
	assert.Nil(t, got.SpO2Pct)
	assert.Equal(t, "Weak Signal", got.Status)
}

func TestParseLine_Errors(t *testing.T) {
	for _, line := range []string{
		"",
		"HR=75",
		"HR=x,SPO2=98,STATUS=Tracked,SNR=1",
		"HR=75,SPO2=98,STATUS=Tracked,SNR=loud",
		"HR=75,SPO2,STATUS=Tracked,SNR=1",
	} {
		_, err := ParseLine(line)
		assert.Error(t, err, "line %q", line)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	r := sim.Readout{
		Result: estimate.Result{HeartRateBPM: ip(120), Status: estimate.StatusLocked},
		SNR:    12.5,
	}
	got, err := ParseLine(FormatReadout(r))
	require.NoError(t, err)
	require.NotNil(t, got.HeartRateBPM)
	assert.Equal(t, 120, *got.HeartRateBPM)
	assert.Equal(t, "Locked", got.Status)
	assert.InDelta(t, 12.5, got.SNR, 0.05)
}
