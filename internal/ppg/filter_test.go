package ppg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalogFilter_FirstSampleSeeds(t *testing.T) {
	for _, mode := range []FilterMode{FilterEMA, FilterMovingAverage} {
		t.Run(string(mode), func(t *testing.T) {
			f := NewAnalogFilter(mode, 50)
			assert.Equal(t, 1.7, f.Apply(1.7, 5))
		})
	}
}

func TestAnalogFilter_ConvergesMonotonically(t *testing.T) {
	const target = 2.5

	for _, cutoff := range []float64{0.5, 2, 5, 10} {
		f := NewAnalogFilter(FilterEMA, 50)
		f.Apply(0, cutoff)

		prevErr := math.Abs(target - f.Last())
		converged := false
		for i := 0; i < 500; i++ {
			out := f.Apply(target, cutoff)
			err := math.Abs(target - out)
			require.LessOrEqual(t, err, prevErr, "cutoff %.1f tick %d", cutoff, i)
			prevErr = err
			if err < 1e-6 {
				converged = true
				break
			}
		}
		assert.True(t, converged, "cutoff %.1f did not converge", cutoff)
	}
}

func TestAnalogFilter_MovingAverageWindow(t *testing.T) {
	f := NewAnalogFilter(FilterMovingAverage, 50)
	// 50/10 = 5 sample window.
	for i := 1; i <= 10; i++ {
		f.Apply(float64(i), 10)
	}
	assert.InDelta(t, (6.0+7+8+9+10)/5, f.Last(), 1e-12)
}

func TestAnalogFilter_IgnoresNonFinite(t *testing.T) {
	f := NewAnalogFilter(FilterEMA, 50)
	f.Apply(1, 5)
	assert.Equal(t, 1.0, f.Apply(math.NaN(), 5))
	assert.Equal(t, 1.0, f.Apply(math.Inf(1), 5))
}

func TestAnalogFilter_ResetReseeds(t *testing.T) {
	f := NewAnalogFilter(FilterEMA, 50)
	f.Apply(1, 5)
	f.Apply(3, 5)
	f.Reset()
	assert.Equal(t, 9.0, f.Apply(9, 5))
}

func TestAlpha(t *testing.T) {
	a := Alpha(5, 50)
	assert.Greater(t, a, 0.0)
	assert.Less(t, a, 1.0)
	assert.Greater(t, Alpha(10, 50), a, "higher cutoff smooths less")
	assert.Equal(t, 1.0, Alpha(0, 50))
	assert.Equal(t, 1.0, Alpha(math.NaN(), 50))
}

func TestMovingAverageWindow(t *testing.T) {
	assert.Equal(t, 10, MovingAverageWindow(50, 5, 50))
	assert.Equal(t, 1, MovingAverageWindow(50, 80, 50))
	assert.Equal(t, 50, MovingAverageWindow(50, 0.1, 50))
	assert.Equal(t, 1, MovingAverageWindow(50, 0, 50))
}

func TestParseFilterMode(t *testing.T) {
	m, err := ParseFilterMode("")
	require.NoError(t, err)
	assert.Equal(t, FilterEMA, m)

	m, err = ParseFilterMode("Moving_Average")
	require.NoError(t, err)
	assert.Equal(t, FilterMovingAverage, m)

	_, err = ParseFilterMode("kalman")
	assert.Error(t, err)
}
