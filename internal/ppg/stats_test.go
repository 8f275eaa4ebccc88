package ppg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestACDC(t *testing.T) {
	ac, dc := ACDC([]float64{1, 3, 1, 3})
	assert.InDelta(t, 2.0, dc, 1e-12)
	assert.InDelta(t, 1.0, ac, 1e-12)

	ac, dc = ACDC(nil)
	assert.Zero(t, ac)
	assert.Zero(t, dc)
}

func TestNormalize(t *testing.T) {
	out, ok := Normalize([]float64{2, 4, 6})
	assert.True(t, ok)
	assert.InDelta(t, 0, Mean(out), 1e-12)
	ac, _ := ACDC(out)
	assert.InDelta(t, 1, ac, 1e-12)

	_, ok = Normalize([]float64{5, 5, 5})
	assert.False(t, ok)
	_, ok = Normalize(nil)
	assert.False(t, ok)
}

func TestMeanSubtract_DoesNotMutate(t *testing.T) {
	in := []float64{1, 2, 3}
	out := MeanSubtract(in)
	assert.Equal(t, []float64{1, 2, 3}, in)
	assert.Equal(t, []float64{-1, 0, 1}, out)
}

func TestAllFinite(t *testing.T) {
	assert.True(t, AllFinite([]float64{1, 2}))
	assert.False(t, AllFinite([]float64{1, math.NaN()}))
	assert.False(t, AllFinite([]float64{math.Inf(-1)}))
}
