package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpAgeBins_IdentityLaw(t *testing.T) {
	bins := [][]float64{{0, 4}, {5, 17}, {18, 64}, {65, 120}}
	y := []float64{0.3, -1, 7, 2}
	got, err := InterpAgeBins(bins, [][]float64{{0, 4}, {5, 17}, {18, 64}, {65, 120}}, y)
	require.NoError(t, err)
	assert.Equal(t, y, got)
}

func TestInterpAgeBins_Extrapolates(t *testing.T) {
	source := [][]float64{{10, 20}, {20, 30}} // midpoints 15, 25
	target := [][]float64{{0, 10}, {15, 25}, {30, 40}}
	got, err := InterpAgeBins(target, source, []float64{1, 2})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1.5, 3}, got, 1e-12)
}

func TestInterpAgeBins_Errors(t *testing.T) {
	_, err := InterpAgeBins([][]float64{{0, 1}}, [][]float64{{0, 1}, {1, 2}}, []float64{1})
	assert.ErrorContains(t, err, "values for 2 age bins")

	_, err = InterpAgeBins([][]float64{{0, 1}}, [][]float64{{0}, {1, 2}}, []float64{1, 2})
	assert.ErrorContains(t, err, "bounds")
}

func TestInterpAgeBins_SingleSourceBinIsConstant(t *testing.T) {
	got, err := InterpAgeBins([][]float64{{0, 9}, {10, 19}}, [][]float64{{0, 100}}, []float64{4})
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 4}, got)
}

func TestSameBins(t *testing.T) {
	assert.True(t, SameBins([][]float64{{0, 1}}, [][]float64{{0, 1}}))
	assert.False(t, SameBins([][]float64{{0, 1}}, [][]float64{{0, 2}}))
	assert.False(t, SameBins([][]float64{{0, 1}}, [][]float64{{0, 1}, {1, 2}}))
}
