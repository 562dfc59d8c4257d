package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/bucky-sim/bucky/sim/numeric"
)

func TestTruncNorm_RespectsBounds(t *testing.T) {
	rng := NewRand(3)
	v, err := truncNorm(rng, numeric.Kwargs{"loc": 0.0, "scale": 1.0, "a_min": -0.5, "a_max": 0.25, "size": 2000.0})
	require.NoError(t, err)
	for _, x := range v.([]float64) {
		assert.True(t, x >= -0.5 && x <= 0.25, "draw %v outside bounds", x)
	}
}

func TestTruncNorm_UnboundedMean(t *testing.T) {
	rng := NewRand(11)
	v, err := truncNorm(rng, numeric.Kwargs{"loc": 10.0, "scale": 2.0, "size": 5000.0})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, stat.Mean(v.([]float64), nil), 0.1)
}

func TestTruncNorm_ZeroScaleAndErrors(t *testing.T) {
	rng := NewRand(1)
	v, err := truncNorm(rng, numeric.Kwargs{"loc": 5.0, "scale": 0.0, "a_max": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	_, err = truncNorm(rng, numeric.Kwargs{"loc": 0.0, "a_min": 2.0, "a_max": 1.0})
	assert.ErrorContains(t, err, "exceeds")
	_, err = truncNorm(rng, numeric.Kwargs{"loc": 0.0, "scale": -1.0})
	assert.ErrorContains(t, err, "non-negative")
}

func TestTruncNorm_BroadcastsPerAge(t *testing.T) {
	v, err := truncNorm(NewRand(5), numeric.Kwargs{"loc": []float64{1, 100}, "scale": []float64{0, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 100}, v)
}

func TestMPERT(t *testing.T) {
	rng := NewRand(9)
	v, err := mPERT(rng, numeric.Kwargs{"mu": 0.3, "a": 0.0, "b": 1.0, "size": 4000.0})
	require.NoError(t, err)
	xs := v.([]float64)
	for _, x := range xs {
		assert.True(t, x >= 0 && x <= 1)
	}
	// mean of the modified PERT is (a + gamma*mu + b) / (gamma + 2)
	assert.InDelta(t, (0+4*0.3+1)/6.0, stat.Mean(xs, nil), 0.02)

	_, err = mPERT(rng, numeric.Kwargs{"mu": 2.0})
	assert.ErrorContains(t, err, "a <= mu <= b")
	_, err = mPERT(rng, numeric.Kwargs{})
	assert.ErrorContains(t, err, "missing required")
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{DistMPERT, DistTruncatedNormal, DistTruncNorm}, reg.Names())
}
