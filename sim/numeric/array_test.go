package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArray_Slice0SharesData(t *testing.T) {
	a := Zeros(4, 2, 3)
	v := a.Slice0(1, 3)
	assert.Equal(t, []int{2, 2, 3}, v.Shape())

	v.SetAt(7, 0, 1, 2)
	assert.Equal(t, 7.0, a.At(1, 1, 2), "write through view must reach parent")
}

func TestArray_Squeeze0(t *testing.T) {
	a := Zeros(3, 2, 2)
	s := a.Slice0(2, 3).Squeeze0()
	assert.Equal(t, []int{2, 2}, s.Shape())
	s.Fill(1.5)
	assert.Equal(t, 1.5, a.At(2, 0, 0))
	assert.Equal(t, 0.0, a.At(1, 0, 0))

	assert.Panics(t, func() { a.Squeeze0() })
}

func TestArray_TakePut(t *testing.T) {
	a := MustFromSlice([]float64{0, 1, 2, 3, 4, 5}, 3, 2)
	got := a.Take0([]int{2, 0})
	assert.Equal(t, []float64{4, 5, 0, 1}, got.Data())

	got.SetAt(99, 0, 0)
	assert.Equal(t, 4.0, a.At(2, 0), "Take0 must copy")

	require.NoError(t, a.Put0([]int{0, 2}, MustFromSlice([]float64{-1, -2}, 2)))
	assert.Equal(t, []float64{-1, -2, 2, 3, -1, -2}, a.Data())
}

func TestArray_AssignBroadcast(t *testing.T) {
	tests := []struct {
		name    string
		src     *Array
		want    []float64
		wantErr bool
	}{
		{"same shape", MustFromSlice([]float64{1, 2, 3, 4}, 2, 2), []float64{1, 2, 3, 4}, false},
		{"suffix", MustFromSlice([]float64{5, 6}, 2), []float64{5, 6, 5, 6}, false},
		{"single", MustFromSlice([]float64{9}, 1), []float64{9, 9, 9, 9}, false},
		{"mismatch", MustFromSlice([]float64{1, 2, 3}, 3), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := Zeros(2, 2)
			err := dst.Assign(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, dst.Data())
		})
	}
}

func TestArray_MoveAxis(t *testing.T) {
	// (2, 3) -> (3, 2)
	a := MustFromSlice([]float64{0, 1, 2, 3, 4, 5}, 2, 3)
	m := a.MoveAxis(0, -1)
	assert.Equal(t, []int{3, 2}, m.Shape())
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			assert.Equal(t, a.At(i, j), m.At(j, i))
		}
	}

	b := Zeros(2, 3, 4)
	for off := range b.Data() {
		b.Data()[off] = float64(off)
	}
	back := b.MoveAxis(1, 2).MoveAxis(2, 1)
	assert.Equal(t, b.Data(), back.Data())
}

func TestArray_NonFinite(t *testing.T) {
	a := MustFromSlice([]float64{1, math.NaN(), 3, math.Inf(-1)}, 2, 2)
	assert.Equal(t, []int{1, 3}, a.NonFinite())
	assert.Equal(t, []int{1, 1}, a.Unravel(3))
}

func TestFromSlice_ShapeMismatch(t *testing.T) {
	_, err := FromSlice([]float64{1, 2, 3}, 2, 2)
	assert.Error(t, err)

	_, err = FromRows([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
}
