package numeric

import (
	"fmt"
	"math"
	"slices"
)

// Array is a dense, row-major float64 array.
//
// Views returned by Slice0, Squeeze0 and Reshape share the backing data
// with their parent: writes through a view are visible in the parent.
// Every other method that returns an *Array allocates.
type Array struct {
	shape []int
	data  []float64
}

// Zeros allocates a zero-filled array of the given shape.
func Zeros(shape ...int) *Array {
	return &Array{shape: slices.Clone(shape), data: make([]float64, prod(shape))}
}

// Full allocates an array of the given shape with every entry set to v.
func Full(v float64, shape ...int) *Array {
	a := Zeros(shape...)
	a.Fill(v)
	return a
}

// FromSlice wraps data (without copying) as an array of the given shape.
func FromSlice(data []float64, shape ...int) (*Array, error) {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	if prod(shape) != len(data) {
		return nil, fmt.Errorf("cannot view %d values as shape %v", len(data), shape)
	}
	return &Array{shape: slices.Clone(shape), data: data}, nil
}

// MustFromSlice is FromSlice for literals known to be well formed.
func MustFromSlice(data []float64, shape ...int) *Array {
	a, err := FromSlice(data, shape...)
	if err != nil {
		panic(err)
	}
	return a
}

// FromRows copies a ragged-free 2-D slice into a new (len(rows), len(rows[0])) array.
func FromRows(rows [][]float64) (*Array, error) {
	if len(rows) == 0 {
		return Zeros(0, 0), nil
	}
	n := len(rows[0])
	out := Zeros(len(rows), n)
	for i, r := range rows {
		if len(r) != n {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(r), n)
		}
		copy(out.data[i*n:(i+1)*n], r)
	}
	return out, nil
}

// Shape returns a copy of the array's shape.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

// NDim returns the number of axes.
func (a *Array) NDim() int { return len(a.shape) }

// Dim returns the length of axis i.
func (a *Array) Dim(i int) int { return a.shape[i] }

// Size returns the total number of entries.
func (a *Array) Size() int { return len(a.data) }

// Data exposes the backing slice in row-major order.
func (a *Array) Data() []float64 { return a.data }

// SameShape reports whether a and b have identical shapes.
func (a *Array) SameShape(b *Array) bool { return slices.Equal(a.shape, b.shape) }

func (a *Array) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("index %v has %d axes, array has %d", idx, len(idx), len(a.shape)))
	}
	off := 0
	for i, ix := range idx {
		if ix < 0 || ix >= a.shape[i] {
			panic(fmt.Sprintf("index %v out of range for shape %v", idx, a.shape))
		}
		off = off*a.shape[i] + ix
	}
	return off
}

// At returns the entry at idx.
func (a *Array) At(idx ...int) float64 { return a.data[a.offset(idx)] }

// SetAt writes v at idx.
func (a *Array) SetAt(v float64, idx ...int) { a.data[a.offset(idx)] = v }

// Unravel converts a flat row-major offset into a multi-index.
func (a *Array) Unravel(off int) []int {
	idx := make([]int, len(a.shape))
	for i := len(a.shape) - 1; i >= 0; i-- {
		idx[i] = off % a.shape[i]
		off /= a.shape[i]
	}
	return idx
}

// inner is the number of entries per index of the leading axis.
func (a *Array) inner() int {
	if len(a.shape) == 0 {
		return 1
	}
	return prod(a.shape[1:])
}

// Slice0 returns a view of rows [start, stop) of the leading axis.
func (a *Array) Slice0(start, stop int) *Array {
	if start < 0 || stop > a.shape[0] || start > stop {
		panic(fmt.Sprintf("slice [%d:%d] out of range for leading axis %d", start, stop, a.shape[0]))
	}
	in := a.inner()
	shape := slices.Clone(a.shape)
	shape[0] = stop - start
	return &Array{shape: shape, data: a.data[start*in : stop*in]}
}

// Squeeze0 drops a leading axis of length one, returning a view.
func (a *Array) Squeeze0() *Array {
	if len(a.shape) == 0 || a.shape[0] != 1 {
		panic(fmt.Sprintf("cannot squeeze leading axis of shape %v", a.shape))
	}
	return &Array{shape: slices.Clone(a.shape[1:]), data: a.data}
}

// Reshape returns a view with a new shape holding the same number of entries.
func (a *Array) Reshape(shape ...int) (*Array, error) {
	if prod(shape) != len(a.data) {
		return nil, fmt.Errorf("cannot reshape %v into %v", a.shape, shape)
	}
	return &Array{shape: slices.Clone(shape), data: a.data}, nil
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{shape: slices.Clone(a.shape), data: slices.Clone(a.data)}
}

// Fill sets every entry to v.
func (a *Array) Fill(v float64) {
	for i := range a.data {
		a.data[i] = v
	}
}

// Take0 gathers the listed leading-axis rows into a new array.
func (a *Array) Take0(idx []int) *Array {
	in := a.inner()
	shape := slices.Clone(a.shape)
	shape[0] = len(idx)
	out := &Array{shape: shape, data: make([]float64, len(idx)*in)}
	for j, i := range idx {
		copy(out.data[j*in:(j+1)*in], a.data[i*in:(i+1)*in])
	}
	return out
}

// Put0 writes the rows of src into the listed leading-axis rows of a.
// src is broadcast as in Assign against a (len(idx), ...) target.
func (a *Array) Put0(idx []int, src *Array) error {
	in := a.inner()
	shape := slices.Clone(a.shape)
	shape[0] = len(idx)
	tmp := Zeros(shape...)
	if err := tmp.Assign(src); err != nil {
		return err
	}
	for j, i := range idx {
		copy(a.data[i*in:(i+1)*in], tmp.data[j*in:(j+1)*in])
	}
	return nil
}

// Assign copies src into a. src may have a's shape, a trailing suffix of
// a's shape (repeated across the leading axes) or a single entry.
func (a *Array) Assign(src *Array) error {
	switch {
	case len(src.data) == 1:
		a.Fill(src.data[0])
	case slices.Equal(a.shape, src.shape):
		copy(a.data, src.data)
	case len(src.shape) < len(a.shape) && slices.Equal(a.shape[len(a.shape)-len(src.shape):], src.shape):
		n := len(src.data)
		for off := 0; off < len(a.data); off += n {
			copy(a.data[off:off+n], src.data)
		}
	default:
		return fmt.Errorf("cannot broadcast shape %v into %v", src.shape, a.shape)
	}
	return nil
}

// Transpose returns a copy with axes permuted so that axis i of the result
// is axis perm[i] of a.
func (a *Array) Transpose(perm ...int) *Array {
	nd := len(a.shape)
	if len(perm) != nd {
		panic(fmt.Sprintf("permutation %v does not match %d axes", perm, nd))
	}
	strides := make([]int, nd)
	s := 1
	for i := nd - 1; i >= 0; i-- {
		strides[i] = s
		s *= a.shape[i]
	}
	shape := make([]int, nd)
	for i, p := range perm {
		shape[i] = a.shape[p]
	}
	out := Zeros(shape...)
	idx := make([]int, nd)
	for o := range out.data {
		src := 0
		for i := 0; i < nd; i++ {
			src += idx[i] * strides[perm[i]]
		}
		out.data[o] = a.data[src]
		for i := nd - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

// MoveAxis returns a copy with axis from relocated to position to.
func (a *Array) MoveAxis(from, to int) *Array {
	nd := len(a.shape)
	from, to = normAxis(from, nd), normAxis(to, nd)
	perm := make([]int, 0, nd)
	for i := 0; i < nd; i++ {
		if i != from {
			perm = append(perm, i)
		}
	}
	perm = slices.Insert(perm, to, from)
	return a.Transpose(perm...)
}

// NonFinite returns the flat offsets of NaN or infinite entries.
func (a *Array) NonFinite() []int {
	var out []int
	for i, v := range a.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out = append(out, i)
		}
	}
	return out
}

func normAxis(axis, nd int) int {
	if axis < 0 {
		axis += nd
	}
	if axis < 0 || axis >= nd {
		panic(fmt.Sprintf("axis %d out of range for %d axes", axis, nd))
	}
	return axis
}

func prod(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
