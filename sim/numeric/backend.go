// Package numeric provides the array capability shared by every simulation
// component: a dense float64 Array and a Backend that runs reductions,
// element-wise maps, scatter-adds and convolutions over it.
//
// Two backends exist. Host runs every kernel inline on the calling
// goroutine. Parallel plays the accelerator role: kernels are split across
// a fixed pool of workers and launches are serialized on a single device
// lock. A backend is selected once at startup (see New) and handed to each
// component at construction.
package numeric

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Backend names accepted by New.
const (
	BackendHost     = "host"
	BackendParallel = "parallel"
)

// Backend is the numeric-array capability passed to each component.
type Backend interface {
	// Name identifies the implementation ("host" or "parallel").
	Name() string
	// Zeros allocates a zero-filled array.
	Zeros(shape ...int) *Array
	// ZerosLike allocates a zero-filled array shaped like a.
	ZerosLike(a *Array) *Array
	// Sum reduces every entry of a.
	Sum(a *Array) float64
	// SumAxis0 reduces the leading axis, returning an array of shape a.shape[1:].
	SumAxis0(a *Array) *Array
	// Map applies fn element-wise into a new array.
	Map(a *Array, fn func(float64) float64) *Array
	// ScatterAdd accumulates row i of src into row idx[i] of out.
	ScatterAdd(out *Array, idx []int, src *Array) error
	// ConvolveRows convolves every row of a 2-D array with kernel in
	// valid mode, returning (rows, cols-len(kernel)+1).
	ConvolveRows(rows *Array, kernel []float64) (*Array, error)
	// Random exposes the backend's named random-sampling functions.
	Random() RandomNamespace
}

// New returns the backend registered under name.
func New(name string, workers int) (Backend, error) {
	switch name {
	case "", BackendHost:
		return NewHost(), nil
	case BackendParallel:
		return NewParallel(workers), nil
	default:
		return nil, fmt.Errorf("unknown numeric backend %q; valid: %s, %s", name, BackendHost, BackendParallel)
	}
}

// Host runs every kernel on the calling goroutine.
type Host struct {
	random RandomNamespace
}

// NewHost returns the host-memory backend.
func NewHost() *Host {
	return &Host{random: defaultRandom}
}

func (h *Host) Name() string { return BackendHost }

func (h *Host) Zeros(shape ...int) *Array { return Zeros(shape...) }

func (h *Host) ZerosLike(a *Array) *Array { return Zeros(a.shape...) }

func (h *Host) Sum(a *Array) float64 { return floats.Sum(a.data) }

func (h *Host) SumAxis0(a *Array) *Array {
	out := Zeros(a.shape[1:]...)
	sumRows(out.data, a, 0, a.inner())
	return out
}

func (h *Host) Map(a *Array, fn func(float64) float64) *Array {
	out := Zeros(a.shape...)
	mapRange(out.data, a.data, fn, 0, len(a.data))
	return out
}

func (h *Host) ScatterAdd(out *Array, idx []int, src *Array) error {
	if err := checkScatter(out, idx, src); err != nil {
		return err
	}
	scatterCols(out, idx, src, 0, src.inner())
	return nil
}

func (h *Host) ConvolveRows(rows *Array, kernel []float64) (*Array, error) {
	out, err := convolveShape(rows, kernel)
	if err != nil {
		return nil, err
	}
	rev := reversed(kernel)
	for r := 0; r < rows.shape[0]; r++ {
		convolveRow(out, rows, rev, r)
	}
	return out, nil
}

func (h *Host) Random() RandomNamespace { return h.random }

// sumRows adds every leading-axis row of a into dst over columns [lo, hi).
func sumRows(dst []float64, a *Array, lo, hi int) {
	in := a.inner()
	for r := 0; r < a.shape[0]; r++ {
		floats.Add(dst[lo:hi], a.data[r*in+lo:r*in+hi])
	}
}

func mapRange(dst, src []float64, fn func(float64) float64, lo, hi int) {
	for i := lo; i < hi; i++ {
		dst[i] = fn(src[i])
	}
}

func checkScatter(out *Array, idx []int, src *Array) error {
	if src.NDim() == 0 || len(idx) != src.shape[0] {
		return fmt.Errorf("scatter-add: %d indices for source shape %v", len(idx), src.shape)
	}
	if !slices.Equal(out.shape[1:], src.shape[1:]) {
		return fmt.Errorf("scatter-add: source shape %v does not match output %v past the leading axis", src.shape, out.shape)
	}
	for _, i := range idx {
		if i < 0 || i >= out.shape[0] {
			return fmt.Errorf("scatter-add: index %d out of range [0, %d)", i, out.shape[0])
		}
	}
	return nil
}

// scatterCols accumulates columns [lo, hi) of each source row.
func scatterCols(out *Array, idx []int, src *Array, lo, hi int) {
	in := src.inner()
	for r, c := range idx {
		floats.Add(out.data[c*in+lo:c*in+hi], src.data[r*in+lo:r*in+hi])
	}
}

func convolveShape(rows *Array, kernel []float64) (*Array, error) {
	if rows.NDim() != 2 {
		return nil, fmt.Errorf("convolve: want a 2-D array, got shape %v", rows.shape)
	}
	if len(kernel) == 0 || len(kernel) > rows.shape[1] {
		return nil, fmt.Errorf("convolve: kernel length %d invalid for rows of length %d", len(kernel), rows.shape[1])
	}
	return Zeros(rows.shape[0], rows.shape[1]-len(kernel)+1), nil
}

// convolveRow writes the valid-mode convolution of row r. rev is the
// kernel already reversed so each output is a plain dot product.
func convolveRow(out, rows *Array, rev []float64, r int) {
	n, m := rows.shape[1], out.shape[1]
	row := rows.data[r*n : (r+1)*n]
	dst := out.data[r*m : (r+1)*m]
	for i := range dst {
		dst[i] = floats.Dot(row[i:i+len(rev)], rev)
	}
}

func reversed(k []float64) []float64 {
	rev := slices.Clone(k)
	slices.Reverse(rev)
	return rev
}
