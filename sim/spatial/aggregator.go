package spatial

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/bucky-sim/bucky/sim/numeric"
)

// Mask selects a subset of fine regions for a reduction. An array passed
// with a mask either spans every fine region, or holds only the selected
// regions' rows in ascending region order.
type Mask interface {
	// Regions returns the selected fine-region indices out of n, sorted
	// and without duplicates.
	Regions(n int) ([]int, error)
}

// BoolMask selects fine region i when m[i] is true.
type BoolMask []bool

func (m BoolMask) Regions(n int) ([]int, error) {
	if len(m) != n {
		return nil, fmt.Errorf("mask has %d entries for %d fine regions", len(m), n)
	}
	var out []int
	for i, keep := range m {
		if keep {
			out = append(out, i)
		}
	}
	return out, nil
}

// IndexMask selects the listed fine regions. Order is irrelevant; a
// region listed twice is an error.
type IndexMask []int

func (m IndexMask) Regions(n int) ([]int, error) {
	out := slices.Clone([]int(m))
	slices.Sort(out)
	for k, i := range out {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("mask index %d out of range [0, %d)", i, n)
		}
		if k > 0 && out[k-1] == i {
			return nil, fmt.Errorf("mask selects fine region %d twice", i)
		}
	}
	return out, nil
}

// Aggregator reduces arrays indexed by fine region along their leading
// axis into arrays indexed by coarse region (or the whole country).
type Aggregator struct {
	hierarchy *Hierarchy
	backend   numeric.Backend
	cache     Cache
}

// NewAggregator returns an aggregator over h. cache may be nil, in which
// case ReduceToParentCached falls back to an in-process MemoryCache.
func NewAggregator(h *Hierarchy, backend numeric.Backend, cache Cache) *Aggregator {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Aggregator{hierarchy: h, backend: backend, cache: cache}
}

// Hierarchy returns the mapping the aggregator reduces over.
func (a *Aggregator) Hierarchy() *Hierarchy { return a.hierarchy }

// ReduceToParent sums the rows of arr belonging to each coarse region.
// The output has NCoarse() rows; coarse regions with no contributing fine
// region are zero. With a mask, only the selected fine regions
// contribute: arr may then hold either every fine region or just the
// selected ones, in mask order.
func (a *Aggregator) ReduceToParent(arr *numeric.Array, mask Mask) (*numeric.Array, error) {
	fine, src, err := a.selection(arr, mask)
	if err != nil {
		return nil, err
	}
	parents := make([]int, len(fine))
	for i, f := range fine {
		parents[i] = a.hierarchy.Parent(f)
	}
	shape := arr.Shape()
	shape[0] = a.hierarchy.NCoarse()
	out := a.backend.Zeros(shape...)
	if err := a.backend.ScatterAdd(out, parents, src); err != nil {
		return nil, fmt.Errorf("reduce to parent: %w", err)
	}
	return out, nil
}

// ReduceToParentCached is ReduceToParent memoized by the content of arr
// and mask. Cache failures are logged and the reduction is recomputed.
func (a *Aggregator) ReduceToParentCached(arr *numeric.Array, mask Mask) (*numeric.Array, error) {
	kind := a.cache.Type()
	key, err := a.cacheKey(arr, mask)
	if err != nil {
		return nil, err
	}
	cached, ok, err := a.cache.Get(key)
	if err != nil {
		reduceCacheErrors.WithLabelValues(kind, "read").Inc()
		logrus.Warnf("reduction cache read error for %s: %v", key, err)
	}
	if ok {
		reduceCacheHits.WithLabelValues(kind).Inc()
		return cached, nil
	}
	reduceCacheMisses.WithLabelValues(kind).Inc()

	out, err := a.ReduceToParent(arr, mask)
	if err != nil {
		return nil, err
	}
	if err := a.cache.Put(key, out); err != nil {
		reduceCacheErrors.WithLabelValues(kind, "write").Inc()
		logrus.Warnf("reduction cache write error for %s: %v", key, err)
	}
	return out, nil
}

// ReduceToCountry sums arr over its leading (fine region) axis.
func (a *Aggregator) ReduceToCountry(arr *numeric.Array) (*numeric.Array, error) {
	if arr.NDim() == 0 || arr.Dim(0) != a.hierarchy.NFine() {
		return nil, fmt.Errorf("reduce to country: leading axis of %v is not %d fine regions", arr.Shape(), a.hierarchy.NFine())
	}
	return a.backend.SumAxis0(arr), nil
}

// ReduceAxis is ReduceToParent over an arbitrary axis of arr; the result
// keeps that axis in place, now indexed by coarse region.
func (a *Aggregator) ReduceAxis(arr *numeric.Array, axis int, mask Mask) (*numeric.Array, error) {
	if arr.NDim() == 0 {
		return nil, fmt.Errorf("reduce axis: scalar array")
	}
	if axis < 0 {
		axis += arr.NDim()
	}
	if axis < 0 || axis >= arr.NDim() {
		return nil, fmt.Errorf("reduce axis: axis out of range for shape %v", arr.Shape())
	}
	if axis == 0 {
		return a.ReduceToParent(arr, mask)
	}
	out, err := a.ReduceToParent(arr.MoveAxis(axis, 0), mask)
	if err != nil {
		return nil, err
	}
	return out.MoveAxis(0, axis), nil
}

// selection resolves mask into the contributing fine regions and the
// matching rows of arr.
func (a *Aggregator) selection(arr *numeric.Array, mask Mask) ([]int, *numeric.Array, error) {
	n := a.hierarchy.NFine()
	if arr.NDim() == 0 {
		return nil, nil, fmt.Errorf("reduce to parent: scalar array")
	}
	if mask == nil {
		if arr.Dim(0) != n {
			return nil, nil, fmt.Errorf("reduce to parent: leading axis of %v is not %d fine regions", arr.Shape(), n)
		}
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, arr, nil
	}
	fine, err := mask.Regions(n)
	if err != nil {
		return nil, nil, err
	}
	// A full-length array always takes precedence. When every region is
	// selected the two readings coincide, since fine is sorted.
	switch arr.Dim(0) {
	case n:
		return fine, arr.Take0(fine), nil
	case len(fine):
		return fine, arr, nil
	default:
		return nil, nil, fmt.Errorf("reduce to parent: leading axis %d matches neither %d fine regions nor %d masked", arr.Dim(0), n, len(fine))
	}
}

// cacheKey hashes the hierarchy, the array and the mask.
func (a *Aggregator) cacheKey(arr *numeric.Array, mask Mask) (string, error) {
	h := sha256.New()
	writeInts := func(xs []int) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(len(xs)))
		h.Write(b[:])
		for _, x := range xs {
			binary.LittleEndian.PutUint64(b[:], uint64(x))
			h.Write(b[:])
		}
	}
	writeInts(a.hierarchy.fingerprint())
	writeInts(arr.Shape())
	var b [8]byte
	for _, v := range arr.Data() {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		h.Write(b[:])
	}
	if mask != nil {
		fine, err := mask.Regions(a.hierarchy.NFine())
		if err != nil {
			return "", err
		}
		writeInts(fine)
	} else {
		writeInts([]int{-1})
	}
	return "reduce:" + hex.EncodeToString(h.Sum(nil)), nil
}
