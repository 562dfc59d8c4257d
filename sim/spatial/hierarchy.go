// Package spatial rolls per-region arrays up the administrative hierarchy:
// fine regions (adm2) to their parents (adm1) and to a single country (adm0).
package spatial

import (
	"fmt"
	"slices"
)

// FIPSStateDivisor maps a county FIPS code to its state code.
const FIPSStateDivisor = 1000

// Hierarchy is an immutable many-to-one mapping from dense fine-region
// indices 0..NFine()-1 to dense coarse-region indices 0..NCoarse()-1.
// Every coarse region belongs to the single country.
type Hierarchy struct {
	country   string
	fineIDs   []int
	coarseIDs []int
	parent    []int
}

// NewHierarchy builds a hierarchy from parallel lists of external ids:
// fineIDs[i] belongs to coarse region coarseOf[i]. Fine regions keep
// their list position as dense index; coarse ids are re-indexed densely
// in ascending order.
func NewHierarchy(country string, fineIDs, coarseOf []int) (*Hierarchy, error) {
	if len(fineIDs) != len(coarseOf) {
		return nil, fmt.Errorf("hierarchy: %d fine ids but %d parent ids", len(fineIDs), len(coarseOf))
	}
	seen := make(map[int]struct{}, len(fineIDs))
	for _, id := range fineIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("hierarchy: duplicate fine region id %d", id)
		}
		seen[id] = struct{}{}
	}

	coarse := slices.Clone(coarseOf)
	slices.Sort(coarse)
	coarse = slices.Compact(coarse)

	parent := make([]int, len(coarseOf))
	for i, c := range coarseOf {
		parent[i], _ = slices.BinarySearch(coarse, c)
	}
	return &Hierarchy{
		country:   country,
		fineIDs:   slices.Clone(fineIDs),
		coarseIDs: coarse,
		parent:    parent,
	}, nil
}

// HierarchyFromFIPS derives the parent of every county FIPS code as its
// state code (fips / 1000).
func HierarchyFromFIPS(country string, fips []int) (*Hierarchy, error) {
	coarse := make([]int, len(fips))
	for i, f := range fips {
		if f < 0 {
			return nil, fmt.Errorf("hierarchy: negative FIPS code %d", f)
		}
		coarse[i] = f / FIPSStateDivisor
	}
	return NewHierarchy(country, fips, coarse)
}

// Country returns the name of the root region.
func (h *Hierarchy) Country() string { return h.country }

// NFine returns the number of fine regions.
func (h *Hierarchy) NFine() int { return len(h.fineIDs) }

// NCoarse returns the number of coarse regions.
func (h *Hierarchy) NCoarse() int { return len(h.coarseIDs) }

// Parent returns the dense coarse index of fine region i.
func (h *Hierarchy) Parent(i int) int { return h.parent[i] }

// Parents returns the dense coarse index of every fine region.
func (h *Hierarchy) Parents() []int { return slices.Clone(h.parent) }

// FineIDs returns the external fine-region ids in dense order.
func (h *Hierarchy) FineIDs() []int { return slices.Clone(h.fineIDs) }

// CoarseIDs returns the external coarse-region ids in dense order.
func (h *Hierarchy) CoarseIDs() []int { return slices.Clone(h.coarseIDs) }

// Children returns the fine regions of dense coarse region c, ascending.
func (h *Hierarchy) Children(c int) []int {
	var out []int
	for i, p := range h.parent {
		if p == c {
			out = append(out, i)
		}
	}
	return out
}

// fingerprint identifies the mapping in cache keys.
func (h *Hierarchy) fingerprint() []int {
	out := make([]int, 0, 2+len(h.parent))
	out = append(out, len(h.parent), len(h.coarseIDs))
	return append(out, h.parent...)
}
