// Package params holds the nested parameter configuration of a model and
// the sampler that turns a distributional configuration into the concrete
// parameter set of one Monte Carlo run.
//
// A Tree is an ordered mapping. Values are either child trees or leaves:
// float64, []float64, [][]float64, string, bool or nil. Keys are addressed
// with dotted paths ("model.structure.age_bins").
package params

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Sep separates the components of a dotted path.
const Sep = "."

// Tree is an ordered, nested mapping of named parameters.
type Tree struct {
	keys []string
	vals map[string]any
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{vals: make(map[string]any)}
}

// FromMap builds a tree from nested map[string]any values. Keys are
// inserted in sorted order since Go maps carry none.
func FromMap(m map[string]any) *Tree {
	t := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if sub, ok := m[k].(map[string]any); ok {
			t.setLocal(k, FromMap(sub))
		} else {
			t.setLocal(k, normalizeLeaf(m[k]))
		}
	}
	return t
}

// Len returns the number of direct children.
func (t *Tree) Len() int { return len(t.keys) }

// Keys returns the direct child keys in insertion order.
func (t *Tree) Keys() []string { return slices.Clone(t.keys) }

// HasKey reports whether key is a direct child.
func (t *Tree) HasKey(key string) bool {
	_, ok := t.vals[key]
	return ok
}

// ContainsAll reports whether every key is a direct child.
func (t *Tree) ContainsAll(keys ...string) bool {
	for _, k := range keys {
		if !t.HasKey(k) {
			return false
		}
	}
	return true
}

// Has reports whether a dotted path resolves.
func (t *Tree) Has(path string) bool {
	_, ok := t.Get(path)
	return ok
}

// Get resolves a dotted path.
func (t *Tree) Get(path string) (any, bool) {
	cur := t
	parts := strings.Split(path, Sep)
	for i, p := range parts {
		v, ok := cur.vals[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		sub, ok := v.(*Tree)
		if !ok {
			return nil, false
		}
		cur = sub
	}
	return nil, false
}

// Sub resolves a dotted path to a child tree.
func (t *Tree) Sub(path string) (*Tree, bool) {
	v, ok := t.Get(path)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*Tree)
	return sub, ok
}

// Set stores v at a dotted path, creating intermediate trees as needed.
func (t *Tree) Set(path string, v any) error {
	parts := strings.Split(path, Sep)
	cur := t
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur.vals[p]
		if !ok {
			sub := New()
			cur.setLocal(p, sub)
			cur = sub
			continue
		}
		sub, ok := next.(*Tree)
		if !ok {
			return fmt.Errorf("cannot set %q: %q holds a %T, not a mapping", path, p, next)
		}
		cur = sub
	}
	cur.setLocal(parts[len(parts)-1], normalizeLeaf(v))
	return nil
}

// Delete removes a dotted path, reporting whether it existed.
func (t *Tree) Delete(path string) bool {
	parts := strings.Split(path, Sep)
	parent := t
	if len(parts) > 1 {
		var ok bool
		parent, ok = t.Sub(strings.Join(parts[:len(parts)-1], Sep))
		if !ok {
			return false
		}
	}
	key := parts[len(parts)-1]
	if _, ok := parent.vals[key]; !ok {
		return false
	}
	delete(parent.vals, key)
	parent.keys = slices.DeleteFunc(parent.keys, func(k string) bool { return k == key })
	return true
}

func (t *Tree) setLocal(key string, v any) {
	if _, ok := t.vals[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.vals[key] = v
}

// Float reads a scalar at path.
func (t *Tree) Float(path string) (float64, error) {
	v, ok := t.Get(path)
	if !ok {
		return 0, fmt.Errorf("parameter %q not found", path)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case []float64:
		if len(x) == 1 {
			return x[0], nil
		}
	}
	return 0, fmt.Errorf("parameter %q is a %T, want a scalar", path, v)
}

// Int reads an integral scalar at path.
func (t *Tree) Int(path string) (int, error) {
	f, err := t.Float(path)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("parameter %q = %v is not an integer", path, f)
	}
	return int(f), nil
}

// Floats reads a vector at path; scalars are returned as a single entry.
func (t *Tree) Floats(path string) ([]float64, error) {
	v, ok := t.Get(path)
	if !ok {
		return nil, fmt.Errorf("parameter %q not found", path)
	}
	switch x := v.(type) {
	case float64:
		return []float64{x}, nil
	case []float64:
		return slices.Clone(x), nil
	}
	return nil, fmt.Errorf("parameter %q is a %T, want numbers", path, v)
}

// Bins reads a list of [lo, hi] pairs at path.
func (t *Tree) Bins(path string) ([][]float64, error) {
	v, ok := t.Get(path)
	if !ok {
		return nil, fmt.Errorf("parameter %q not found", path)
	}
	bins, ok := v.([][]float64)
	if !ok {
		return nil, fmt.Errorf("parameter %q is a %T, want a list of [lo, hi] pairs", path, v)
	}
	return bins, nil
}

// Clone returns a deep copy.
func (t *Tree) Clone() *Tree {
	out := &Tree{keys: slices.Clone(t.keys), vals: make(map[string]any, len(t.vals))}
	for k, v := range t.vals {
		out.vals[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case *Tree:
		return x.Clone()
	case []float64:
		return slices.Clone(x)
	case [][]float64:
		out := make([][]float64, len(x))
		for i, r := range x {
			out[i] = slices.Clone(r)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Update merges other into t: mappings merge recursively, everything else
// overwrites. It returns t.
func (t *Tree) Update(other *Tree) *Tree {
	for _, k := range other.keys {
		ov := other.vals[k]
		if osub, ok := ov.(*Tree); ok {
			if sub, ok := t.vals[k].(*Tree); ok {
				sub.Update(osub)
				continue
			}
			t.setLocal(k, osub.Clone())
			continue
		}
		t.setLocal(k, cloneValue(ov))
	}
	return t
}

// Flatten returns every leaf keyed by its dotted path.
func (t *Tree) Flatten() map[string]any {
	out := make(map[string]any)
	t.flatten("", out)
	return out
}

func (t *Tree) flatten(prefix string, out map[string]any) {
	for _, k := range t.keys {
		path := k
		if prefix != "" {
			path = prefix + Sep + k
		}
		if sub, ok := t.vals[k].(*Tree); ok {
			sub.flatten(path, out)
		} else {
			out[path] = t.vals[k]
		}
	}
}

// Apply returns a transformed deep copy of t. Every descendant mapping for
// which match returns true is replaced by the result of fn and not
// descended into; other mappings are walked recursively. The receiver is
// never modified, including when fn fails.
func (t *Tree) Apply(match func(*Tree) bool, fn func(path string, node *Tree) (any, error)) (*Tree, error) {
	out := t.Clone()
	if err := out.apply("", match, fn); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tree) apply(prefix string, match func(*Tree) bool, fn func(string, *Tree) (any, error)) error {
	for _, k := range t.keys {
		sub, ok := t.vals[k].(*Tree)
		if !ok {
			continue
		}
		path := k
		if prefix != "" {
			path = prefix + Sep + k
		}
		if match(sub) {
			v, err := fn(path, sub)
			if err != nil {
				return err
			}
			t.vals[k] = normalizeLeaf(v)
			continue
		}
		if err := sub.apply(path, match, fn); err != nil {
			return err
		}
	}
	return nil
}

// Contains returns a match predicate for Apply selecting mappings that
// hold every listed key.
func Contains(keys ...string) func(*Tree) bool {
	return func(t *Tree) bool { return t.ContainsAll(keys...) }
}

// normalizeLeaf folds the numeric types produced by decoders and callers
// into float64, []float64 and [][]float64.
func normalizeLeaf(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case []int:
		out := make([]float64, len(x))
		for i, e := range x {
			out[i] = float64(e)
		}
		return out
	case []any:
		return normalizeList(x)
	case map[string]any:
		return FromMap(x)
	default:
		return v
	}
}

func normalizeList(xs []any) any {
	if len(xs) == 0 {
		return []float64{}
	}
	items := make([]any, len(xs))
	nums := make([]float64, 0, len(xs))
	rows := make([][]float64, 0, len(xs))
	for i, e := range xs {
		items[i] = normalizeLeaf(e)
		switch n := items[i].(type) {
		case float64:
			nums = append(nums, n)
		case []float64:
			rows = append(rows, n)
		}
	}
	switch {
	case len(nums) == len(xs):
		return nums
	case len(rows) == len(xs):
		return rows
	default:
		return items
	}
}
