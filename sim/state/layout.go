// Package state holds the compartment state vector of the SEIR-family
// model: a (compartment bins x age groups x regions) array addressed by
// compartment name.
package state

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bucky-sim/bucky/sim/params"
)

// Primitive compartments, in layout order.
const (
	S    = "S"    // susceptible
	R    = "R"    // recovered
	D    = "D"    // dead
	IncH = "incH" // incident hospitalizations
	IncC = "incC" // incident reported cases
	I    = "I"    // symptomatic infectious
	Ic   = "Ic"   // critical infectious
	Ia   = "Ia"   // asymptomatic infectious
	E    = "E"    // exposed
	Rh   = "Rh"   // hospitalized, recovering
)

// Composite groups derived from the primitive layout.
const (
	N    = "N"    // conserved population: every non-incidence compartment
	Itot = "Itot" // all infectious compartments
	H    = "H"    // hospitalized: critical infectious plus recovering
)

const incidencePrefix = "inc"

// Constants are the Erlang shape parameters that set the bin count of
// every multi-bin compartment.
type Constants struct {
	EGammaK  int `yaml:"E_gamma_k"`
	IGammaK  int `yaml:"I_gamma_k"`
	RhGammaK int `yaml:"Rh_gamma_k"`
}

// Validate checks that every shape parameter is a positive integer.
func (c Constants) Validate() error {
	switch {
	case c.EGammaK < 1:
		return fmt.Errorf("E_gamma_k must be a positive integer, got %d", c.EGammaK)
	case c.IGammaK < 1:
		return fmt.Errorf("I_gamma_k must be a positive integer, got %d", c.IGammaK)
	case c.RhGammaK < 1:
		return fmt.Errorf("Rh_gamma_k must be a positive integer, got %d", c.RhGammaK)
	}
	return nil
}

// ConstantsFromTree reads the shape parameters from prefix.E_gamma_k,
// prefix.I_gamma_k and prefix.Rh_gamma_k of a sampled tree.
func ConstantsFromTree(t *params.Tree, prefix string) (Constants, error) {
	var c Constants
	var err error
	path := func(k string) string { return prefix + params.Sep + k }
	if c.EGammaK, err = t.Int(path("E_gamma_k")); err != nil {
		return c, err
	}
	if c.IGammaK, err = t.Int(path("I_gamma_k")); err != nil {
		return c, err
	}
	if c.RhGammaK, err = t.Int(path("Rh_gamma_k")); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Range is a half-open index range along the compartment axis.
type Range struct {
	Start, Stop int
}

// Len returns the number of bins in the range.
func (r Range) Len() int { return r.Stop - r.Start }

// Layout maps compartment names to their bins along the leading axis.
// Primitive compartments occupy contiguous, non-overlapping ranges that
// together cover [0, Total()); groups are index lists over those ranges.
type Layout struct {
	names  []string
	ranges map[string]Range
	groups map[string][]int
	total  int
}

// NewLayout computes the layout for one set of shape parameters.
func NewLayout(c Constants) (*Layout, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	bins := []struct {
		name string
		n    int
	}{
		{S, 1}, {R, 1}, {D, 1}, {IncH, 1}, {IncC, 1},
		{I, c.IGammaK}, {Ic, c.IGammaK}, {Ia, c.IGammaK},
		{E, c.EGammaK},
		{Rh, c.RhGammaK},
	}

	l := &Layout{ranges: make(map[string]Range, len(bins)), groups: make(map[string][]int, 3)}
	for _, b := range bins {
		l.names = append(l.names, b.name)
		l.ranges[b.name] = Range{Start: l.total, Stop: l.total + b.n}
		l.total += b.n
	}

	l.groups[N] = l.collect(func(name string) bool { return !strings.HasPrefix(name, incidencePrefix) })
	l.groups[Itot] = l.collect(func(name string) bool { return name == I || name == Ia || name == Ic })
	l.groups[H] = l.collect(func(name string) bool { return name == Ic || name == Rh })
	return l, nil
}

// collect concatenates, in layout order, the indices of every primitive
// compartment selected by keep.
func (l *Layout) collect(keep func(string) bool) []int {
	var idx []int
	for _, name := range l.names {
		if !keep(name) {
			continue
		}
		r := l.ranges[name]
		for i := r.Start; i < r.Stop; i++ {
			idx = append(idx, i)
		}
	}
	return idx
}

// Total returns the number of bins along the compartment axis.
func (l *Layout) Total() int { return l.total }

// Names returns the primitive compartments in layout order.
func (l *Layout) Names() []string { return slices.Clone(l.names) }

// Groups returns the composite group names.
func (l *Layout) Groups() []string { return []string{N, Itot, H} }

// Range returns the bins of a primitive compartment.
func (l *Layout) Range(name string) (Range, bool) {
	r, ok := l.ranges[name]
	return r, ok
}

// Indices returns the bins of a primitive compartment or group.
func (l *Layout) Indices(name string) ([]int, bool) {
	if r, ok := l.ranges[name]; ok {
		idx := make([]int, 0, r.Len())
		for i := r.Start; i < r.Stop; i++ {
			idx = append(idx, i)
		}
		return idx, true
	}
	g, ok := l.groups[name]
	return slices.Clone(g), ok
}

// Bins returns the number of bins of a compartment or group, or zero.
func (l *Layout) Bins(name string) int {
	if r, ok := l.ranges[name]; ok {
		return r.Len()
	}
	return len(l.groups[name])
}

// Has reports whether name is a compartment or group.
func (l *Layout) Has(name string) bool {
	_, prim := l.ranges[name]
	_, grp := l.groups[name]
	return prim || grp
}
