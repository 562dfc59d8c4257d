package state

import (
	"fmt"
	"slices"

	"github.com/bucky-sim/bucky/sim/numeric"
)

// State is the compartment state vector of one run. It owns its backing
// array: values handed out by Get for primitive compartments are views
// into it, so they must not outlive the run.
type State struct {
	layout  *Layout
	consts  Constants
	backend numeric.Backend
	nAge    int
	nRegion int
	data    *numeric.Array
}

// New builds the layout for consts and allocates a zero-filled array of
// shape (layout.Total(), popShape[0], popShape[1]). When data is non-nil
// it is adopted instead and must already have that shape.
func New(backend numeric.Backend, consts Constants, popShape []int, data *numeric.Array) (*State, error) {
	if len(popShape) != 2 {
		return nil, fmt.Errorf("population shape must be (age groups, regions), got %v", popShape)
	}
	layout, err := NewLayout(consts)
	if err != nil {
		return nil, err
	}
	s := &State{
		layout:  layout,
		consts:  consts,
		backend: backend,
		nAge:    popShape[0],
		nRegion: popShape[1],
	}
	if data == nil {
		s.data = backend.Zeros(s.Shape()...)
		return s, nil
	}
	if !slices.Equal(data.Shape(), s.Shape()) {
		return nil, fmt.Errorf("state array has shape %v, want %v", data.Shape(), s.Shape())
	}
	s.data = data
	return s, nil
}

// ZerosLike returns a state sharing this layout and constants with an
// independently allocated, zero-filled array.
func (s *State) ZerosLike() *State {
	out := *s
	out.data = s.backend.ZerosLike(s.data)
	return &out
}

// Shape returns (compartment bins, age groups, regions).
func (s *State) Shape() []int { return []int{s.layout.Total(), s.nAge, s.nRegion} }

// Layout returns the compartment layout.
func (s *State) Layout() *Layout { return s.layout }

// Constants returns the shape parameters the layout was built from.
func (s *State) Constants() Constants { return s.consts }

// Data returns the backing array.
func (s *State) Data() *numeric.Array { return s.data }

// Get returns a compartment or group. Primitive compartments are views
// into the state; groups are gathered copies. A single-bin result has its
// compartment axis dropped, giving an (age, region) array.
func (s *State) Get(name string) (*numeric.Array, error) {
	var out *numeric.Array
	if r, ok := s.layout.Range(name); ok {
		out = s.data.Slice0(r.Start, r.Stop)
	} else if idx, ok := s.layout.Indices(name); ok {
		out = s.data.Take0(idx)
	} else {
		return nil, fmt.Errorf("unknown compartment %q", name)
	}
	if out.Dim(0) == 1 {
		out = out.Squeeze0()
	}
	return out, nil
}

// Set assigns v (a float64 or *numeric.Array) to a compartment or group.
// Arrays may match the full (bins, age, region) target, its (age, region)
// suffix, or hold a single value.
func (s *State) Set(name string, v any) error {
	var src *numeric.Array
	switch x := v.(type) {
	case float64:
		src = numeric.Full(x, 1)
	case *numeric.Array:
		src = x
	default:
		return fmt.Errorf("cannot assign %T to compartment %q", v, name)
	}

	if r, ok := s.layout.Range(name); ok {
		if err := s.data.Slice0(r.Start, r.Stop).Assign(src); err != nil {
			return fmt.Errorf("assigning %q: %w", name, err)
		}
		return nil
	}
	if idx, ok := s.layout.Indices(name); ok {
		if err := s.data.Put0(idx, src); err != nil {
			return fmt.Errorf("assigning %q: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("unknown compartment %q", name)
}

// Sum returns the (age, region) total over a compartment or group.
func (s *State) Sum(name string) (*numeric.Array, error) {
	idx, ok := s.layout.Indices(name)
	if !ok {
		return nil, fmt.Errorf("unknown compartment %q", name)
	}
	return s.backend.SumAxis0(s.data.Take0(idx)), nil
}

// InitS closes the model: S is set so that the conserved population N
// sums to one in every age group and region.
func (s *State) InitS() error {
	if err := s.Set(S, 0.0); err != nil {
		return err
	}
	total, err := s.Sum(N)
	if err != nil {
		return err
	}
	return s.Set(S, s.backend.Map(total, func(x float64) float64 { return 1 - x }))
}
