// Package rolling smooths time series with windowed means in valid-mode
// convolution: a series of length n smoothed over a window w has n-w+1
// entries along the smoothed axis.
package rolling

import (
	"errors"
	"fmt"
	"math"

	"github.com/bucky-sim/bucky/sim/numeric"
)

// Kind selects the mean computed over each window.
type Kind string

const (
	Arithmetic Kind = "arithmetic"
	Geometric  Kind = "geometric"
	Harmonic   Kind = "harmonic"
)

var (
	ErrUnsupportedKind       = errors.New("unsupported rolling mean kind")
	ErrWeightedGeometricMean = errors.New("weighted rolling geometric mean is not implemented")
	ErrHarmonicMean          = errors.New("rolling harmonic mean is not implemented")
)

const (
	// DefaultWindow is a one-week window over daily data.
	DefaultWindow = 7
	// DefaultMagnitudeFloor is the smallest |x| taken through log in a
	// geometric mean; smaller magnitudes get LogFloor instead. Only zero
	// and subnormal-scale values are floored. The Python bucky model
	// floored every |x| < 1.0; pass 1.0 to NewSmoother to reproduce its
	// geometric means on series with fractional values.
	DefaultMagnitudeFloor = 1e-300
	// LogFloor stands in for log(|x|) below the magnitude floor.
	LogFloor = -1000.0
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Arithmetic, Geometric, Harmonic:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
}

// Smoother computes rolling means on a backend.
type Smoother struct {
	backend        numeric.Backend
	magnitudeFloor float64
}

// NewSmoother returns a smoother using floor as the geometric-mean
// magnitude floor. A non-positive floor selects DefaultMagnitudeFloor.
func NewSmoother(backend numeric.Backend, floor float64) *Smoother {
	if floor <= 0 {
		floor = DefaultMagnitudeFloor
	}
	return &Smoother{backend: backend, magnitudeFloor: floor}
}

// Mean is Smoother.Mean with the default magnitude floor.
func Mean(backend numeric.Backend, series *numeric.Array, window, axis int, kind Kind, weights []float64) (*numeric.Array, error) {
	return NewSmoother(backend, DefaultMagnitudeFloor).Mean(series, window, axis, kind, weights)
}

// Mean smooths series along axis. Weights, when given, must have one entry
// per window position and are normalized to sum to one; they are only
// supported by the arithmetic kind.
func (s *Smoother) Mean(series *numeric.Array, window, axis int, kind Kind, weights []float64) (*numeric.Array, error) {
	switch kind {
	case Arithmetic:
		return s.arithmetic(series, window, axis, weights)
	case Geometric:
		if weights != nil {
			return nil, ErrWeightedGeometricMean
		}
		return s.geometric(series, window, axis)
	case Harmonic:
		return nil, ErrHarmonicMean
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
}

func (s *Smoother) arithmetic(series *numeric.Array, window, axis int, weights []float64) (*numeric.Array, error) {
	rows, restore, err := toRows(series, window, axis)
	if err != nil {
		return nil, err
	}
	kernel, err := normalizedKernel(window, weights)
	if err != nil {
		return nil, err
	}
	out, err := s.backend.ConvolveRows(rows, kernel)
	if err != nil {
		return nil, err
	}
	return restore(out)
}

// geometric averages log magnitudes and restores the sign from the count
// of negative entries in each window: an odd count gives a negative mean.
func (s *Smoother) geometric(series *numeric.Array, window, axis int) (*numeric.Array, error) {
	rows, restore, err := toRows(series, window, axis)
	if err != nil {
		return nil, err
	}
	floor := s.magnitudeFloor
	logAbs := s.backend.Map(rows, func(x float64) float64 {
		if a := math.Abs(x); a >= floor {
			return math.Log(a)
		}
		return LogFloor
	})
	negative := s.backend.Map(rows, func(x float64) float64 {
		if x < 0 {
			return 1
		}
		return 0
	})

	uniform, _ := normalizedKernel(window, nil)
	logMean, err := s.backend.ConvolveRows(logAbs, uniform)
	if err != nil {
		return nil, err
	}
	ones := make([]float64, window)
	for i := range ones {
		ones[i] = 1
	}
	negCount, err := s.backend.ConvolveRows(negative, ones)
	if err != nil {
		return nil, err
	}

	out := logMean.Clone()
	d, nc := out.Data(), negCount.Data()
	for i, lm := range d {
		v := math.Exp(lm)
		if int(math.Round(nc[i]))%2 == 1 {
			v = -v
		}
		d[i] = v
	}
	return restore(out)
}

func normalizedKernel(window int, weights []float64) ([]float64, error) {
	if weights == nil {
		k := make([]float64, window)
		for i := range k {
			k[i] = 1 / float64(window)
		}
		return k, nil
	}
	if len(weights) != window {
		return nil, fmt.Errorf("rolling mean: %d weights for window %d", len(weights), window)
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("rolling mean: weights sum to zero")
	}
	k := make([]float64, window)
	for i, w := range weights {
		k[i] = w / total
	}
	return k, nil
}

// toRows moves axis last and flattens the rest, returning the 2-D rows
// and a function that puts a smoothed result back in the original layout.
func toRows(series *numeric.Array, window, axis int) (*numeric.Array, func(*numeric.Array) (*numeric.Array, error), error) {
	nd := series.NDim()
	if nd == 0 {
		return nil, nil, fmt.Errorf("rolling mean: scalar series")
	}
	if axis < 0 {
		axis += nd
	}
	if axis < 0 || axis >= nd {
		return nil, nil, fmt.Errorf("rolling mean: axis out of range for shape %v", series.Shape())
	}
	n := series.Dim(axis)
	if window < 1 || window > n {
		return nil, nil, fmt.Errorf("rolling mean: window %d invalid for %d samples", window, n)
	}

	moved := series
	if axis != nd-1 {
		moved = series.MoveAxis(axis, nd-1)
	}
	lead := moved.Shape()[:nd-1]
	rows, err := moved.Reshape(moved.Size()/n, n)
	if err != nil {
		return nil, nil, err
	}
	restore := func(out *numeric.Array) (*numeric.Array, error) {
		shape := append(lead, out.Dim(1))
		r, err := out.Reshape(shape...)
		if err != nil {
			return nil, err
		}
		if axis != nd-1 {
			r = r.MoveAxis(nd-1, axis)
		}
		return r, nil
	}
	return rows, restore, nil
}
