package state

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/bucky-sim/bucky/sim/numeric"
)

var (
	// ErrInvalidState is the parent of every validation failure.
	ErrInvalidState = errors.New("invalid state")

	ErrNonFiniteState         = fmt.Errorf("%w: non-finite values", ErrInvalidState)
	ErrPopulationNotConserved = fmt.Errorf("%w: population not conserved", ErrInvalidState)
	ErrNegativeState          = fmt.Errorf("%w: negative values", ErrInvalidState)
)

// Tolerances are the decimal precisions used by Validate: the conserved
// population must round to 1 at ConservationDecimals, and every entry
// must round to a non-negative value at NegativeDecimals.
type Tolerances struct {
	ConservationDecimals int `yaml:"conservation_decimals"`
	NegativeDecimals     int `yaml:"negative_decimals"`
}

// DefaultTolerances are the precisions used by Validate.
var DefaultTolerances = Tolerances{ConservationDecimals: 2, NegativeDecimals: 4}

// Coord is an (age group, region) position.
type Coord struct {
	Age, Region int
}

// ValidationError reports a failed state check and where it failed.
type ValidationError struct {
	Err    error
	Coords []Coord
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v at %d (age, region) positions", e.Err, len(e.Coords))
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate runs ValidateWith(DefaultTolerances).
func (s *State) Validate() error {
	return s.ValidateWith(DefaultTolerances)
}

// ValidateWith checks, in order, that every entry is finite, that N sums
// to one per age group and region, and that no entry is negative. The
// first failing check is returned as a *ValidationError.
func (s *State) ValidateWith(tol Tolerances) error {
	if coords := s.anyBin(func(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }); len(coords) > 0 {
		return fail(ErrNonFiniteState, coords, "nonfinite values in the state vector, something is wrong with init")
	}

	total, err := s.Sum(N)
	if err != nil {
		return err
	}
	var unconserved []Coord
	for off, v := range total.Data() {
		if roundTo(v, tol.ConservationDecimals) != 1.0 {
			idx := total.Unravel(off)
			unconserved = append(unconserved, Coord{Age: idx[0], Region: idx[1]})
		}
	}
	if len(unconserved) > 0 {
		return fail(ErrPopulationNotConserved, unconserved, "N!=1 in the state vector, something is wrong with init")
	}

	if coords := s.anyBin(func(v float64) bool { return !(roundTo(v, tol.NegativeDecimals) >= 0) }); len(coords) > 0 {
		return fail(ErrNegativeState, coords, "negative values in the state vector, something is wrong with init")
	}
	return nil
}

// anyBin returns every (age, region) where bad holds for at least one bin.
func (s *State) anyBin(bad func(float64) bool) []Coord {
	hit := numeric.Zeros(s.nAge, s.nRegion)
	plane := s.nAge * s.nRegion
	for off, v := range s.data.Data() {
		if bad(v) {
			hit.Data()[off%plane] = 1
		}
	}
	var out []Coord
	for off, v := range hit.Data() {
		if v != 0 {
			out = append(out, Coord{Age: off / s.nRegion, Region: off % s.nRegion})
		}
	}
	return out
}

func fail(kind error, coords []Coord, msg string) error {
	logrus.Debugf("offending (age, region) positions: %v", coords)
	logrus.Info(msg)
	return &ValidationError{Err: kind, Coords: coords}
}

// roundTo rounds half to even at the given number of decimals.
func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.RoundToEven(v*p) / p
}
