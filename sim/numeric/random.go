package numeric

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// KeySize is the reserved keyword setting the number of draws.
const KeySize = "size"

// Kwargs holds the keyword parameters of one distribution draw. Values are
// float64, []float64 (one entry per element of the draw) or, for size,
// an integer-valued float64.
type Kwargs map[string]any

// SampleFunc draws one value from a named distribution. The result is a
// float64 when every parameter is scalar and no size is given, otherwise
// a []float64.
type SampleFunc func(rng *rand.Rand, kw Kwargs) (any, error)

// RandomNamespace resolves distribution names to sampling functions.
type RandomNamespace interface {
	Lookup(name string) (SampleFunc, bool)
	Names() []string
}

// FuncTable is a RandomNamespace backed by a map.
type FuncTable map[string]SampleFunc

func (t FuncTable) Lookup(name string) (SampleFunc, bool) {
	fn, ok := t[name]
	return fn, ok
}

func (t FuncTable) Names() []string {
	names := make([]string, 0, len(t))
	for k := range t {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Param describes one keyword parameter of a distribution.
type Param struct {
	Name     string
	Default  float64
	Required bool
}

// Draw validates kw against params, broadcasts array-valued parameters
// element-wise and calls draw once per output element. The reserved
// keyword "size" sets the number of draws when every parameter is scalar.
func Draw(kw Kwargs, params []Param, draw func(p []float64) float64) (any, error) {
	return DrawChecked(kw, params, nil, draw)
}

// DrawChecked is Draw with a domain check run on every element's
// parameters before it is drawn. The first check error aborts the draw.
func DrawChecked(kw Kwargs, params []Param, check func(p []float64) error, draw func(p []float64) float64) (any, error) {
	known := map[string]bool{KeySize: true}
	for _, p := range params {
		known[p.Name] = true
	}
	for k := range kw {
		if !known[k] {
			return nil, fmt.Errorf("unexpected keyword argument %q", k)
		}
	}

	cols := make([][]float64, len(params))
	n := 1
	for i, p := range params {
		raw, ok := kw[p.Name]
		if !ok {
			if p.Required {
				return nil, fmt.Errorf("missing required argument %q", p.Name)
			}
			cols[i] = []float64{p.Default}
			continue
		}
		vals, err := AsFloats(raw)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", p.Name, err)
		}
		if len(vals) != 1 {
			if n != 1 && n != len(vals) {
				return nil, fmt.Errorf("argument %q has %d elements, cannot broadcast with %d", p.Name, len(vals), n)
			}
			n = len(vals)
		}
		cols[i] = vals
	}

	scalar := n == 1
	if raw, ok := kw[KeySize]; ok {
		size, err := AsFloats(raw)
		if err != nil || len(size) != 1 || size[0] < 1 || size[0] != math.Trunc(size[0]) {
			return nil, fmt.Errorf("size must be a positive integer, got %v", raw)
		}
		if n != 1 && int(size[0]) != n {
			return nil, fmt.Errorf("size %d does not match broadcast parameter length %d", int(size[0]), n)
		}
		n = int(size[0])
		scalar = false
	}

	out := make([]float64, n)
	p := make([]float64, len(params))
	for j := range out {
		for i, c := range cols {
			if len(c) == 1 {
				p[i] = c[0]
			} else {
				p[i] = c[j]
			}
		}
		for i, v := range p {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("argument %q is NaN", params[i].Name)
			}
		}
		if check != nil {
			if err := check(p); err != nil {
				return nil, err
			}
		}
		out[j] = draw(p)
	}
	if scalar {
		return out[0], nil
	}
	return out, nil
}

// AsFloats converts a scalar or vector parameter value to a slice.
func AsFloats(v any) ([]float64, error) {
	switch x := v.(type) {
	case float64:
		return []float64{x}, nil
	case int:
		return []float64{float64(x)}, nil
	case int64:
		return []float64{float64(x)}, nil
	case []float64:
		if len(x) == 0 {
			return nil, fmt.Errorf("empty array")
		}
		return slices.Clone(x), nil
	case *Array:
		return slices.Clone(x.Data()), nil
	default:
		return nil, fmt.Errorf("expected a number or array of numbers, got %T", v)
	}
}

// positive returns a check that the named parameters are > 0.
func positive(names ...string) func(p []float64) error {
	return func(p []float64) error {
		for i, name := range names {
			if name != "" && !(p[i] > 0) {
				return fmt.Errorf("%s must be positive, got %v", name, p[i])
			}
		}
		return nil
	}
}

// nonNegative returns a check that the named parameters are >= 0.
func nonNegative(names ...string) func(p []float64) error {
	return func(p []float64) error {
		for i, name := range names {
			if name != "" && p[i] < 0 {
				return fmt.Errorf("%s must be non-negative, got %v", name, p[i])
			}
		}
		return nil
	}
}

// defaultRandom mirrors the generator functions of a conventional array
// library's random module, with its keyword names. Each entry checks its
// parameter domain first, since the distuv samplers panic outside it.
var defaultRandom = FuncTable{
	"normal": func(rng *rand.Rand, kw Kwargs) (any, error) {
		return DrawChecked(kw, []Param{{Name: "loc"}, {Name: "scale", Default: 1}}, nonNegative("", "scale"), func(p []float64) float64 {
			return distuv.Normal{Mu: p[0], Sigma: p[1], Src: rng}.Rand()
		})
	},
	"uniform": func(rng *rand.Rand, kw Kwargs) (any, error) {
		return Draw(kw, []Param{{Name: "low"}, {Name: "high", Default: 1}}, func(p []float64) float64 {
			return distuv.Uniform{Min: p[0], Max: p[1], Src: rng}.Rand()
		})
	},
	"gamma": func(rng *rand.Rand, kw Kwargs) (any, error) {
		return DrawChecked(kw, []Param{{Name: "shape", Required: true}, {Name: "scale", Default: 1}}, positive("shape", "scale"), func(p []float64) float64 {
			return distuv.Gamma{Alpha: p[0], Beta: 1 / p[1], Src: rng}.Rand()
		})
	},
	"exponential": func(rng *rand.Rand, kw Kwargs) (any, error) {
		return DrawChecked(kw, []Param{{Name: "scale", Default: 1}}, positive("scale"), func(p []float64) float64 {
			return distuv.Exponential{Rate: 1 / p[0], Src: rng}.Rand()
		})
	},
	"lognormal": func(rng *rand.Rand, kw Kwargs) (any, error) {
		return DrawChecked(kw, []Param{{Name: "mean"}, {Name: "sigma", Default: 1}}, nonNegative("", "sigma"), func(p []float64) float64 {
			return distuv.LogNormal{Mu: p[0], Sigma: p[1], Src: rng}.Rand()
		})
	},
	"beta": func(rng *rand.Rand, kw Kwargs) (any, error) {
		return DrawChecked(kw, []Param{{Name: "a", Required: true}, {Name: "b", Required: true}}, positive("a", "b"), func(p []float64) float64 {
			return distuv.Beta{Alpha: p[0], Beta: p[1], Src: rng}.Rand()
		})
	},
	"poisson": func(rng *rand.Rand, kw Kwargs) (any, error) {
		return DrawChecked(kw, []Param{{Name: "lam", Default: 1}}, nonNegative("lam"), func(p []float64) float64 {
			if p[0] == 0 {
				return 0
			}
			return distuv.Poisson{Lambda: p[0], Src: rng}.Rand()
		})
	},
	"binomial": func(rng *rand.Rand, kw Kwargs) (any, error) {
		check := func(p []float64) error {
			if p[0] < 0 || p[0] != math.Trunc(p[0]) || math.IsInf(p[0], 0) {
				return fmt.Errorf("n must be a non-negative integer, got %v", p[0])
			}
			if p[1] < 0 || p[1] > 1 {
				return fmt.Errorf("p must lie in [0, 1], got %v", p[1])
			}
			return nil
		}
		return DrawChecked(kw, []Param{{Name: "n", Required: true}, {Name: "p", Required: true}}, check, func(p []float64) float64 {
			return distuv.Binomial{N: p[0], P: p[1], Src: rng}.Rand()
		})
	},
	"weibull": func(rng *rand.Rand, kw Kwargs) (any, error) {
		return DrawChecked(kw, []Param{{Name: "a", Required: true}}, positive("a"), func(p []float64) float64 {
			return distuv.Weibull{K: p[0], Lambda: 1, Src: rng}.Rand()
		})
	},
}
