package params

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bucky-sim/bucky/sim/numeric"
)

// Names of the built-in parametric distributions.
const (
	DistTruncNorm       = "truncnorm"
	DistTruncatedNormal = "truncated-normal"
	DistMPERT           = "mPERT"
)

// Registry is the namespace of named parametric distributions. It is
// consulted before the numeric backend's random namespace, so a
// registered name shadows a backend function of the same name.
type Registry struct {
	mu    sync.RWMutex
	funcs numeric.FuncTable
}

// NewRegistry returns a registry holding the built-in distributions.
func NewRegistry() *Registry {
	return &Registry{funcs: numeric.FuncTable{
		DistTruncNorm:       truncNorm,
		DistTruncatedNormal: truncNorm,
		DistMPERT:           mPERT,
	}}
}

// Register adds or replaces a named sampling function.
func (r *Registry) Register(name string, fn numeric.SampleFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *Registry) Lookup(name string) (numeric.SampleFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.funcs.Names()
}

// isTruncNorm reports whether name selects the truncated normal, which is
// the only distribution that receives a default scale.
func isTruncNorm(name string) bool {
	return name == DistTruncNorm || name == DistTruncatedNormal
}

var stdNormal = distuv.UnitNormal

// truncNorm draws from a normal(loc, scale) restricted to [a_min, a_max]
// by inverting the CDF over the admissible probability interval. A zero
// scale returns loc clipped to the bounds.
func truncNorm(rng *rand.Rand, kw numeric.Kwargs) (any, error) {
	params := []numeric.Param{
		{Name: "loc"},
		{Name: "scale", Default: 1},
		{Name: "a_min", Default: math.Inf(-1)},
		{Name: "a_max", Default: math.Inf(1)},
	}
	var bad error
	v, err := numeric.Draw(kw, params, func(p []float64) float64 {
		loc, scale, lo, hi := p[0], p[1], p[2], p[3]
		if lo > hi {
			bad = fmt.Errorf("a_min %v exceeds a_max %v", lo, hi)
			return math.NaN()
		}
		if scale < 0 {
			bad = fmt.Errorf("scale must be non-negative, got %v", scale)
			return math.NaN()
		}
		if scale == 0 {
			return math.Min(math.Max(loc, lo), hi)
		}
		plo := stdNormal.CDF((lo - loc) / scale)
		phi := stdNormal.CDF((hi - loc) / scale)
		u := plo + rng.Float64()*(phi-plo)
		x := loc + scale*stdNormal.Quantile(u)
		return math.Min(math.Max(x, lo), hi)
	})
	if err != nil {
		return nil, err
	}
	if bad != nil {
		return nil, bad
	}
	return v, nil
}

// mPERT draws from the modified PERT distribution on [a, b] with mode mu
// and peakedness gamma, via a scaled beta variate.
func mPERT(rng *rand.Rand, kw numeric.Kwargs) (any, error) {
	params := []numeric.Param{
		{Name: "mu", Required: true},
		{Name: "a", Default: 0},
		{Name: "b", Default: 1},
		{Name: "gamma", Default: 4},
	}
	var bad error
	v, err := numeric.Draw(kw, params, func(p []float64) float64 {
		mu, a, b, g := p[0], p[1], p[2], p[3]
		if !(a < b) || mu < a || mu > b {
			bad = fmt.Errorf("mPERT needs a < b and a <= mu <= b, got a=%v mu=%v b=%v", a, mu, b)
			return math.NaN()
		}
		alpha := 1 + g*(mu-a)/(b-a)
		beta := 1 + g*(b-mu)/(b-a)
		return a + (b-a)*distuv.Beta{Alpha: alpha, Beta: beta, Src: rng}.Rand()
	})
	if err != nil {
		return nil, err
	}
	if bad != nil {
		return nil, bad
	}
	return v, nil
}
