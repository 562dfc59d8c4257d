package params

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"github.com/bucky-sim/bucky/sim/numeric"
)

// Global tunables read from the tree being sampled.
const (
	PathRerollVariance = "model.monte_carlo.reroll_variance"
	PathAgeBins        = "model.structure.age_bins"
)

// Reserved keys of a parameter node.
const (
	KeyDistribution = "distribution"
	KeyFunc         = "func"
	KeyValue        = "value"
	KeyAgeBins      = "age_bins"
	KeyScale        = "scale"
	KeyLoc          = "loc"
)

// ErrUnknownDistribution is returned when a distribution's func name is
// found in neither the registry nor the backend's random namespace.
var ErrUnknownDistribution = errors.New("unknown distribution")

// Sampler draws one concrete parameter set per Monte Carlo run.
type Sampler struct {
	registry *Registry
	random   numeric.RandomNamespace
}

// NewSampler returns a sampler resolving names against registry first and
// then the backend's random namespace. A nil registry uses NewRegistry().
func NewSampler(backend numeric.Backend, registry *Registry) *Sampler {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Sampler{registry: registry, random: backend.Random()}
}

// Sample returns a new tree in which every distribution has been drawn
// once and every value-only node promoted to its bare value. The input
// tree is never modified.
//
// Passes run in this order: default truncated-normal scales, age-bin
// reconciliation, draws, reconciliation of draws made on a node's own
// age bins, promotion.
func (s *Sampler) Sample(tree *Tree, rng *rand.Rand) (*Tree, error) {
	out, err := SetDefaultVariances(tree)
	if err != nil {
		return nil, err
	}
	if out, err = ReconcileAgeBins(out); err != nil {
		return nil, err
	}
	if out, err = s.Draw(out, rng); err != nil {
		return nil, err
	}
	if out, err = ReconcileAgeBins(out); err != nil {
		return nil, err
	}
	return Promote(out)
}

// SampleSeed is Sample with a generator seeded from seed.
func (s *Sampler) SampleSeed(tree *Tree, seed int64) (*Tree, error) {
	return s.Sample(tree, NewRand(seed))
}

// NewRand returns the PCG generator used for one run's draws.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

// Resolve finds the sampling function for a distribution name.
func (s *Sampler) Resolve(name string) (numeric.SampleFunc, error) {
	if fn, ok := s.registry.Lookup(name); ok {
		return fn, nil
	}
	if fn, ok := s.random.Lookup(name); ok {
		return fn, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDistribution, name)
}

func distributionOf(path string, node *Tree) (*Tree, error) {
	dist, ok := node.vals[KeyDistribution].(*Tree)
	if !ok {
		return nil, fmt.Errorf("%s.%s must be a mapping", path, KeyDistribution)
	}
	return dist, nil
}

// SetDefaultVariances fills a missing scale on every truncated-normal
// distribution with |reroll_variance * loc|.
func SetDefaultVariances(tree *Tree) (*Tree, error) {
	return tree.Apply(Contains(KeyDistribution), func(path string, node *Tree) (any, error) {
		dist, err := distributionOf(path, node)
		if err != nil {
			return nil, err
		}
		name, _ := dist.vals[KeyFunc].(string)
		if !isTruncNorm(name) || dist.HasKey(KeyScale) {
			return node, nil
		}
		coef, err := tree.Float(PathRerollVariance)
		if err != nil {
			return nil, fmt.Errorf("%s: default scale: %w", path, err)
		}
		loc := []float64{0}
		if dist.HasKey(KeyLoc) {
			if loc, err = dist.Floats(KeyLoc); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
		scale := make([]float64, len(loc))
		for i, l := range loc {
			scale[i] = math.Abs(coef * l)
		}
		if _, vector := dist.vals[KeyLoc].([]float64); vector {
			dist.setLocal(KeyScale, scale)
		} else {
			dist.setLocal(KeyScale, scale[0])
		}
		return node, nil
	})
}

// ReconcileAgeBins re-expresses every per-age value, and every per-age
// distribution parameter, authored against a node's own age_bins on the
// model's target age bins. The age_bins key is dropped afterwards, except
// on a distribution none of whose parameters is per-age: its draw is
// still on the source bins and is reconciled by the pass after Draw.
func ReconcileAgeBins(tree *Tree) (*Tree, error) {
	match := func(t *Tree) bool {
		return t.HasKey(KeyAgeBins) && (t.HasKey(KeyValue) || t.HasKey(KeyDistribution))
	}
	return tree.Apply(match, func(path string, node *Tree) (any, error) {
		target, err := tree.Bins(PathAgeBins)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		source, err := node.Bins(KeyAgeBins)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if y, ok := node.vals[KeyValue].([]float64); ok {
			v, err := InterpAgeBins(target, source, y)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", path, KeyValue, err)
			}
			node.vals[KeyValue] = v
		}
		if dist, ok := node.vals[KeyDistribution].(*Tree); ok {
			perAge := false
			for _, k := range dist.keys {
				y, ok := dist.vals[k].([]float64)
				if !ok || len(y) != len(source) {
					continue
				}
				v, err := InterpAgeBins(target, source, y)
				if err != nil {
					return nil, fmt.Errorf("%s.%s.%s: %w", path, KeyDistribution, k, err)
				}
				dist.vals[k] = v
				perAge = true
			}
			if !perAge {
				return node, nil
			}
			if dist.HasKey(numeric.KeySize) {
				dist.setLocal(numeric.KeySize, float64(len(target)))
			}
		}
		node.Delete(KeyAgeBins)
		return node, nil
	})
}

// Draw samples every distribution node into its value key and removes
// the distribution.
func (s *Sampler) Draw(tree *Tree, rng *rand.Rand) (*Tree, error) {
	return tree.Apply(Contains(KeyDistribution), func(path string, node *Tree) (any, error) {
		dist, err := distributionOf(path, node)
		if err != nil {
			return nil, err
		}
		name, ok := dist.vals[KeyFunc].(string)
		if !ok {
			return nil, fmt.Errorf("%s.%s: missing %s", path, KeyDistribution, KeyFunc)
		}
		sample, err := s.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		kw := make(numeric.Kwargs, dist.Len())
		for _, k := range dist.keys {
			if k == KeyFunc {
				continue
			}
			if _, nested := dist.vals[k].(*Tree); nested {
				return nil, fmt.Errorf("%s: %s argument %q must not be a mapping", path, name, k)
			}
			kw[k] = dist.vals[k]
		}
		v, err := callSample(sample, rng, kw)
		if err != nil {
			return nil, fmt.Errorf("%s: sampling %s: %w", path, name, err)
		}
		logrus.Tracef("sampled %s ~ %s -> %v", path, name, v)
		node.Delete(KeyDistribution)
		node.setLocal(KeyValue, v)
		return node, nil
	})
}

// Promote replaces every node whose only key is value with the bare value.
func Promote(tree *Tree) (*Tree, error) {
	return tree.Apply(Contains(KeyValue), func(_ string, node *Tree) (any, error) {
		if node.Len() == 1 {
			return node.vals[KeyValue], nil
		}
		return node, nil
	})
}

// callSample runs a sampling function, reporting a panic as an error.
func callSample(sample numeric.SampleFunc, rng *rand.Rand, kw numeric.Kwargs) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sample(rng, kw)
}
