package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/bucky-sim/bucky/sim/data"
	"github.com/bucky-sim/bucky/sim/numeric"
	"github.com/bucky-sim/bucky/sim/params"
	"github.com/bucky-sim/bucky/sim/state"
)

// Parameter paths read from every sampled tree.
const (
	PathStructure    = "model.structure"
	PathExposedFrac  = "model.initial_conditions.exposed_frac"
	PathExposedNoise = "model.initial_conditions.exposed_jitter"
)

// Env is the context shared by every Monte Carlo run: the unsampled
// parameter tree, the numeric backend and the read-only input data. It is
// built once at startup and is safe for concurrent runs.
type Env struct {
	Base       *params.Tree
	Backend    numeric.Backend
	Sampler    *params.Sampler
	Data       *data.Dataset
	Tolerances state.Tolerances
}

// NewEnv validates the inputs and assembles a run context. A nil sampler
// uses the default distribution registry on backend.
func NewEnv(base *params.Tree, backend numeric.Backend, sampler *params.Sampler, ds *data.Dataset, tol state.Tolerances) (*Env, error) {
	if base == nil {
		return nil, fmt.Errorf("env: parameter tree is required")
	}
	if ds == nil {
		return nil, fmt.Errorf("env: dataset is required")
	}
	if backend == nil {
		backend = numeric.NewHost()
	}
	if sampler == nil {
		sampler = params.NewSampler(backend, nil)
	}
	if base.Has(params.PathAgeBins) {
		bins, err := base.Bins(params.PathAgeBins)
		if err != nil {
			return nil, fmt.Errorf("env: %w", err)
		}
		if n := ds.Nij().Dim(0); len(bins) != n {
			return nil, fmt.Errorf("env: %d model age bins but census has %d age groups", len(bins), n)
		}
	}
	return &Env{Base: base, Backend: backend, Sampler: sampler, Data: ds, Tolerances: tol}, nil
}

// RunResult is the outcome of one accepted Monte Carlo run.
type RunResult struct {
	ID     int
	Key    SimulationKey
	Params *params.Tree
	State  *state.State
	// Susceptible population counts per fine region, parent region and
	// for the whole country.
	Adm2Susceptible *numeric.Array
	Adm1Susceptible *numeric.Array
	Adm0Susceptible float64
}

// Run executes one Monte Carlo run: draw parameters, build the state
// vector, seed the initial exposed fraction, close S, validate, and roll
// the susceptible population up the hierarchy.
func (e *Env) Run(id int, key SimulationKey) (*RunResult, error) {
	rng := NewPartitionedRNG(key)

	tree, err := e.Sampler.Sample(e.Base, rng.ForSubsystem(SubsystemSampler))
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", id, err)
	}
	consts, err := state.ConstantsFromTree(tree, PathStructure)
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", id, err)
	}
	nij := e.Data.Nij()
	s, err := state.New(e.Backend, consts, nij.Shape(), nil)
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", id, err)
	}
	if err := e.seedExposed(s, tree, rng); err != nil {
		return nil, fmt.Errorf("run %d: %w", id, err)
	}
	if err := s.InitS(); err != nil {
		return nil, fmt.Errorf("run %d: %w", id, err)
	}
	if err := s.ValidateWith(e.Tolerances); err != nil {
		return nil, fmt.Errorf("run %d: %w", id, err)
	}

	sus, err := s.Get(state.S)
	if err != nil {
		return nil, err
	}
	counts := sus.Clone()
	floats.Mul(counts.Data(), nij.Data())
	adm2 := e.Backend.SumAxis0(counts)
	adm1, err := e.Data.Aggregator.ReduceToParent(adm2, nil)
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", id, err)
	}
	logrus.Debugf("run %d (key %d): E_gamma_k=%d I_gamma_k=%d Rh_gamma_k=%d",
		id, key, consts.EGammaK, consts.IGammaK, consts.RhGammaK)
	return &RunResult{
		ID:              id,
		Key:             key,
		Params:          tree,
		State:           s,
		Adm2Susceptible: adm2,
		Adm1Susceptible: adm1,
		Adm0Susceptible: e.Backend.Sum(adm2),
	}, nil
}

// seedExposed puts the optional initial exposed fraction into the first E
// bin. With a jitter j > 0 each region's fraction is scaled by a uniform
// draw from [1-j, 1+j).
func (e *Env) seedExposed(s *state.State, tree *params.Tree, rng *PartitionedRNG) error {
	if !tree.Has(PathExposedFrac) {
		return nil
	}
	frac, err := tree.Float(PathExposedFrac)
	if err != nil {
		return err
	}
	jitter := 0.0
	if tree.Has(PathExposedNoise) {
		if jitter, err = tree.Float(PathExposedNoise); err != nil {
			return err
		}
	}
	if frac < 0 || frac > 1 || jitter < 0 || jitter > 1 {
		return fmt.Errorf("exposed_frac %v and exposed_jitter %v must lie in [0, 1]", frac, jitter)
	}

	nAge, nRegion := s.Shape()[1], s.Shape()[2]
	seed := numeric.Zeros(nAge, nRegion)
	noise := rng.ForSubsystem(SubsystemInitialConditions)
	for j := 0; j < nRegion; j++ {
		f := frac
		if jitter > 0 {
			f *= 1 + jitter*(2*noise.Float64()-1)
		}
		for i := 0; i < nAge; i++ {
			seed.SetAt(f, i, j)
		}
	}
	r, _ := s.Layout().Range(state.E)
	return s.Data().Slice0(r.Start, r.Start+1).Assign(seed)
}
