package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/bucky-sim/bucky/sim/params"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible Monte Carlo batch or run.
// Two runs with the same SimulationKey and identical parameter trees
// MUST draw bit-for-bit identical parameters.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemSampler is the RNG subsystem for parameter draws.
	// Uses the key directly so a run's draws match params.Sampler.SampleSeed.
	SubsystemSampler = "sampler"

	// SubsystemInitialConditions is the RNG subsystem for seeding the
	// initial exposed population.
	SubsystemInitialConditions = "initial_conditions"
)

// SubsystemRun returns the subsystem name for Monte Carlo run N.
func SubsystemRun(id int) string {
	return fmt.Sprintf("run_%d", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemSampler: uses the key directly
//   - For all other subsystems: key XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := params.NewRand(p.SeedFor(name))
	p.subsystems[name] = rng
	return rng
}

// SeedFor returns the derived seed of a subsystem without creating it.
func (p *PartitionedRNG) SeedFor(name string) int64 {
	if name == SubsystemSampler {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

// RunKey returns the key of Monte Carlo run id within this batch.
func (p *PartitionedRNG) RunKey(id int) SimulationKey {
	return SimulationKey(p.SeedFor(SubsystemRun(id)))
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
