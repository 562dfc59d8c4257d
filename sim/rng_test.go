package sim

import (
	"math"
	"testing"

	"github.com/bucky-sim/bucky/sim/params"
)

// === SimulationKey Tests ===

func TestSimulationKey_Creation(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive seed", 42},
		{"zero seed", 0},
		{"negative seed", -1},
		{"max int64", math.MaxInt64},
		{"min int64", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewSimulationKey(tt.seed)
			if int64(key) != tt.seed {
				t.Errorf("NewSimulationKey(%d) = %d, want %d", tt.seed, key, tt.seed)
			}
		})
	}
}

// === PartitionedRNG Tests ===

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// BDD: Same key+name produces same sequence
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))

	for i := 0; i < 3; i++ {
		a := rng1.ForSubsystem(SubsystemInitialConditions).Float64()
		b := rng2.ForSubsystem(SubsystemInitialConditions).Float64()
		if a != b {
			t.Errorf("Value %d: got %v and %v, want identical", i, a, b)
		}
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// BDD: Drawing from subsystem A doesn't affect subsystem B
	rngA := NewPartitionedRNG(NewSimulationKey(42))
	fresh := NewPartitionedRNG(NewSimulationKey(42))

	for i := 0; i < 10; i++ {
		rngA.ForSubsystem(SubsystemSampler).Float64()
	}
	got := rngA.ForSubsystem(SubsystemInitialConditions).Float64()
	want := fresh.ForSubsystem(SubsystemInitialConditions).Float64()
	if got != want {
		t.Errorf("initial conditions first value = %v, want %v (isolation broken)", got, want)
	}
}

func TestPartitionedRNG_SamplerMatchesSampleSeed(t *testing.T) {
	// BDD: "sampler" subsystem uses the key directly
	seed := int64(42)
	rng := NewPartitionedRNG(NewSimulationKey(seed)).ForSubsystem(SubsystemSampler)
	direct := params.NewRand(seed)

	for i := 0; i < 10; i++ {
		if got, want := rng.Float64(), direct.Float64(); got != want {
			t.Errorf("Value %d: sampler RNG = %v, direct RNG = %v", i, got, want)
		}
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	if rng.ForSubsystem(SubsystemSampler) != rng.ForSubsystem(SubsystemSampler) {
		t.Error("ForSubsystem returned different instances for same name")
	}
	if len(rng.subsystems) != 1 {
		t.Errorf("have %d subsystems, want 1", len(rng.subsystems))
	}
}

func TestPartitionedRNG_RunKeys(t *testing.T) {
	batch := NewPartitionedRNG(NewSimulationKey(7))
	seen := make(map[SimulationKey]int)
	for id := 0; id < 1000; id++ {
		k := batch.RunKey(id)
		if prev, ok := seen[k]; ok {
			t.Fatalf("runs %d and %d share key %d", prev, id, k)
		}
		seen[k] = id
	}
	if batch.RunKey(3) != NewPartitionedRNG(NewSimulationKey(7)).RunKey(3) {
		t.Error("run keys are not reproducible")
	}
	if batch.RunKey(3) == NewPartitionedRNG(NewSimulationKey(8)).RunKey(3) {
		t.Error("run keys ignore the batch seed")
	}
}

func TestPartitionedRNG_Key(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(12345))
	if rng.Key() != SimulationKey(12345) {
		t.Errorf("Key() = %v, want 12345", rng.Key())
	}
}

func TestPartitionedRNG_ExtremeSeeds(t *testing.T) {
	for _, seed := range []int64{0, math.MinInt64, math.MaxInt64} {
		v := NewPartitionedRNG(NewSimulationKey(seed)).ForSubsystem(SubsystemInitialConditions).Float64()
		if v < 0 || v >= 1 {
			t.Errorf("seed %d: Float64() returned %v, want [0, 1)", seed, v)
		}
	}
}

// === fnv1a64 Tests ===

func TestFnv1a64_Collision(t *testing.T) {
	names := []string{
		SubsystemSampler,
		SubsystemInitialConditions,
		"run_0",
		"run_1",
		"run_100",
		"",
	}

	hashes := make(map[int64]string)
	for _, name := range names {
		h := fnv1a64(name)
		if existing, ok := hashes[h]; ok {
			t.Errorf("Hash collision: %q and %q both hash to %d", name, existing, h)
		}
		hashes[h] = name
	}
}

func TestSubsystemRun(t *testing.T) {
	if got := SubsystemRun(12); got != "run_12" {
		t.Errorf("SubsystemRun(12) = %q", got)
	}
}
