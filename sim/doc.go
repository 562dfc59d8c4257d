// Package sim provides the Monte Carlo substrate of the bucky spatial SEIR model.
//
// # Reading Guide
//
// Start with these three files to understand a run:
//   - env.go: the run context (Env) and the per-run pipeline
//   - batch.go: bounded concurrent batches with per-run rejection
//   - rng.go: deterministic per-run and per-subsystem random streams
//
// # Architecture
//
// The sim package wires the pieces together; the components live in
// sub-packages:
//   - sim/numeric/: dense arrays and the host / parallel numeric backends
//   - sim/params/: the parameter tree, YAML loading and the distribution sampler
//   - sim/state/: compartment layout, state vector and invariant validation
//   - sim/spatial/: region hierarchy, scatter-add reductions and their caches
//   - sim/rolling/: rolling arithmetic and geometric means
//   - sim/data/: census and historical inputs with cached rollups
//
// An Env is built once per process and shared read-only by every run. A run
// owns its sampled tree and state vector, so runs never share mutable state.
package sim
