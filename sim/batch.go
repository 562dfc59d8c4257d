package sim

import (
	"context"
	"fmt"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bucky_mc_runs_total",
	Help: "Total Monte Carlo runs by outcome",
}, []string{"result"})

// RunFailure records a rejected Monte Carlo run.
type RunFailure struct {
	ID  int
	Key SimulationKey
	Err error
}

// BatchResult holds every run of a batch, each list ordered by run id.
type BatchResult struct {
	Accepted []*RunResult
	Rejected []RunFailure
}

// RunBatch executes n independent runs with at most workers in flight
// (workers < 1 uses GOMAXPROCS). Run keys derive from seed, so a batch is
// reproducible regardless of scheduling. A failing run is recorded as
// rejected; only cancellation of ctx aborts the batch.
func (e *Env) RunBatch(ctx context.Context, n int, seed int64, workers int) (*BatchResult, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	batch := NewPartitionedRNG(NewSimulationKey(seed))
	keys := make([]SimulationKey, n)
	for id := range keys {
		keys[id] = batch.RunKey(id)
	}

	results := make([]*RunResult, n)
	failures := make([]error, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for id := 0; id < n; id++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.runGuarded(id, keys[id])
			if err != nil {
				runsTotal.WithLabelValues("rejected").Inc()
				logrus.Warnf("Rejecting run %d: %v", id, err)
				failures[id] = err
				return nil
			}
			runsTotal.WithLabelValues("accepted").Inc()
			results[id] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &BatchResult{}
	for id := 0; id < n; id++ {
		switch {
		case results[id] != nil:
			out.Accepted = append(out.Accepted, results[id])
		case failures[id] != nil:
			out.Rejected = append(out.Rejected, RunFailure{ID: id, Key: keys[id], Err: failures[id]})
		}
	}
	logrus.Infof("Monte Carlo batch: %d accepted, %d rejected", len(out.Accepted), len(out.Rejected))
	return out, nil
}

// runGuarded is Run with a panic reported as the run's error, so one
// failing run never takes down the batch.
func (e *Env) runGuarded(id int, key SimulationKey) (res *RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("run %d: panic: %v", id, r)
		}
	}()
	return e.Run(id, key)
}
