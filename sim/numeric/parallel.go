package numeric

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Parallel is the accelerator-role backend. Each kernel launch takes the
// device lock and fans its work out over a fixed number of workers, so
// concurrent Monte Carlo runs sharing one Parallel backend have their
// launches serialized rather than oversubscribing the pool.
type Parallel struct {
	workers int
	device  sync.Mutex
	random  RandomNamespace
}

// NewParallel returns a Parallel backend with the given worker count.
// A count below one selects runtime.NumCPU().
func NewParallel(workers int) *Parallel {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Parallel{workers: workers, random: defaultRandom}
}

func (p *Parallel) Name() string { return BackendParallel }

// Workers returns the size of the worker pool.
func (p *Parallel) Workers() int { return p.workers }

func (p *Parallel) Zeros(shape ...int) *Array { return Zeros(shape...) }

func (p *Parallel) ZerosLike(a *Array) *Array { return Zeros(a.shape...) }

func (p *Parallel) Sum(a *Array) float64 {
	partial := make([]float64, p.workers)
	p.launch(len(a.data), func(w, lo, hi int) {
		s := 0.0
		for _, v := range a.data[lo:hi] {
			s += v
		}
		partial[w] = s
	})
	total := 0.0
	for _, s := range partial {
		total += s
	}
	return total
}

func (p *Parallel) SumAxis0(a *Array) *Array {
	out := Zeros(a.shape[1:]...)
	p.launch(a.inner(), func(_, lo, hi int) {
		sumRows(out.data, a, lo, hi)
	})
	return out
}

func (p *Parallel) Map(a *Array, fn func(float64) float64) *Array {
	out := Zeros(a.shape...)
	p.launch(len(a.data), func(_, lo, hi int) {
		mapRange(out.data, a.data, fn, lo, hi)
	})
	return out
}

// ScatterAdd partitions the trailing columns across workers, so two
// workers never write the same output entry.
func (p *Parallel) ScatterAdd(out *Array, idx []int, src *Array) error {
	if err := checkScatter(out, idx, src); err != nil {
		return err
	}
	p.launch(src.inner(), func(_, lo, hi int) {
		scatterCols(out, idx, src, lo, hi)
	})
	return nil
}

func (p *Parallel) ConvolveRows(rows *Array, kernel []float64) (*Array, error) {
	out, err := convolveShape(rows, kernel)
	if err != nil {
		return nil, err
	}
	rev := reversed(kernel)
	p.launch(rows.shape[0], func(_, lo, hi int) {
		for r := lo; r < hi; r++ {
			convolveRow(out, rows, rev, r)
		}
	})
	return out, nil
}

func (p *Parallel) Random() RandomNamespace { return p.random }

// launch splits [0, n) into at most p.workers contiguous chunks and runs
// fn on each. It returns once every chunk is done. A panic in a chunk is
// re-raised on the calling goroutine, where the caller can recover it.
func (p *Parallel) launch(n int, fn func(worker, lo, hi int)) {
	p.device.Lock()
	defer p.device.Unlock()
	if n == 0 {
		return
	}
	chunks := min(p.workers, n)
	size := (n + chunks - 1) / chunks
	var g errgroup.Group
	for w := 0; w < chunks; w++ {
		lo := w * size
		hi := min(lo+size, n)
		if lo >= hi {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("parallel kernel chunk [%d, %d): %v", lo, hi, r)
				}
			}()
			fn(w, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		panic(err)
	}
}
