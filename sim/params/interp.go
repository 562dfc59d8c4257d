package params

import (
	"fmt"
	"slices"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// SameBins reports whether two age-bin sets have identical count and bounds.
func SameBins(a, b [][]float64) bool {
	return slices.EqualFunc(a, b, func(x, y []float64) bool { return slices.Equal(x, y) })
}

// InterpAgeBins maps per-bin values y, defined on the source bins, onto
// the target bins by linear interpolation between bin midpoints, with
// linear extrapolation beyond the outermost midpoints. Identical bin sets
// return y unchanged.
func InterpAgeBins(target, source [][]float64, y []float64) ([]float64, error) {
	if SameBins(target, source) {
		return y, nil
	}
	if len(source) != len(y) {
		return nil, fmt.Errorf("%d values for %d age bins", len(y), len(source))
	}
	xs, err := midpoints(source)
	if err != nil {
		return nil, err
	}
	xNew, err := midpoints(target)
	if err != nil {
		return nil, err
	}
	return interpExtrap(xNew, xs, y)
}

func midpoints(bins [][]float64) ([]float64, error) {
	out := make([]float64, len(bins))
	for i, b := range bins {
		if len(b) != 2 {
			return nil, fmt.Errorf("age bin %d has %d bounds, want 2", i, len(b))
		}
		out[i] = (b[0] + b[1]) / 2
	}
	return out, nil
}

// interpExtrap evaluates the piecewise-linear function through (xs, ys) at
// every xNew, continuing the first and last segments past the ends.
func interpExtrap(xNew, xs, ys []float64) ([]float64, error) {
	out := make([]float64, len(xNew))
	if len(xs) == 1 {
		for i := range out {
			out[i] = ys[0]
		}
		return out, nil
	}

	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return xs[order[a]] < xs[order[b]] })
	sx := make([]float64, len(xs))
	sy := make([]float64, len(ys))
	for i, o := range order {
		sx[i], sy[i] = xs[o], ys[o]
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(sx, sy); err != nil {
		return nil, fmt.Errorf("interpolating age bins: %w", err)
	}
	n := len(sx)
	for i, x := range xNew {
		switch {
		case x < sx[0]:
			out[i] = sy[0] + (x-sx[0])*(sy[1]-sy[0])/(sx[1]-sx[0])
		case x > sx[n-1]:
			out[i] = sy[n-1] + (x-sx[n-1])*(sy[n-1]-sy[n-2])/(sx[n-1]-sx[n-2])
		default:
			out[i] = pl.Predict(x)
		}
	}
	return out, nil
}
