package data

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bucky-sim/bucky/sim/numeric"
	"github.com/bucky-sim/bucky/sim/rolling"
	"github.com/bucky-sim/bucky/sim/spatial"
)

// ErrNoHistory is returned by historical accessors when the data
// directory has no historical CSV.
var ErrNoHistory = errors.New("no historical data loaded")

// Series names a historical time series.
type Series string

const (
	CumCases  Series = "cumulative_cases"
	IncCases  Series = "incident_cases"
	CumDeaths Series = "cumulative_deaths"
	IncDeaths Series = "incident_deaths"
)

// Level is an administrative level: 2 is the fine region, 1 its parent,
// 0 the country.
type Level int

const (
	Adm0 Level = 0
	Adm1 Level = 1
	Adm2 Level = 2
)

// Options configure Load.
type Options struct {
	Country      string
	MinPopPerBin float64
	// HistDays keeps only the last HistDays days of history (0 keeps all).
	HistDays int
	// Window and Kind configure Rolling.
	Window         int
	Kind           rolling.Kind
	MagnitudeFloor float64
	Backend        numeric.Backend
	// Cache memoizes population rollups; nil uses an in-process cache.
	Cache spatial.Cache
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		Country:        "US",
		MinPopPerBin:   DefaultMinPopPerBin,
		Window:         rolling.DefaultWindow,
		Kind:           rolling.Arithmetic,
		MagnitudeFloor: rolling.DefaultMagnitudeFloor,
	}
}

// Dataset is the read-only input data shared by every Monte Carlo run.
// Arrays it returns are shared and must not be modified.
type Dataset struct {
	Census     *Census
	History    *History
	Hierarchy  *spatial.Hierarchy
	Aggregator *spatial.Aggregator

	backend  numeric.Backend
	smoother *rolling.Smoother
	window   int
	kind     rolling.Kind

	mu   sync.Mutex
	memo map[string]func() (*numeric.Array, error)
}

// Load reads the census and, when present, the historical CSV from dir.
func Load(dir string, opts Options) (*Dataset, error) {
	def := DefaultOptions()
	if opts.Country == "" {
		opts.Country = def.Country
	}
	if opts.MinPopPerBin == 0 {
		opts.MinPopPerBin = def.MinPopPerBin
	}
	if opts.Window == 0 {
		opts.Window = def.Window
	}
	if opts.Kind == "" {
		opts.Kind = def.Kind
	}
	if opts.Backend == nil {
		opts.Backend = numeric.NewHost()
	}

	census, err := ReadCensus(filepath.Join(dir, CensusFile), opts.MinPopPerBin)
	if err != nil {
		return nil, err
	}
	hist, err := ReadHistory(filepath.Join(dir, HistoricalFile), census.FIPS, opts.HistDays)
	if errors.Is(err, fs.ErrNotExist) {
		logrus.Infof("No %s in %s, historical series unavailable", HistoricalFile, dir)
		hist, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	return New(census, hist, opts)
}

// New assembles a dataset from already loaded inputs. hist may be nil.
func New(census *Census, hist *History, opts Options) (*Dataset, error) {
	if opts.Backend == nil {
		opts.Backend = numeric.NewHost()
	}
	if opts.Window == 0 {
		opts.Window = rolling.DefaultWindow
	}
	if opts.Kind == "" {
		opts.Kind = rolling.Arithmetic
	}
	h, err := spatial.HierarchyFromFIPS(opts.Country, census.FIPS)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Loaded %d %s regions in %d parent regions", h.NFine(), h.Country(), h.NCoarse())
	return &Dataset{
		Census:     census,
		History:    hist,
		Hierarchy:  h,
		Aggregator: spatial.NewAggregator(h, opts.Backend, opts.Cache),
		backend:    opts.Backend,
		smoother:   rolling.NewSmoother(opts.Backend, opts.MagnitudeFloor),
		window:     opts.Window,
		kind:       opts.Kind,
		memo:       make(map[string]func() (*numeric.Array, error)),
	}, nil
}

// cached computes fn once per key.
func (d *Dataset) cached(key string, fn func() (*numeric.Array, error)) (*numeric.Array, error) {
	d.mu.Lock()
	get, ok := d.memo[key]
	if !ok {
		get = sync.OnceValues(fn)
		d.memo[key] = get
	}
	d.mu.Unlock()
	return get()
}

// Nij is the (age group, region) population.
func (d *Dataset) Nij() *numeric.Array { return d.Census.Nij }

// Nj is the total population per region.
func (d *Dataset) Nj() *numeric.Array {
	out, _ := d.cached("Nj", func() (*numeric.Array, error) {
		return d.backend.SumAxis0(d.Census.Nij), nil
	})
	return out
}

// N is the total population.
func (d *Dataset) N() float64 { return d.backend.Sum(d.Census.Nij) }

// Adm0Ni is the age-stratified country population.
func (d *Dataset) Adm0Ni() *numeric.Array {
	out, _ := d.cached("Adm0Ni", func() (*numeric.Array, error) {
		return d.backend.SumAxis0(d.Census.Nij.Transpose(1, 0)), nil
	})
	return out
}

// Adm1Nij is the (age group, parent region) population.
func (d *Dataset) Adm1Nij() (*numeric.Array, error) {
	return d.cached("Adm1Nij", func() (*numeric.Array, error) {
		out, err := d.Aggregator.ReduceToParentCached(d.Census.Nij.Transpose(1, 0), nil)
		if err != nil {
			return nil, err
		}
		return out.Transpose(1, 0), nil
	})
}

// Adm1Nj is the total population per parent region.
func (d *Dataset) Adm1Nj() (*numeric.Array, error) {
	return d.cached("Adm1Nj", func() (*numeric.Array, error) {
		return d.Aggregator.ReduceToParentCached(d.Nj(), nil)
	})
}

// Hist returns a historical (day, region) series rolled up to level.
// At Adm0 the result has one entry per day.
func (d *Dataset) Hist(s Series, level Level) (*numeric.Array, error) {
	if d.History == nil {
		return nil, ErrNoHistory
	}
	return d.cached(fmt.Sprintf("hist/%s/%d", s, level), func() (*numeric.Array, error) {
		fine, err := d.fineHist(s)
		if err != nil {
			return nil, err
		}
		switch level {
		case Adm2:
			return fine, nil
		case Adm1:
			return d.Aggregator.ReduceAxis(fine, 1, nil)
		case Adm0:
			return d.Aggregator.ReduceToCountry(fine.Transpose(1, 0))
		default:
			return nil, fmt.Errorf("unknown admin level %d", level)
		}
	})
}

func (d *Dataset) fineHist(s Series) (*numeric.Array, error) {
	switch s {
	case CumCases:
		return d.History.CumCases, nil
	case CumDeaths:
		return d.History.CumDeaths, nil
	case IncCases:
		return d.cached("inc/cases", func() (*numeric.Array, error) { return Incident(d.History.CumCases), nil })
	case IncDeaths:
		return d.cached("inc/deaths", func() (*numeric.Array, error) { return Incident(d.History.CumDeaths), nil })
	default:
		return nil, fmt.Errorf("unknown historical series %q", s)
	}
}

// Rolling smooths Hist(s, level) over days with the configured window
// and kind.
func (d *Dataset) Rolling(s Series, level Level) (*numeric.Array, error) {
	hist, err := d.Hist(s, level)
	if err != nil {
		return nil, err
	}
	return d.cached(fmt.Sprintf("rolling/%s/%d", s, level), func() (*numeric.Array, error) {
		return d.smoother.Mean(hist, d.window, 0, d.kind, nil)
	})
}
