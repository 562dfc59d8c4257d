package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bucky-sim/bucky/sim/data"
	"github.com/bucky-sim/bucky/sim/numeric"
	"github.com/bucky-sim/bucky/sim/rolling"
	"github.com/bucky-sim/bucky/sim/spatial"
	"github.com/bucky-sim/bucky/sim/state"
)

// Settings is the tool settings file. Every section must be listed to
// satisfy KnownFields(true) strict parsing, so typos are errors.
type Settings struct {
	DataDir   string          `yaml:"data_dir"`
	CacheDir  string          `yaml:"cache_dir"` // empty keeps reductions in memory
	OutputDir string          `yaml:"output_dir"`
	Country   string          `yaml:"country"`
	MinPop    float64         `yaml:"min_pop_per_bin"`
	HistDays  int             `yaml:"hist_days"`
	Rolling   RollingSettings `yaml:"rolling"`
	Backend   string          `yaml:"backend"`
	Workers   int             `yaml:"workers"`

	Tolerances state.Tolerances `yaml:"tolerances"`
}

// RollingSettings configures the rolling means of historical series.
type RollingSettings struct {
	Window         int     `yaml:"window"`
	Kind           string  `yaml:"kind"`
	MagnitudeFloor float64 `yaml:"magnitude_floor"`
}

// DefaultSettings is used when no settings file is given.
func DefaultSettings() Settings {
	return Settings{
		DataDir:   "data",
		OutputDir: "output",
		Country:   "US",
		MinPop:    data.DefaultMinPopPerBin,
		Rolling: RollingSettings{
			Window:         rolling.DefaultWindow,
			Kind:           string(rolling.Arithmetic),
			MagnitudeFloor: rolling.DefaultMagnitudeFloor,
		},
		Backend:    numeric.BackendHost,
		Tolerances: state.DefaultTolerances,
	}
}

// loadSettings overlays the settings file at path on DefaultSettings.
// An empty path returns the defaults.
func loadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func (s Settings) validate() error {
	if s.Rolling.Window < 1 {
		return fmt.Errorf("rolling.window must be >= 1, got %d", s.Rolling.Window)
	}
	if _, err := rolling.ParseKind(s.Rolling.Kind); err != nil {
		return err
	}
	if s.Tolerances.ConservationDecimals < 0 || s.Tolerances.NegativeDecimals < 0 {
		return fmt.Errorf("tolerances must be non-negative, got %+v", s.Tolerances)
	}
	if s.MinPop < 0 {
		return fmt.Errorf("min_pop_per_bin must be non-negative, got %v", s.MinPop)
	}
	return nil
}

// backend builds the numeric backend named in the settings.
func (s Settings) backend() (numeric.Backend, error) {
	return numeric.New(s.Backend, s.Workers)
}

// dataOptions maps the settings onto data.Load options. cache may be nil.
func (s Settings) dataOptions(backend numeric.Backend, cache spatial.Cache) (data.Options, error) {
	kind, err := rolling.ParseKind(s.Rolling.Kind)
	if err != nil {
		return data.Options{}, err
	}
	return data.Options{
		Country:        s.Country,
		MinPopPerBin:   s.MinPop,
		HistDays:       s.HistDays,
		Window:         s.Rolling.Window,
		Kind:           kind,
		MagnitudeFloor: s.Rolling.MagnitudeFloor,
		Backend:        backend,
		Cache:          cache,
	}, nil
}
