package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bucky-sim/bucky/sim/rolling"
	"github.com/bucky-sim/bucky/sim/state"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSettings_EmptyPathReturnsDefaults(t *testing.T) {
	s, err := loadSettings("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
	assert.Equal(t, state.DefaultTolerances, s.Tolerances)
}

func TestLoadSettings_OverlaysDefaults(t *testing.T) {
	// GIVEN a file setting only a few fields
	path := writeSettings(t, `
data_dir: /srv/bucky/data
rolling:
  window: 14
  kind: geometric
tolerances:
  conservation_decimals: 3
`)

	s, err := loadSettings(path)
	require.NoError(t, err)

	// THEN given fields override and the rest keep their defaults
	assert.Equal(t, "/srv/bucky/data", s.DataDir)
	assert.Equal(t, 14, s.Rolling.Window)
	assert.Equal(t, string(rolling.Geometric), s.Rolling.Kind)
	assert.Equal(t, rolling.DefaultMagnitudeFloor, s.Rolling.MagnitudeFloor)
	assert.Equal(t, 3, s.Tolerances.ConservationDecimals)
	assert.Equal(t, state.DefaultTolerances.NegativeDecimals, s.Tolerances.NegativeDecimals)
	assert.Equal(t, "output", s.OutputDir)
}

func TestLoadSettings_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown field", "data_dri: x\n", "data_dri"},
		{"unknown nested field", "rolling: {windw: 3}\n", "windw"},
		{"bad kind", "rolling: {kind: median}\n", "median"},
		{"zero window", "rolling: {window: 0}\n", "window"},
		{"negative tolerance", "tolerances: {negative_decimals: -1}\n", "tolerances"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadSettings(writeSettings(t, tt.content))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	_, err := loadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSettings_DataOptions(t *testing.T) {
	s := DefaultSettings()
	s.Rolling.Kind = "geometric"
	s.HistDays = 30
	backend, err := s.backend()
	require.NoError(t, err)

	opts, err := s.dataOptions(backend, nil)
	require.NoError(t, err)
	assert.Equal(t, rolling.Geometric, opts.Kind)
	assert.Equal(t, 30, opts.HistDays)
	assert.Equal(t, "US", opts.Country)
	assert.Same(t, backend, opts.Backend)

	s.Backend = "gpu"
	_, err = s.backend()
	assert.ErrorContains(t, err, "unknown numeric backend")
}
