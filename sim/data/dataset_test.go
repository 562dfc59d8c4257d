package data

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bucky-sim/bucky/sim/internal/testutil"
	"github.com/bucky-sim/bucky/sim/numeric"
	"github.com/bucky-sim/bucky/sim/rolling"
)

func loadFixture(t *testing.T, opts Options) *Dataset {
	t.Helper()
	d, err := Load(testutil.FixtureDir(t, "data"), opts)
	require.NoError(t, err)
	return d
}

func TestReadCensus(t *testing.T) {
	c, err := ReadCensus(testutil.FixtureDir(t, "data", CensusFile), DefaultMinPopPerBin)
	require.NoError(t, err)

	assert.Equal(t, []string{"0-19", "20-64", "65+"}, c.AgeGroups)
	assert.Equal(t, []int{1001, 1003, 2013, 6001, 6003}, c.FIPS, "rows sorted by adm2")
	assert.Equal(t, []int{3, 5}, c.Nij.Shape())
	assert.Equal(t, []float64{500, 700, 1, 900, 120}, c.Nij.Slice0(0, 1).Data(), "zero clipped to the minimum")
	assert.Equal(t, []float64{300, 500, 2, 700, 80}, c.Nij.Slice0(2, 3).Data())
}

func TestReadCensus_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, content, want string
	}{
		{"empty", "", "empty"},
		{"bad header", "fips,a\n1,2\n", "adm2"},
		{"bad id", "adm2,a\nx,2\n", "invalid adm2"},
		{"bad value", "adm2,a\n1,y\n", "invalid a"},
		{"duplicate", "adm2,a\n1,2\n1,3\n", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteFile(t, dir, strings.ReplaceAll(tt.name, " ", "_")+".csv", tt.content)
			_, err := ReadCensus(path, 1)
			assert.ErrorContains(t, err, tt.want)
		})
	}
	_, err := ReadCensus(dir+"/missing.csv", 1)
	assert.Error(t, err)
}

func TestReadHistory(t *testing.T) {
	fips := []int{1001, 1003, 2013, 6001, 6003}
	h, err := ReadHistory(testutil.FixtureDir(t, "data", HistoricalFile), fips, 0)
	require.NoError(t, err)

	require.Len(t, h.Dates, 4)
	assert.Equal(t, time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC), h.Dates[0])
	assert.Equal(t, []int{4, 5}, h.CumCases.Shape())
	assert.Equal(t, []float64{
		10, 4, 0, 20, 0,
		12, 4, 0, 25, 1,
		11, 7, 0, 31, 1,
		15, 9, 0, 40, 2,
	}, h.CumCases.Data())

	inc := Incident(h.CumCases)
	assert.Equal(t, []float64{
		2, 0, 0, 5, 1,
		0, 3, 0, 6, 0,
		4, 2, 0, 9, 1,
	}, inc.Data(), "decreases clip to zero")

	last, err := ReadHistory(testutil.FixtureDir(t, "data", HistoricalFile), fips, 2)
	require.NoError(t, err)
	assert.Equal(t, h.Dates[2:], last.Dates)
	assert.Equal(t, []float64{1, 0, 0, 2, 0, 1, 1, 0, 2, 0}, last.CumDeaths.Data())
}

func TestParseHistory_FillsGaps(t *testing.T) {
	csv := "date,adm2,cumulative_cases,cumulative_deaths\n" +
		"2021-01-03,7,5,1\n" +
		"2021-01-01,7,2,0\n"
	h, err := parseHistory(strings.NewReader(csv), []int{7, 8}, 0)
	require.NoError(t, err)
	require.Len(t, h.Dates, 3)
	assert.Equal(t, []float64{2, 0, 2, 0, 5, 0}, h.CumCases.Data())

	_, err = parseHistory(strings.NewReader("date,adm2\n"), []int{7}, 0)
	assert.ErrorContains(t, err, "header")
	_, err = parseHistory(strings.NewReader("date,adm2,cumulative_cases,cumulative_deaths\n2021-01-01,9,1,1\n"), []int{7}, 0)
	assert.ErrorContains(t, err, "no rows")
	_, err = parseHistory(strings.NewReader("date,adm2,cumulative_cases,cumulative_deaths\n01/02/2021,7,1,1\n"), []int{7}, 0)
	assert.ErrorContains(t, err, "invalid date")
}

func TestDataset_PopulationRollups(t *testing.T) {
	d := loadFixture(t, Options{})

	assert.Equal(t, []float64{2800, 3800, 18, 4700, 600}, d.Nj().Data())
	assert.Equal(t, 11918.0, d.N())
	assert.Equal(t, []float64{2221, 8115, 1582}, d.Adm0Ni().Data())

	nj, err := d.Adm1Nj()
	require.NoError(t, err)
	assert.Equal(t, []float64{6600, 18, 5300}, nj.Data())

	nij, err := d.Adm1Nij()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, nij.Shape())
	assert.Equal(t, []float64{
		1200, 1, 1020,
		4600, 15, 3500,
		800, 2, 780,
	}, nij.Data())

	again, err := d.Adm1Nij()
	require.NoError(t, err)
	assert.Same(t, nij, again, "rollups are memoized")
}

func TestDataset_HistoryRollups(t *testing.T) {
	d := loadFixture(t, Options{Window: 2, Backend: numeric.NewParallel(2)})

	adm1, err := d.Hist(CumCases, Adm1)
	require.NoError(t, err)
	assert.Equal(t, []float64{14, 0, 20, 16, 0, 26, 18, 0, 32, 24, 0, 42}, adm1.Data())

	adm0, err := d.Hist(CumCases, Adm0)
	require.NoError(t, err)
	assert.Equal(t, []float64{34, 42, 50, 66}, adm0.Data())

	inc, err := d.Hist(IncCases, Adm0)
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 9, 16}, inc.Data())

	deaths, err := d.Hist(IncDeaths, Adm2)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, deaths.Shape())

	smooth, err := d.Rolling(CumCases, Adm0)
	require.NoError(t, err)
	assert.Equal(t, []float64{38, 46, 58}, smooth.Data())

	_, err = d.Hist(Series("hospitalizations"), Adm1)
	assert.Error(t, err)
	_, err = d.Hist(CumCases, Level(7))
	assert.Error(t, err)
}

func TestDataset_WithoutHistory(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, CensusFile, "adm2,all\n1001,10\n")
	d, err := Load(dir, Options{Kind: rolling.Geometric})
	require.NoError(t, err)
	assert.Nil(t, d.History)
	_, err = d.Hist(CumCases, Adm2)
	assert.ErrorIs(t, err, ErrNoHistory)
	_, err = d.Rolling(CumCases, Adm2)
	assert.ErrorIs(t, err, ErrNoHistory)
}
