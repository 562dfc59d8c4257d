// Package data loads the model's input dataset: the age-stratified census
// population of every fine region and its historical case and death
// series, with their rollups to coarser administrative levels.
package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/bucky-sim/bucky/sim/numeric"
)

// File names inside a data directory.
const (
	CensusFile     = "binned_census_age_groups.csv"
	HistoricalFile = "csse_timeseries.csv"
)

// DefaultMinPopPerBin keeps every (age, region) population strictly positive.
const DefaultMinPopPerBin = 1.0

// Census is the population tensor read from a census CSV.
type Census struct {
	// AgeGroups are the column labels after the adm2 column.
	AgeGroups []string
	// FIPS are the fine-region ids, ascending.
	FIPS []int
	// Nij is the (age group, region) population.
	Nij *numeric.Array
}

// ReadCensus loads a CSV with an adm2 id column followed by one column per
// age group. Rows are sorted by adm2 and every entry is clipped below at
// minPopPerBin.
func ReadCensus(path string, minPopPerBin float64) (*Census, error) {
	logrus.Debugf("Reading census data from %s", path)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open census CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read census CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("census CSV empty or missing header")
	}
	header := records[0]
	if len(header) < 2 || header[0] != "adm2" {
		return nil, fmt.Errorf("census CSV header must start with adm2 and one age column, got %v", header)
	}

	type row struct {
		fips int
		pop  []float64
	}
	rows := make([]row, 0, len(records)-1)
	seen := make(map[int]bool, len(records)-1)
	for i, record := range records[1:] { // Skip header
		if len(record) != len(header) {
			return nil, fmt.Errorf("census CSV row %d: expected %d columns", i+2, len(header))
		}
		fips, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("census CSV row %d: invalid adm2: %w", i+2, err)
		}
		if seen[fips] {
			return nil, fmt.Errorf("census CSV row %d: duplicate adm2 %d", i+2, fips)
		}
		seen[fips] = true
		r := row{fips: fips, pop: make([]float64, len(header)-1)}
		for j, cell := range record[1:] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("census CSV row %d: invalid %s: %w", i+2, header[j+1], err)
			}
			r.pop[j] = max(v, minPopPerBin)
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].fips < rows[b].fips })

	nAge, nRegion := len(header)-1, len(rows)
	c := &Census{
		AgeGroups: append([]string(nil), header[1:]...),
		FIPS:      make([]int, nRegion),
		Nij:       numeric.Zeros(nAge, nRegion),
	}
	for j, r := range rows {
		c.FIPS[j] = r.fips
		for i, v := range r.pop {
			c.Nij.SetAt(v, i, j)
		}
	}
	return c, nil
}
