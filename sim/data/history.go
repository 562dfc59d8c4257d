package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bucky-sim/bucky/sim/numeric"
)

// DateLayout is the date format of the historical CSV.
const DateLayout = "2006-01-02"

var historyHeader = []string{"date", "adm2", "cumulative_cases", "cumulative_deaths"}

// History holds cumulative case and death counts per fine region.
type History struct {
	// Dates are the observation days, ascending and contiguous.
	Dates []time.Time
	// CumCases and CumDeaths are (day, region) arrays.
	CumCases  *numeric.Array
	CumDeaths *numeric.Array
}

// ReadHistory loads a CSV with columns date,adm2,cumulative_cases,
// cumulative_deaths onto the region order of fips. Rows for unknown
// regions are dropped. Days with no row for a region carry the previous
// day's count forward (zero before the first report). When nDays > 0 only
// the last nDays days are kept.
func ReadHistory(path string, fips []int, nDays int) (*History, error) {
	logrus.Debugf("Reading historical data from %s", path)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open historical CSV: %w", err)
	}
	defer file.Close()
	return parseHistory(file, fips, nDays)
}

type observation struct {
	day           time.Time
	region        int
	cases, deaths float64
}

func parseHistory(r io.Reader, fips []int, nDays int) (*History, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("historical CSV empty or missing header: %w", err)
	}
	if !slices.Equal(header, historyHeader) {
		return nil, fmt.Errorf("historical CSV header %v, want %v", header, historyHeader)
	}

	region := make(map[int]int, len(fips))
	for j, f := range fips {
		region[f] = j
	}

	var (
		obs       []observation
		unknown   = map[int]bool{}
		first     time.Time
		last      time.Time
		line      = 1
		haveRange bool
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("historical CSV row %d: %w", line, err)
		}
		day, err := time.Parse(DateLayout, record[0])
		if err != nil {
			return nil, fmt.Errorf("historical CSV row %d: invalid date: %w", line, err)
		}
		id, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, fmt.Errorf("historical CSV row %d: invalid adm2: %w", line, err)
		}
		cases, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("historical CSV row %d: invalid cumulative_cases: %w", line, err)
		}
		deaths, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, fmt.Errorf("historical CSV row %d: invalid cumulative_deaths: %w", line, err)
		}
		j, ok := region[id]
		if !ok {
			unknown[id] = true
			continue
		}
		if !haveRange || day.Before(first) {
			first = day
		}
		if !haveRange || day.After(last) {
			last = day
		}
		haveRange = true
		obs = append(obs, observation{day: day, region: j, cases: cases, deaths: deaths})
	}
	if len(unknown) > 0 {
		logrus.Debugf("Dropped historical rows for %d regions missing from the census", len(unknown))
	}
	if !haveRange {
		return nil, fmt.Errorf("historical CSV has no rows for known regions")
	}

	days := int(last.Sub(first).Hours()/24) + 1
	h := &History{
		Dates:     make([]time.Time, days),
		CumCases:  numeric.Full(math.NaN(), days, len(fips)),
		CumDeaths: numeric.Full(math.NaN(), days, len(fips)),
	}
	for d := range h.Dates {
		h.Dates[d] = first.AddDate(0, 0, d)
	}
	for _, o := range obs {
		d := int(o.day.Sub(first).Hours() / 24)
		h.CumCases.SetAt(o.cases, d, o.region)
		h.CumDeaths.SetAt(o.deaths, d, o.region)
	}
	forwardFill(h.CumCases)
	forwardFill(h.CumDeaths)

	if nDays > 0 && nDays < days {
		h.Dates = h.Dates[days-nDays:]
		h.CumCases = h.CumCases.Slice0(days-nDays, days).Clone()
		h.CumDeaths = h.CumDeaths.Slice0(days-nDays, days).Clone()
	}
	return h, nil
}

// forwardFill replaces the NaN placeholders of a (day, region) array.
func forwardFill(a *numeric.Array) {
	days, regions := a.Dim(0), a.Dim(1)
	for j := 0; j < regions; j++ {
		prev := 0.0
		for d := 0; d < days; d++ {
			if v := a.At(d, j); !math.IsNaN(v) {
				prev = v
				continue
			}
			a.SetAt(prev, d, j)
		}
	}
}

// Incident returns the day-over-day difference of a cumulative (day,
// region) series, clipped below at zero. The result has one fewer day.
func Incident(cum *numeric.Array) *numeric.Array {
	days := cum.Dim(0)
	if days < 2 {
		return numeric.Zeros(0, cum.Dim(1))
	}
	shape := cum.Shape()
	shape[0] = days - 1
	out := numeric.Zeros(shape...)
	for d := 1; d < days; d++ {
		for j := 0; j < cum.Dim(1); j++ {
			out.SetAt(max(cum.At(d, j)-cum.At(d-1, j), 0), d-1, j)
		}
	}
	return out
}
