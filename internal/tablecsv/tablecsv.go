// Package tablecsv reads tabular time/height model output from CSV.
//
// The first column is the time index: "datetime" holds timestamps, "t"
// holds seconds elapsed since the start of the simulation. An optional
// "height" column adds the second index level. Every other column is a
// numeric field; empty cells and "NaN" are missing values.
package tablecsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rtm0/sowfa/coupling"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ReadFile reads a table from the CSV file at path.
func ReadFile(path string) (*coupling.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tbl, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tbl, nil
}

// Read reads a table from CSV.
func Read(r io.Reader) (*coupling.Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	timeCol := header[0]
	if timeCol != "datetime" && timeCol != "t" {
		return nil, fmt.Errorf("first column is %q, want datetime or t", timeCol)
	}

	tbl := &coupling.Table{Columns: map[string][]float64{}}
	if timeCol == "datetime" {
		tbl.Time.Stamps = []time.Time{}
	} else {
		tbl.Time.Elapsed = []time.Duration{}
	}
	heightCol := -1
	for i, name := range header[1:] {
		switch {
		case name == "height":
			heightCol = i + 1
			tbl.Height = []float64{}
		case name == "":
			return nil, fmt.Errorf("column %d has no name", i+2)
		default:
			if _, ok := tbl.Columns[name]; ok {
				return nil, fmt.Errorf("column %q appears twice", name)
			}
			tbl.Columns[name] = []float64{}
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := appendTime(&tbl.Time, rec[0]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for i := 1; i < len(rec); i++ {
			v, err := parseValue(rec[i])
			if err != nil {
				return nil, fmt.Errorf("line %d, column %q: %w", line, header[i], err)
			}
			if i == heightCol {
				tbl.Height = append(tbl.Height, v)
				continue
			}
			tbl.Columns[header[i]] = append(tbl.Columns[header[i]], v)
		}
	}
	return tbl, nil
}

func appendTime(axis *coupling.TimeAxis, s string) error {
	s = strings.TrimSpace(s)
	if axis.Elapsed != nil {
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		axis.Elapsed = append(axis.Elapsed, time.Duration(math.Round(secs*float64(time.Second))))
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			axis.Stamps = append(axis.Stamps, t)
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
