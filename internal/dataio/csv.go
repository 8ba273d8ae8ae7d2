// Package dataio reads experimental data, trial conditions and priors from
// CSV files and writes simulations, grid scores and RT histograms.
//
// All readers expect a header row and locate columns by name, so column
// order does not matter and extra columns are ignored.
package dataio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// table is a parsed CSV file with named columns.
type table struct {
	path    string
	columns map[string]int
	rows    [][]string
}

func readTable(path string, required ...string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	t := &table{path: path, columns: make(map[string]int, len(header))}
	for i, name := range header {
		t.columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := t.columns[name]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, name)
		}
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	t.rows = rows
	return t, nil
}

func (t *table) has(name string) bool {
	_, ok := t.columns[name]
	return ok
}

func (t *table) str(row int, name string) (string, error) {
	i := t.columns[name]
	if i >= len(t.rows[row]) {
		return "", fmt.Errorf("%s line %d: missing value for %q", t.path, row+2, name)
	}
	return strings.TrimSpace(t.rows[row][i]), nil
}

func (t *table) float(row int, name string) (float64, error) {
	s, err := t.str(row, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s line %d: invalid %s %q", t.path, row+2, name, s)
	}
	return v, nil
}

// maxInteger is the largest magnitude at which every integer is exactly
// representable as a float64.
const maxInteger = 1 << 53

func (t *table) integer(row int, name string) (int, error) {
	v, err := t.float(row, name)
	if err != nil {
		return 0, err
	}
	if math.Abs(v) > maxInteger {
		return 0, fmt.Errorf("%s line %d: %s %v out of range", t.path, row+2, name, v)
	}
	return int(math.Round(v)), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// writeCSV writes a header and rows, flushing at the end.
func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}
