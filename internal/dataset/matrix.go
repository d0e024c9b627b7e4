// Package dataset holds the named numeric feature matrix consumed by action
// sets and audits. Values are float64; categorical columns are expected to be
// indicator-encoded upstream.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Matrix is a dense table of named numeric columns.
type Matrix struct {
	Columns []string
	Rows    [][]float64

	// Labels holds the optional outcome column split off by ReadCSV.
	Labels []float64
}

// New builds a matrix and checks that column names are unique and every row
// has one value per column.
func New(columns []string, rows [][]float64) (*Matrix, error) {
	m := &Matrix{Columns: columns, Rows: rows}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the structural invariants of the matrix.
func (m *Matrix) Validate() error {
	if len(m.Columns) == 0 {
		return ErrEmptyHeader
	}
	seen := make(map[string]bool, len(m.Columns))
	for _, c := range m.Columns {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: empty column name", ErrDuplicateColumn)
		}
		if seen[c] {
			return fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		seen[c] = true
	}
	for i, r := range m.Rows {
		if len(r) != len(m.Columns) {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrRaggedRow, i, len(r), len(m.Columns))
		}
	}
	return nil
}

// NumRows returns the number of rows.
func (m *Matrix) NumRows() int { return len(m.Rows) }

// Index returns the position of a column, or -1.
func (m *Matrix) Index(name string) int {
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column.
func (m *Matrix) Column(name string) ([]float64, error) {
	j := m.Index(name)
	if j < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	out := make([]float64, len(m.Rows))
	for i, r := range m.Rows {
		out[i] = r[j]
	}
	return out, nil
}

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []float64 {
	out := make([]float64, len(m.Rows[i]))
	copy(out, m.Rows[i])
	return out
}

// ReadOptions controls CSV parsing.
type ReadOptions struct {
	// LabelColumn names a column to split off into Matrix.Labels.
	// Empty means every column is a feature.
	LabelColumn string
}

// ReadCSVFile opens path and parses it with ReadCSV.
func ReadCSVFile(path string, opts ReadOptions) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, opts)
}

// ReadCSV parses a headed CSV of numeric values.
func ReadCSV(r io.Reader, opts ReadOptions) (*Matrix, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	label := -1
	var columns []string
	for i, h := range header {
		h = strings.TrimSpace(h)
		if opts.LabelColumn != "" && h == opts.LabelColumn {
			label = i
			continue
		}
		columns = append(columns, h)
	}
	if opts.LabelColumn != "" && label < 0 {
		return nil, fmt.Errorf("%w: label %q", ErrUnknownColumn, opts.LabelColumn)
	}

	m := &Matrix{Columns: columns}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%w: line %d", ErrRaggedRow, line)
		}
		row := make([]float64, 0, len(columns))
		for i, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
			if i == label {
				m.Labels = append(m.Labels, v)
				continue
			}
			row = append(row, v)
		}
		m.Rows = append(m.Rows, row)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
