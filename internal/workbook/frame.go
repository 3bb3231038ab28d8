// Package workbook reads and writes the robot's xlsx batch files.
package workbook

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Sheet names used by the robot workbooks.
const (
	SheetOutput       = "Output"
	SheetDetails      = "Experiment Details"
	SheetFormulations = "Formulations"
)

// Frame is a header plus string rows read from a sheet.
type Frame struct {
	// Source is the file the frame was read from.
	Source  string
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Index returns the position of a column, or -1.
func (f *Frame) Index(column string) int {
	for i, c := range f.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Column returns every value of the named column.
func (f *Frame) Column(column string) ([]string, bool) {
	idx := f.Index(column)
	if idx < 0 {
		return nil, false
	}
	out := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out, true
}

// Float parses the value at row, column.
func (f *Frame) Float(row int, column string) (float64, error) {
	idx := f.Index(column)
	if idx < 0 {
		return 0, fmt.Errorf("no column %q in %s", column, f.Source)
	}
	if row < 0 || row >= len(f.Rows) {
		return 0, fmt.Errorf("row %d out of range in %s", row, f.Source)
	}
	cell := ""
	if idx < len(f.Rows[row]) {
		cell = strings.TrimSpace(f.Rows[row][idx])
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("%s row %d column %q: %w", f.Source, row, column, err)
	}
	return v, nil
}

// newFrame pads every row to the frame width. Cells past the last header
// get unnamed columns rather than being dropped.
func newFrame(source string, columns []string, rows [][]string) *Frame {
	width := len(columns)
	for _, r := range rows {
		width = max(width, len(r))
	}
	if width > len(columns) {
		columns = append(slices.Clone(columns), make([]string, width-len(columns))...)
	}

	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		padded := make([]string, width)
		copy(padded, r)
		out = append(out, padded)
	}
	return &Frame{Source: source, Columns: columns, Rows: out}
}
