package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Cell references for the experiment name of each robot profile.
const (
	FEExperimentNameCell = "B4"
	CSExperimentNameCell = "E1"
)

// Formulations sheet layout.
const (
	formulationsFlowRow   = 2
	formulationsHeaderRow = 3
	formulationsFirstCol  = 8 // H
	tripletWidth          = 3
	flowIDLabel           = "Flow ID"
	formIDColumn          = "form_id"
)

func open(path string) (*excelize.File, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	return f, nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// ReadOutput reads the Output sheet of a completed workbook. The first
// row is the header. maxRows limits the data rows read; zero reads all.
func ReadOutput(path string, maxRows int) (*Frame, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return readSheet(f, path, SheetOutput, 1, maxRows)
}

// ReadDetails reads the Experiment Details sheet with the header on row 2.
// Chemspeed workbooks keep their samples there.
func ReadDetails(path string) (*Frame, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return readSheet(f, path, SheetDetails, 2, 0)
}

func readSheet(f *excelize.File, path, sheet string, headerRow, maxRows int) (*Frame, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheet, path, err)
	}
	if len(rows) < headerRow {
		return newFrame(path, nil, nil), nil
	}

	header := rows[headerRow-1]
	data := rows[headerRow:]
	if maxRows > 0 && len(data) > maxRows {
		data = data[:maxRows]
	}
	return newFrame(path, header, data), nil
}

// ReadExperimentName returns the value of the experiment name cell.
func ReadExperimentName(path, cell string) (string, error) {
	f, err := open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	v, err := f.GetCellValue(SheetDetails, cell)
	if err != nil {
		return "", fmt.Errorf("failed to read %s!%s of %s: %w", SheetDetails, cell, path, err)
	}
	return v, nil
}

// ReadFormulations reads a submitted FE workbook back into a frame.
//
// Material blocks start at column H and repeat every three columns for as
// long as row 2 reads "Flow ID"; each block is named by its row 3 cell and
// its values come from the amount column next to it. The first column,
// form_id, takes its values from column B. Rows are read from row 3 up to
// the first row whose column A is empty.
func ReadFormulations(path string) (*Frame, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	get := func(col, row int) (string, error) {
		v, err := f.GetCellValue(SheetFormulations, cellName(col, row))
		if err != nil {
			return "", fmt.Errorf("failed to read %s of %s: %w", SheetFormulations, path, err)
		}
		return v, nil
	}

	columns := []string{formIDColumn}
	positions := []int{1}
	for col := formulationsFirstCol; ; col += tripletWidth {
		label, err := get(col, formulationsFlowRow)
		if err != nil {
			return nil, err
		}
		if label != flowIDLabel {
			break
		}
		name, err := get(col, formulationsHeaderRow)
		if err != nil {
			return nil, err
		}
		columns = append(columns, name)
		positions = append(positions, col)
	}

	lastRow := 0
	for row := 1; ; row++ {
		v, err := get(1, row)
		if err != nil {
			return nil, err
		}
		if v == "" {
			break
		}
		lastRow = row
	}

	var rows [][]string
	for row := formulationsHeaderRow; row <= lastRow; row++ {
		values := make([]string, len(positions))
		for i, pos := range positions {
			v, err := get(pos+1, row)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		rows = append(rows, values)
	}

	columns, rows = mergeDuplicateColumns(columns, rows)
	return newFrame(path, columns, rows), nil
}

// mergeDuplicateColumns keeps the first position of a repeated column name
// and the values of its last occurrence.
func mergeDuplicateColumns(columns []string, rows [][]string) ([]string, [][]string) {
	first := make(map[string]int)
	var keep []int
	source := make(map[int]int)
	for i, c := range columns {
		if j, ok := first[c]; ok {
			source[j] = i
			continue
		}
		first[c] = i
		source[i] = i
		keep = append(keep, i)
	}
	if len(keep) == len(columns) {
		return columns, rows
	}

	outCols := make([]string, len(keep))
	for k, i := range keep {
		outCols[k] = columns[i]
	}
	outRows := make([][]string, len(rows))
	for r, row := range rows {
		out := make([]string, len(keep))
		for k, i := range keep {
			out[k] = row[source[i]]
		}
		outRows[r] = out
	}
	return outCols, outRows
}
