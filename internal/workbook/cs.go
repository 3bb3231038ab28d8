package workbook

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// CSHeader is the first row of a Chemspeed submission.
type CSHeader struct {
	Operator     string
	BatchName    string
	Date         time.Time
	LightSource  string
	Illumination string
}

// Amount is one material value of a Chemspeed row.
type Amount struct {
	Material string
	Value    float64
}

// CSRow is one sample of a Chemspeed submission.
type CSRow struct {
	Name      string
	Water     float64
	Materials []Amount
}

// Chemspeed layout: name in B, water in D, materials from E with their
// names on row 2.
const (
	csNameCol      = 2
	csWaterCol     = 4
	csFirstCol     = 5
	csMaterialsRow = 2
)

// CSWorkbook is a Chemspeed submission being built from its template.
type CSWorkbook struct {
	f *excelize.File
}

// OpenCS opens the Chemspeed template workbook.
func OpenCS(templatePath string) (*CSWorkbook, error) {
	f, err := open(templatePath)
	if err != nil {
		return nil, err
	}
	if idx, err := f.GetSheetIndex(SheetDetails); err != nil || idx < 0 {
		_ = f.Close()
		return nil, fmt.Errorf("template %s has no %q sheet", templatePath, SheetDetails)
	}
	return &CSWorkbook{f: f}, nil
}

// SetHeader writes the operator in B1 and the batch name, date, light
// source and illumination time in E1, G1, I1 and K1.
func (w *CSWorkbook) SetHeader(h CSHeader) error {
	if err := w.f.SetCellValue(SheetDetails, "B1", h.Operator); err != nil {
		return fmt.Errorf("failed to set operator: %w", err)
	}
	values := []any{h.BatchName, h.Date.Format(time.DateOnly), h.LightSource, h.Illumination}
	col := 5
	for _, v := range values {
		if err := w.f.SetCellValue(SheetDetails, cellName(col, 1), v); err != nil {
			return fmt.Errorf("failed to set header: %w", err)
		}
		col += 2
	}
	return nil
}

// WriteRow writes the sample at a 0-based index.
func (w *CSWorkbook) WriteRow(index int, row CSRow) error {
	r := RowNumber(index)
	set := func(col, rowNum int, v any) error {
		if err := w.f.SetCellValue(SheetDetails, cellName(col, rowNum), v); err != nil {
			return fmt.Errorf("failed to write row %d: %w", rowNum, err)
		}
		return nil
	}

	if err := set(csNameCol, r, row.Name); err != nil {
		return err
	}
	if err := set(csWaterCol, r, row.Water); err != nil {
		return err
	}
	col := csFirstCol
	for _, m := range row.Materials {
		if err := set(col, csMaterialsRow, m.Material); err != nil {
			return err
		}
		if err := set(col, r, m.Value); err != nil {
			return err
		}
		col++
	}
	return nil
}

// SaveAs writes the workbook, creating the parent directory.
func (w *CSWorkbook) SaveAs(path string) error {
	return saveAs(w.f, path)
}

// Close releases the workbook.
func (w *CSWorkbook) Close() error {
	return w.f.Close()
}
