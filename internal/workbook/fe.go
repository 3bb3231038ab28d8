package workbook

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Details are the Experiment Details cells of an FE submission.
type Details struct {
	BatchName string
	Objective string
	O2Level   string
	CapVials  string
}

// Triplet is one material block of a Formulations row.
type Triplet struct {
	// ID is the channel id for tracked rows, the material name otherwise.
	ID        string
	Amount    float64
	Dispenser string
}

// FERow is one sample row of the Formulations sheet.
type FERow struct {
	Name     string
	Hazards  [3]string
	Triplets []Triplet
	// Trailer is written after the last triplet.
	Trailer []string
}

// FEWorkbook is an FE submission being built from its template.
type FEWorkbook struct {
	f           *excelize.File
	removeZeros bool
}

// OpenFE opens the FE template workbook. With removeZeros, triplets whose
// amount is zero are left blank.
func OpenFE(templatePath string, removeZeros bool) (*FEWorkbook, error) {
	f, err := open(templatePath)
	if err != nil {
		return nil, err
	}
	for _, sheet := range []string{SheetDetails, SheetFormulations} {
		if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
			_ = f.Close()
			return nil, fmt.Errorf("template %s has no %q sheet", templatePath, sheet)
		}
	}
	return &FEWorkbook{f: f, removeZeros: removeZeros}, nil
}

// SetDetails fills the Experiment Details sheet. The batch name must match
// the submitted file name.
func (w *FEWorkbook) SetDetails(d Details) error {
	cells := []struct {
		ref   string
		value string
	}{
		{FEExperimentNameCell, d.BatchName},
		{"B5", d.Objective},
		{"B11", d.O2Level},
		{"B12", d.CapVials},
	}
	for _, c := range cells {
		if err := w.f.SetCellValue(SheetDetails, c.ref, c.value); err != nil {
			return fmt.Errorf("failed to set %s: %w", c.ref, err)
		}
	}
	return nil
}

// RowNumber returns the sheet row of a 0-based sample index.
func RowNumber(index int) int {
	return index + formulationsHeaderRow
}

// WriteRow writes the sample at index. It returns the column after the
// last triplet.
func (w *FEWorkbook) WriteRow(index int, row FERow) (int, error) {
	r := RowNumber(index)
	set := func(col int, v any) error {
		if err := w.f.SetCellValue(SheetFormulations, cellName(col, r), v); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
		return nil
	}

	head := []any{row.Name, row.Name, row.Hazards[0], row.Hazards[1], row.Hazards[2]}
	for i, v := range head {
		if err := set(i+1, v); err != nil {
			return 0, err
		}
	}

	col := formulationsFirstCol
	for _, t := range row.Triplets {
		if w.removeZeros && t.Amount == 0 {
			col += tripletWidth
			continue
		}
		for i, v := range []any{t.ID, t.Amount, t.Dispenser} {
			if err := set(col+i, v); err != nil {
				return 0, err
			}
		}
		col += tripletWidth
	}
	end := col

	for _, v := range row.Trailer {
		if err := set(col, v); err != nil {
			return 0, err
		}
		col++
	}
	return end, nil
}

// CopyTriplets copies the triplet columns [H, end) of the src sample row
// onto the dst sample row.
func (w *FEWorkbook) CopyTriplets(src, dst, end int) error {
	for col := formulationsFirstCol; col < end; col++ {
		from := cellName(col, RowNumber(src))
		to := cellName(col, RowNumber(dst))
		v, err := w.cellAny(from)
		if err != nil {
			return err
		}
		if err := w.f.SetCellValue(SheetFormulations, to, v); err != nil {
			return fmt.Errorf("failed to copy %s to %s: %w", from, to, err)
		}
	}
	return nil
}

// cellAny returns a cell as float64 when it holds a number.
func (w *FEWorkbook) cellAny(ref string) (any, error) {
	typ, err := w.f.GetCellType(SheetFormulations, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	raw, err := w.f.GetCellValue(SheetFormulations, ref, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	if typ == excelize.CellTypeNumber || typ == excelize.CellTypeUnset {
		var v float64
		if _, scanErr := fmt.Sscan(raw, &v); scanErr == nil {
			return v, nil
		}
	}
	return raw, nil
}

// SaveAs writes the workbook, creating the parent directory.
func (w *FEWorkbook) SaveAs(path string) error {
	return saveAs(w.f, path)
}

// Close releases the workbook.
func (w *FEWorkbook) Close() error {
	return w.f.Close()
}

func saveAs(f *excelize.File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}
