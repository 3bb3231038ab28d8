package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Template file names in a project root.
const (
	FETemplateFile = "fe_batch.xlsx"
	CSTemplateFile = "cs_batch.xlsx"
)

// WriteFETemplate creates a blank FE submission template with room for
// the given number of material blocks.
func WriteFETemplate(path string, blocks int) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetDetails); err != nil {
		return fmt.Errorf("failed to name details sheet: %w", err)
	}
	labels := map[string]string{
		"A4":  "Experiment Name",
		"A5":  "Objective",
		"A11": "O2 Level",
		"A12": "Cap Vials",
	}
	for ref, label := range labels {
		if err := f.SetCellValue(SheetDetails, ref, label); err != nil {
			return fmt.Errorf("failed to write template: %w", err)
		}
	}

	if _, err := f.NewSheet(SheetFormulations); err != nil {
		return fmt.Errorf("failed to add formulations sheet: %w", err)
	}
	head := []string{"Formulation", "Description", "Hazard 1", "Hazard 2", "Hazard 3"}
	for i, v := range head {
		if err := f.SetCellValue(SheetFormulations, cellName(i+1, 1), v); err != nil {
			return fmt.Errorf("failed to write template: %w", err)
		}
	}
	if err := f.SetCellValue(SheetFormulations, "A2", "Form Code"); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	for b := 0; b < blocks; b++ {
		col := formulationsFirstCol + b*tripletWidth
		for i, v := range []string{flowIDLabel, "Amount", "Dispenser"} {
			if err := f.SetCellValue(SheetFormulations, cellName(col+i, formulationsFlowRow), v); err != nil {
				return fmt.Errorf("failed to write template: %w", err)
			}
		}
	}

	return saveAs(f, path)
}

// WriteCSTemplate creates a blank Chemspeed submission template.
func WriteCSTemplate(path string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetDetails); err != nil {
		return fmt.Errorf("failed to name details sheet: %w", err)
	}
	labels := map[string]string{
		"A1": "Operator",
		"D1": "Batch",
		"F1": "Date",
		"H1": "Light Source",
		"J1": "Illumination",
		"B2": "Name",
		"D2": "water",
	}
	for ref, label := range labels {
		if err := f.SetCellValue(SheetDetails, ref, label); err != nil {
			return fmt.Errorf("failed to write template: %w", err)
		}
	}

	return saveAs(f, path)
}
