package output

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/colthorp/teampulse-go/internal/report"
)

// maxSheetName is the longest sheet name a workbook accepts.
const maxSheetName = 31

// WriteXLSX writes rep as a workbook with one sheet per table.
func WriteXLSX(w io.Writer, rep *report.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}

	for i, s := range sheets(rep) {
		name := s.title
		if len(name) > maxSheetName {
			name = name[:maxSheetName]
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("xlsx sheet %s: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", name, err)
		}

		if err := writeRow(f, name, 1, s.header); err != nil {
			return err
		}
		if err := f.SetRowStyle(name, 1, 1, bold); err != nil {
			return fmt.Errorf("xlsx style %s: %w", name, err)
		}
		for r, row := range s.rows {
			if err := writeRow(f, name, r+2, row); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// writeRow stores numeric cells as numbers so spreadsheet formulas work on them.
func writeRow(f *excelize.File, sheetName string, row int, values []string) error {
	cells := make([]any, len(values))
	for i, v := range values {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cells[i] = n
		} else {
			cells[i] = v
		}
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
		return fmt.Errorf("xlsx row %s!%s: %w", sheetName, cell, err)
	}
	return nil
}
