package report

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// WriteWorkbook renders the headline tables of a bundle into one Excel
// workbook for manual review. Every sheet mirrors the CSV of the same
// name.
func (w *Writer) WriteWorkbook(b *Bundle) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheets := []struct {
		name    string
		headers []string
		rows    [][]string
	}{
		{"Coverage", coverageHeaders, coverageRows(b.Coverage)},
		{"Growth", growthHeaders, growthRows(b.GrowthComparison)},
		{"Divergence", divergenceHeaders, divergenceRows(b.Divergence)},
		{"Turning Points", turningHeaders, turningRows(b.TurningPoints)},
		{"Correlations", corrHeaders, corrRows(b.Correlations)},
		{"Survival", survivalHeaders, survivalRows(b.Survival)},
	}

	wroteAny := false
	for _, sheet := range sheets {
		if len(sheet.rows) == 0 {
			continue
		}
		if !wroteAny {
			// Rename the default sheet instead of leaving an empty one.
			if err := f.SetSheetName(f.GetSheetName(0), sheet.name); err != nil {
				return "", fmt.Errorf("rename workbook sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(sheet.name); err != nil {
				return "", fmt.Errorf("add workbook sheet %s: %w", sheet.name, err)
			}
		}
		wroteAny = true

		if err := writeSheet(f, sheet.name, sheet.headers, sheet.rows); err != nil {
			return "", err
		}
	}
	if !wroteAny {
		return "", nil
	}

	path := filepath.Join(w.dir, "summary.xlsx")
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]string) error {
	cell, err := excelize.CoordinatesToCellName(1, 1)
	if err != nil {
		return fmt.Errorf("workbook coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &headers); err != nil {
		return fmt.Errorf("write %s headers: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("workbook coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
