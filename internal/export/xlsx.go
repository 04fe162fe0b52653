package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX writes every sheet into a single workbook
func WriteXLSX(w io.Writer, sheets []Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	first := true
	for _, s := range sheets {
		if first {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				return err
			}
			first = false
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return err
		}

		for col, header := range s.Headers() {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(s.Name, cell, header); err != nil {
				return err
			}
		}
		if len(s.Columns) > 0 {
			last, _ := excelize.CoordinatesToCellName(len(s.Columns), 1)
			if err := f.SetCellStyle(s.Name, "A1", last, headerStyle); err != nil {
				return err
			}
		}

		for r, row := range s.Rows {
			for c, v := range row {
				cell, err := excelize.CoordinatesToCellName(c+1, r+2)
				if err != nil {
					return err
				}
				if err := f.SetCellValue(s.Name, cell, v); err != nil {
					return fmt.Errorf("sheet %s cell %s: %w", s.Name, cell, err)
				}
			}
		}
	}

	_, err = f.WriteTo(w)
	return err
}
