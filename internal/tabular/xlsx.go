package tabular

import (
	"bytes"
	"fmt"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads every tab of a workbook. Tabs without rows are dropped.
func ParseXLSX(data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ParseXLSX: opening workbook: %v: %w", err, domain.ErrParse)
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("ParseXLSX: reading %q: %v: %w", name, err, domain.ErrParse)
		}
		if len(rows) == 0 {
			continue
		}
		for _, row := range rows {
			for i := range row {
				row[i] = CleanCell(row[i])
			}
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}
	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("ParseXLSX: workbook has no rows: %w", domain.ErrParse)
	}
	return wb, nil
}
