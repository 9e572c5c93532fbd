// Package tabular turns uploaded files (CSV text, XLSX workbooks, HTML
// tables) into plain string grids.
package tabular

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
)

// MaxHeaderSearchRows bounds how far FindHeaderRow looks for the header.
var MaxHeaderSearchRows = 20

// Sheet is one grid of cells: a CSV file, a workbook tab or an HTML table.
type Sheet struct {
	Name string
	Rows [][]string
}

// Workbook is every grid found in one file.
type Workbook struct {
	Sheets []Sheet
}

// Sheet returns the grid named name.
func (w *Workbook) Sheet(name string) (Sheet, bool) {
	for _, s := range w.Sheets {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Sheet{}, false
}

// Format is a supported input format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

// DetectFormat picks the format from the file extension, falling back to the
// content: zip magic means XLSX, a leading tag means HTML, anything else CSV.
func DetectFormat(filename string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".html", ".htm":
		return FormatHTML
	case ".csv", ".tsv", ".txt":
		return FormatCSV
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return FormatXLSX
	}
	head := bytes.TrimSpace(bytes.TrimPrefix(data, []byte(bom)))
	if bytes.HasPrefix(head, []byte("<")) {
		return FormatHTML
	}
	return FormatCSV
}

// Parse reads data in the format DetectFormat picks.
func Parse(filename string, data []byte) (*Workbook, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("Parse: %s is empty: %w", filename, domain.ErrParse)
	}
	switch DetectFormat(filename, data) {
	case FormatXLSX:
		return ParseXLSX(data)
	case FormatHTML:
		return ParseHTML(data)
	default:
		sheet, err := ParseCSV(data)
		if err != nil {
			return nil, err
		}
		sheet.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		return &Workbook{Sheets: []Sheet{sheet}}, nil
	}
}

const bom = "\ufeff"

// CleanCell trims a cell and drops byte order marks and non-breaking spaces.
func CleanCell(s string) string {
	s = strings.ReplaceAll(s, bom, "")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(s)
}

// FindHeaderRow returns the index of the best scoring row among the first
// limit rows, or -1 when no row scores above zero. Earlier rows win ties. A
// limit of zero or less means MaxHeaderSearchRows.
func FindHeaderRow(rows [][]string, limit int, score func([]string) int) int {
	if limit <= 0 {
		limit = MaxHeaderSearchRows
	}
	limit = min(len(rows), limit)
	best, bestScore := -1, 0
	for i := 0; i < limit; i++ {
		if s := score(rows[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// IsBlankRow reports whether every cell is empty after cleaning.
func IsBlankRow(row []string) bool {
	for _, cell := range row {
		if CleanCell(cell) != "" {
			return false
		}
	}
	return true
}
