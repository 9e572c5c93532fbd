// Package rowstore persists records in spreadsheet tabs addressed purely by
// row position. Row 1 is the header; data rows start at 2.
package rowstore

import (
	"context"
	"fmt"
)

// SpreadsheetType selects which spreadsheet document a sheet lives in.
type SpreadsheetType string

const (
	// SpreadsheetMain holds the canonical catalog and the mapping tables.
	SpreadsheetMain SpreadsheetType = "main"
	// SpreadsheetMarketplace holds marketplace definitions and mirrored entities.
	SpreadsheetMarketplace SpreadsheetType = "marketplace"
)

// SheetRef names one tab and the number of columns it spans.
type SheetRef struct {
	Spreadsheet SpreadsheetType
	Name        string
	Columns     int
}

// Range returns the full-column A1 range, e.g. "categories!A:H".
func (s SheetRef) Range() string {
	return fmt.Sprintf("%s!A:%s", s.Name, ColumnLetter(s.width()))
}

// RowRange returns the A1 range of a single row, e.g. "categories!A5:H5".
func (s SheetRef) RowRange(rowIndex int) string {
	return fmt.Sprintf("%s!A%d:%s%d", s.Name, rowIndex, ColumnLetter(s.width()), rowIndex)
}

// String identifies the sheet in logs and map keys.
func (s SheetRef) String() string {
	return string(s.Spreadsheet) + "/" + s.Name
}

func (s SheetRef) width() int {
	if s.Columns < 1 {
		return 26
	}
	return s.Columns
}

// ColumnLetter converts a 1-based column number to its letter form (1 -> A, 27 -> AA).
func ColumnLetter(n int) string {
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}

// DeleteRange is a 0-based half-open span of rows, as the batch update API expects.
type DeleteRange struct {
	Start int
	End   int
}

// Backend is the remote protocol the store drives. Get returns rows with row 0
// as the header, or nothing for an empty sheet.
type Backend interface {
	Get(ctx context.Context, sheet SheetRef) ([][]string, error)
	Append(ctx context.Context, sheet SheetRef, rows [][]string) error
	Update(ctx context.Context, sheet SheetRef, rowIndex int, values []string) error
	DeleteRows(ctx context.Context, sheet SheetRef, r DeleteRange) error
}

// SheetCreator is implemented by backends that can add a missing tab.
type SheetCreator interface {
	CreateSheet(ctx context.Context, sheet SheetRef) error
}
