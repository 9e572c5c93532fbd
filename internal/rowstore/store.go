package rowstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/rs/zerolog"
)

// HeaderRow is the position of the header in every sheet.
const HeaderRow = 1

// Row is one data row with its 1-based sheet position.
type Row struct {
	Index  int
	Values []string
}

// Store performs position-addressed writes against a Backend. It holds no
// record state; callers keep their in-memory collections in step with the
// positions it reports.
type Store struct {
	backend Backend
	log     zerolog.Logger
}

// NewStore creates a store over the given backend.
func NewStore(backend Backend, log zerolog.Logger) *Store {
	return &Store{backend: backend, log: log}
}

// Fetch reads a sheet. Rows are padded to the header width and keep their
// sheet position, blank rows included.
func (s *Store) Fetch(ctx context.Context, sheet SheetRef) ([]string, []Row, error) {
	values, err := s.backend.Get(ctx, sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("Fetch: reading %s: %w", sheet, err)
	}
	if len(values) == 0 {
		return nil, nil, nil
	}

	header := values[0]
	rows := make([]Row, 0, len(values)-1)
	for i, v := range values[1:] {
		padded := make([]string, max(len(header), len(v)))
		copy(padded, v)
		rows = append(rows, Row{Index: i + 2, Values: padded})
	}
	return header, rows, nil
}

// Append adds rows after the last row of the sheet.
func (s *Store) Append(ctx context.Context, sheet SheetRef, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.backend.Append(ctx, sheet, rows); err != nil {
		return fmt.Errorf("Append: writing %d rows to %s: %w", len(rows), sheet, err)
	}
	s.log.Debug().Str("sheet", sheet.String()).Int("rows", len(rows)).Msg("Rows appended")
	return nil
}

// UpdateRange rewrites the data row at rowIndex.
func (s *Store) UpdateRange(ctx context.Context, sheet SheetRef, rowIndex int, values []string) error {
	if rowIndex <= HeaderRow {
		return fmt.Errorf("UpdateRange: row %d of %s is not a data row: %w", rowIndex, sheet, domain.ErrValidation)
	}
	if err := s.backend.Update(ctx, sheet, rowIndex, values); err != nil {
		return fmt.Errorf("UpdateRange: writing row %d of %s: %w", rowIndex, sheet, err)
	}
	return nil
}

// WriteHeader writes the header row of a sheet.
func (s *Store) WriteHeader(ctx context.Context, sheet SheetRef, header []string) error {
	if err := s.backend.Update(ctx, sheet, HeaderRow, header); err != nil {
		return fmt.Errorf("WriteHeader: writing header of %s: %w", sheet, err)
	}
	return nil
}

// EnsureSheet creates the tab when the backend supports it, then writes the
// header if the sheet is empty. It reports whether a header was written.
func (s *Store) EnsureSheet(ctx context.Context, sheet SheetRef, header []string) (bool, error) {
	if creator, ok := s.backend.(SheetCreator); ok {
		if err := creator.CreateSheet(ctx, sheet); err != nil {
			return false, fmt.Errorf("EnsureSheet: creating %s: %w", sheet, err)
		}
	}
	existing, _, err := s.Fetch(ctx, sheet)
	if err != nil {
		return false, fmt.Errorf("EnsureSheet: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}
	if err := s.WriteHeader(ctx, sheet, header); err != nil {
		return false, fmt.Errorf("EnsureSheet: %w", err)
	}
	return true, nil
}

// DeleteRow hard-deletes one data row. Rows below it move up by one.
func (s *Store) DeleteRow(ctx context.Context, sheet SheetRef, rowIndex int) error {
	if rowIndex <= HeaderRow {
		return fmt.Errorf("DeleteRow: row %d of %s is not a data row: %w", rowIndex, sheet, domain.ErrValidation)
	}
	r := DeleteRange{Start: rowIndex - 1, End: rowIndex}
	if err := s.backend.DeleteRows(ctx, sheet, r); err != nil {
		return fmt.Errorf("DeleteRow: deleting row %d of %s: %w", rowIndex, sheet, err)
	}
	return nil
}

// DeleteRowsBatch deletes rows one at a time from the highest index down, so
// no deletion moves a row that is still pending. It returns the indices that
// were actually deleted, in deletion order. A failure stops the batch; rows
// deleted before it stay deleted.
func (s *Store) DeleteRowsBatch(ctx context.Context, sheet SheetRef, rowIndices []int) ([]int, error) {
	ordered := SortDescending(rowIndices)
	for _, idx := range ordered {
		if idx <= HeaderRow {
			return nil, fmt.Errorf("DeleteRowsBatch: row %d of %s is not a data row: %w", idx, sheet, domain.ErrValidation)
		}
	}

	deleted := make([]int, 0, len(ordered))
	for _, idx := range ordered {
		if err := s.DeleteRow(ctx, sheet, idx); err != nil {
			s.log.Error().
				Err(err).
				Str("sheet", sheet.String()).
				Ints("deleted", deleted).
				Int("failed_row", idx).
				Msg("Batch delete stopped partway")
			return deleted, fmt.Errorf("DeleteRowsBatch: %w", err)
		}
		deleted = append(deleted, idx)
	}
	s.log.Debug().Str("sheet", sheet.String()).Int("rows", len(deleted)).Msg("Rows deleted")
	return deleted, nil
}

// SortDescending returns the distinct indices ordered highest first.
func SortDescending(indices []int) []int {
	seen := make(map[int]bool, len(indices))
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
