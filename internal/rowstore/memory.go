package rowstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend keeps sheets in process memory. It backs the "memory"
// storage mode and the tests. The On* hooks run before each write and can
// fail it.
type MemoryBackend struct {
	mu     sync.Mutex
	sheets map[string][][]string

	OnAppend func(sheet SheetRef, rows [][]string) error
	OnUpdate func(sheet SheetRef, rowIndex int) error
	OnDelete func(sheet SheetRef, r DeleteRange) error
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sheets: make(map[string][][]string)}
}

// Seed replaces a sheet's content. rows[0] is the header.
func (m *MemoryBackend) Seed(sheet SheetRef, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[sheet.String()] = copyRows(rows)
}

// Rows returns a copy of a sheet's content including the header.
func (m *MemoryBackend) Rows(sheet SheetRef) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRows(m.sheets[sheet.String()])
}

// Get implements Backend.
func (m *MemoryBackend) Get(ctx context.Context, sheet SheetRef) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Rows(sheet), nil
}

// Append implements Backend.
func (m *MemoryBackend) Append(ctx context.Context, sheet SheetRef, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.OnAppend != nil {
		if err := m.OnAppend(sheet, rows); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sheet.String()
	m.sheets[key] = append(m.sheets[key], copyRows(rows)...)
	return nil
}

// Update implements Backend. Writing past the end grows the sheet.
func (m *MemoryBackend) Update(ctx context.Context, sheet SheetRef, rowIndex int, values []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rowIndex < 1 {
		return fmt.Errorf("row %d out of range", rowIndex)
	}
	if m.OnUpdate != nil {
		if err := m.OnUpdate(sheet, rowIndex); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sheet.String()
	for len(m.sheets[key]) < rowIndex {
		m.sheets[key] = append(m.sheets[key], nil)
	}
	m.sheets[key][rowIndex-1] = append([]string(nil), values...)
	return nil
}

// DeleteRows implements Backend.
func (m *MemoryBackend) DeleteRows(ctx context.Context, sheet SheetRef, r DeleteRange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.OnDelete != nil {
		if err := m.OnDelete(sheet, r); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sheet.String()
	rows := m.sheets[key]
	if r.Start < 0 || r.End > len(rows) || r.Start >= r.End {
		return fmt.Errorf("delete range [%d,%d) out of bounds for %s (%d rows)", r.Start, r.End, key, len(rows))
	}
	m.sheets[key] = append(rows[:r.Start:r.Start], rows[r.End:]...)
	return nil
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

var _ Backend = (*MemoryBackend)(nil)
