// Package repository keeps typed, in-memory collections of every entity kind
// in step with their backing sheets.
package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/events"
	"github.com/dvloznov/taxonomy-bridge/internal/rowstore"
	"github.com/dvloznov/taxonomy-bridge/internal/textnorm"
	"github.com/rs/zerolog"
)

type record interface {
	rowstore.Indexed
}

// fields is one row keyed by canonical column name.
type fields map[string]string

func (f fields) str(key string) string { return strings.TrimSpace(f[key]) }

func (f fields) boolean(key string) bool { return domain.Truthy(f[key]) }

func (f fields) integer(key string) int {
	n, err := strconv.Atoi(f.str(key))
	if err != nil {
		return 0
	}
	return n
}

func (f fields) time(key string) time.Time {
	t, err := time.Parse(time.RFC3339, f.str(key))
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// schema describes how one entity kind maps onto its sheet.
type schema[T record] struct {
	sheet   rowstore.SheetRef
	columns []string
	// aliases maps alternate header keys to canonical columns.
	aliases map[string]string
	// prefix enables "prefix-NNNNNN" id generation when an added record has no id.
	prefix   string
	id       func(T) string
	setID    func(T, string)
	clone    func(T) T
	decode   func(fields) (T, error)
	encode   func(T) fields
	validate func(T) error
}

// Table is the in-memory collection of one sheet. Writes hold the table lock
// across the remote call, so mutations of one sheet never interleave.
type Table[T record] struct {
	schema schema[T]
	store  *rowstore.Store
	bus    *events.Bus
	log    zerolog.Logger

	mu     sync.RWMutex
	items  []T
	layout []string
	raw    map[string][]string
	// dataRows counts every data row of the sheet, including skipped ones.
	dataRows int
	// header is the row-1 content to write when headerStale is set.
	header      []string
	headerStale bool
}

func newTable[T record](s schema[T], store *rowstore.Store, bus *events.Bus, log zerolog.Logger) *Table[T] {
	s.sheet.Columns = len(s.columns)
	return &Table[T]{
		schema:      s,
		store:       store,
		bus:         bus,
		log:         log.With().Str("sheet", s.sheet.Name).Logger(),
		layout:      s.columns,
		raw:         make(map[string][]string),
		header:      s.columns,
		headerStale: true,
	}
}

// Sheet returns the backing sheet reference.
func (t *Table[T]) Sheet() rowstore.SheetRef { return t.schema.sheet }

// Columns returns the canonical header.
func (t *Table[T]) Columns() []string { return append([]string(nil), t.schema.columns...) }

// Load replaces the collection with the sheet's current content. Rows
// without an id are skipped but keep their positions.
func (t *Table[T]) Load(ctx context.Context) error {
	header, rows, err := t.store.Fetch(ctx, t.schema.sheet)
	if err != nil {
		return fmt.Errorf("Load: %w", err)
	}

	layout, fullHeader, stale := t.schema.columns, t.schema.columns, true
	if len(header) > 0 {
		layout, fullHeader, stale = planLayout(header, t.schema.columns, t.schema.aliases)
	}

	items := make([]T, 0, len(rows))
	raw := make(map[string][]string, len(rows))
	for _, row := range rows {
		f := make(fields, len(layout))
		for i, name := range layout {
			if name != "" && i < len(row.Values) {
				f[name] = row.Values[i]
			}
		}
		if f.str("id") == "" {
			continue
		}
		item, err := t.schema.decode(f)
		if err != nil {
			t.log.Warn().Err(err).Int("row", row.Index).Msg("Skipping undecodable row")
			continue
		}
		item.SetIndex(row.Index)
		items = append(items, item)
		raw[t.schema.id(item)] = row.Values
	}

	t.mu.Lock()
	t.items = items
	t.layout = layout
	t.raw = raw
	t.dataRows = len(rows)
	t.header = fullHeader
	t.headerStale = stale
	t.schema.sheet.Columns = len(layout)
	t.mu.Unlock()

	t.log.Debug().Int("records", len(items)).Msg("Sheet loaded")
	t.bus.Publish(events.Event{Topic: events.DataLoaded, Table: t.schema.sheet.Name})
	return nil
}

// All returns copies of every record in sheet order.
func (t *Table[T]) All() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, len(t.items))
	for i, item := range t.items {
		out[i] = t.schema.clone(item)
	}
	return out
}

// Len returns the number of records.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Get returns a copy of the record with the given id.
func (t *Table[T]) Get(id string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.indexOf(id); i >= 0 {
		return t.schema.clone(t.items[i]), true
	}
	var zero T
	return zero, false
}

// Filter returns copies of the records matching keep.
func (t *Table[T]) Filter(keep func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []T
	for _, item := range t.items {
		if keep(item) {
			out = append(out, t.schema.clone(item))
		}
	}
	return out
}

// Add appends one record. See AddBatch.
func (t *Table[T]) Add(ctx context.Context, item T) (T, error) {
	added, err := t.AddBatch(ctx, []T{item})
	if err != nil {
		var zero T
		return zero, err
	}
	return added[0], nil
}

// AddBatch validates the records, assigns missing ids, appends them in one
// remote call and only then adds them to memory. The passed records are not
// retained; copies are returned.
func (t *Table[T]) AddBatch(ctx context.Context, items []T) ([]T, error) {
	if len(items) == 0 {
		return nil, nil
	}

	t.mu.Lock()
	pending := make([]T, 0, len(items))
	seen := make(map[string]bool, len(items))
	ids := t.idsLocked()
	for _, in := range items {
		item := t.schema.clone(in)
		if t.schema.id(item) == "" && t.schema.prefix != "" {
			next := NextID(t.schema.prefix, ids)
			t.schema.setID(item, next)
			ids = append(ids, next)
		}
		id := t.schema.id(item)
		if id == "" {
			t.mu.Unlock()
			return nil, fmt.Errorf("AddBatch: %s record without id: %w", t.schema.sheet.Name, domain.ErrValidation)
		}
		if err := t.schema.validate(item); err != nil {
			t.mu.Unlock()
			return nil, fmt.Errorf("AddBatch: %s %s: %w", t.schema.sheet.Name, id, err)
		}
		if seen[id] || t.indexOf(id) >= 0 {
			t.mu.Unlock()
			return nil, fmt.Errorf("AddBatch: %s %s already exists: %w", t.schema.sheet.Name, id, domain.ErrValidation)
		}
		seen[id] = true
		pending = append(pending, item)
	}

	if err := t.writeHeaderLocked(ctx); err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("AddBatch: %w", err)
	}

	rows := make([][]string, len(pending))
	for i, item := range pending {
		rows[i] = t.encodeRow(item, nil)
	}
	if err := t.store.Append(ctx, t.schema.sheet, rows); err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("AddBatch: %w", err)
	}

	next := rowstore.HeaderRow + t.dataRows + 1
	t.dataRows += len(pending)
	out := make([]T, len(pending))
	created := make([]string, len(pending))
	for i, item := range pending {
		item.SetIndex(next + i)
		t.items = append(t.items, item)
		t.raw[t.schema.id(item)] = rows[i]
		out[i] = t.schema.clone(item)
		created[i] = t.schema.id(item)
	}
	t.mu.Unlock()

	t.bus.Publish(events.Event{Topic: events.DataChanged, Table: t.schema.sheet.Name, Op: events.OpCreate, IDs: created})
	return out, nil
}

// Update applies patch to a copy of the record, rewrites its full row and
// swaps the copy in once the write succeeded. The id cannot change.
func (t *Table[T]) Update(ctx context.Context, id string, patch func(T) error) (T, error) {
	var zero T

	t.mu.Lock()
	i := t.indexOf(id)
	if i < 0 {
		t.mu.Unlock()
		return zero, fmt.Errorf("Update: %s %s: %w", t.schema.sheet.Name, id, domain.ErrNotFound)
	}
	current := t.items[i]
	next := t.schema.clone(current)
	if err := patch(next); err != nil {
		t.mu.Unlock()
		return zero, fmt.Errorf("Update: %s %s: %w", t.schema.sheet.Name, id, err)
	}
	if t.schema.id(next) != id {
		t.mu.Unlock()
		return zero, fmt.Errorf("Update: %s %s: id is immutable: %w", t.schema.sheet.Name, id, domain.ErrValidation)
	}
	if err := t.schema.validate(next); err != nil {
		t.mu.Unlock()
		return zero, fmt.Errorf("Update: %s %s: %w", t.schema.sheet.Name, id, err)
	}

	if err := t.writeHeaderLocked(ctx); err != nil {
		t.mu.Unlock()
		return zero, fmt.Errorf("Update: %w", err)
	}
	row := t.encodeRow(next, t.raw[id])
	if err := t.store.UpdateRange(ctx, t.schema.sheet, current.Index(), row); err != nil {
		t.mu.Unlock()
		return zero, fmt.Errorf("Update: %w", err)
	}
	next.SetIndex(current.Index())
	t.items[i] = next
	t.raw[id] = row
	out := t.schema.clone(next)
	t.mu.Unlock()

	t.bus.Publish(events.Event{Topic: events.DataChanged, Table: t.schema.sheet.Name, Op: events.OpUpdate, IDs: []string{id}})
	return out, nil
}

// Delete hard-deletes one record and shifts the rows below it.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	i := t.indexOf(id)
	if i < 0 {
		t.mu.Unlock()
		return fmt.Errorf("Delete: %s %s: %w", t.schema.sheet.Name, id, domain.ErrNotFound)
	}
	idx := t.items[i].Index()
	if err := t.store.DeleteRow(ctx, t.schema.sheet, idx); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("Delete: %w", err)
	}
	t.items = append(t.items[:i], t.items[i+1:]...)
	t.dataRows--
	delete(t.raw, id)
	rowstore.AdjustRowIndices(t.items, idx)
	t.mu.Unlock()

	t.bus.Publish(events.Event{Topic: events.DataChanged, Table: t.schema.sheet.Name, Op: events.OpDelete, IDs: []string{id}})
	return nil
}

// DeleteBatch deletes several records. Unknown ids are ignored. On a partial
// failure memory drops exactly the rows the sheet lost, and the error is
// returned together with the ids that were deleted.
func (t *Table[T]) DeleteBatch(ctx context.Context, ids []string) ([]string, error) {
	t.mu.Lock()
	byIndex := make(map[int]string, len(ids))
	indices := make([]int, 0, len(ids))
	for _, id := range ids {
		if i := t.indexOf(id); i >= 0 {
			idx := t.items[i].Index()
			if _, dup := byIndex[idx]; !dup {
				byIndex[idx] = id
				indices = append(indices, idx)
			}
		}
	}
	if len(indices) == 0 {
		t.mu.Unlock()
		return nil, nil
	}

	deletedRows, err := t.store.DeleteRowsBatch(ctx, t.schema.sheet, indices)

	gone := make(map[int]bool, len(deletedRows))
	deletedIDs := make([]string, 0, len(deletedRows))
	for _, idx := range deletedRows {
		gone[idx] = true
		deletedIDs = append(deletedIDs, byIndex[idx])
		delete(t.raw, byIndex[idx])
	}
	kept := t.items[:0]
	for _, item := range t.items {
		if !gone[item.Index()] {
			kept = append(kept, item)
		}
	}
	t.items = kept
	t.dataRows -= len(deletedRows)
	rowstore.ShiftAfterBatch(t.items, deletedRows)
	t.mu.Unlock()

	if len(deletedIDs) > 0 {
		t.bus.Publish(events.Event{Topic: events.DataChanged, Table: t.schema.sheet.Name, Op: events.OpDelete, IDs: deletedIDs})
	}
	if err != nil {
		t.log.Error().Err(err).Int("deleted", len(deletedIDs)).Int("requested", len(indices)).Msg("Batch delete incomplete")
		return deletedIDs, fmt.Errorf("DeleteBatch: %w", err)
	}
	return deletedIDs, nil
}

// writeHeaderLocked writes row 1 when the sheet has no header yet or lacks
// canonical columns.
func (t *Table[T]) writeHeaderLocked(ctx context.Context) error {
	if !t.headerStale {
		return nil
	}
	if err := t.store.WriteHeader(ctx, t.schema.sheet, t.header); err != nil {
		return err
	}
	t.headerStale = false
	return nil
}

func (t *Table[T]) indexOf(id string) int {
	for i, item := range t.items {
		if t.schema.id(item) == id {
			return i
		}
	}
	return -1
}

func (t *Table[T]) idsLocked() []string {
	ids := make([]string, len(t.items))
	for i, item := range t.items {
		ids[i] = t.schema.id(item)
	}
	return ids
}

// encodeRow lays the record out in the sheet's column order. Columns the
// schema does not know keep the values found at load.
func (t *Table[T]) encodeRow(item T, previous []string) []string {
	row := make([]string, len(t.layout))
	copy(row, previous)
	f := t.schema.encode(item)
	for i, name := range t.layout {
		if name != "" {
			row[i] = f[name]
		}
	}
	return row
}

// planLayout resolves the header and appends any canonical column the sheet
// lacks, so every field has a place to be written. It returns the layout, the
// header row that matches it, and whether that header differs from the sheet.
func planLayout(header, columns []string, aliases map[string]string) ([]string, []string, bool) {
	layout := resolveHeader(header, columns, aliases)
	present := make(map[string]bool, len(layout))
	for _, name := range layout {
		present[name] = true
	}
	full := append([]string(nil), header...)
	stale := false
	for _, c := range columns {
		if !present[c] {
			layout = append(layout, c)
			full = append(full, c)
			stale = true
		}
	}
	return layout, full, stale
}

// resolveHeader maps each header cell to a canonical column: exact key, then
// alias, then prefix match for truncated headers. Each column is claimed by
// the first cell that resolves to it; other cells map to "".
func resolveHeader(header, columns []string, aliases map[string]string) []string {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}

	claimed := make(map[string]bool, len(columns))
	layout := make([]string, len(header))
	for i, cell := range header {
		key := textnorm.Key(cell)
		name := ""
		switch {
		case key == "":
		case known[key]:
			name = key
		case aliases[key] != "":
			name = aliases[key]
		case len(key) >= 3:
			for _, c := range columns {
				if strings.HasPrefix(c, key) && !claimed[c] {
					name = c
					break
				}
			}
		}
		if name != "" && !claimed[name] {
			claimed[name] = true
			layout[i] = name
		}
	}
	return layout
}

// NextID returns prefix-NNNNNN with the highest existing suffix plus one.
// Gaps are never reused.
func NextID(prefix string, existing []string) string {
	highest := 0
	for _, id := range existing {
		rest, ok := strings.CutPrefix(id, prefix+"-")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s-%06d", prefix, highest+1)
}
