package adapters

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/pipeline"
	"github.com/dvloznov/taxonomy-bridge/internal/tabular"
	"github.com/dvloznov/taxonomy-bridge/internal/textnorm"
	"github.com/rs/zerolog"
)

// ReferenceSlug is the slug of the marketplace entry that stands for the
// canonical catalog's own admin export.
const ReferenceSlug = "reference"

var errNoTables = fmt.Errorf("no category, characteristic or option table: %w", domain.ErrParse)

// CanonicalStore writes canonical records.
type CanonicalStore interface {
	OwnExists(kind domain.Kind, id string) bool
	AddCategories(ctx context.Context, items []*domain.Category) ([]*domain.Category, error)
	AddCharacteristics(ctx context.Context, items []*domain.Characteristic) ([]*domain.Characteristic, error)
	AddOptions(ctx context.Context, items []*domain.Option) ([]*domain.Option, error)
}

// Reference imports the admin tables of the canonical catalog (HTML) straight
// into the canonical sheets. Ids from the file are kept, which makes a
// re-import write only the rows it has not seen.
type Reference struct {
	store CanonicalStore
	log   zerolog.Logger
}

// NewReference creates the reference adapter.
func NewReference(store CanonicalStore, log zerolog.Logger) *Reference {
	return &Reference{store: store, log: log}
}

func (r *Reference) Name() string { return "reference" }

func (r *Reference) Match(mp *domain.Marketplace) bool { return mp.Slug == ReferenceSlug }

func (r *Reference) Config() pipeline.AdapterConfig {
	return pipeline.AdapterConfig{Source: "reference", HeaderSearchRows: 5}
}

func (r *Reference) OnFileLoaded(ctx context.Context, state *pipeline.ImportState) error {
	dropInstructionTabs(state.Workbook)
	return nil
}

// refColumn lists the normalized header spellings of one column.
type refColumn struct {
	key     string
	headers []string
}

var (
	refID        = refColumn{"id", []string{"id", "код"}}
	refName      = refColumn{"name", []string{"name", "name primary", "title", "назва", "название", "value", "value primary", "значення", "значение"}}
	refNameAlt   = refColumn{"name_secondary", []string{"name secondary", "name en", "value secondary", "value en"}}
	refParent    = refColumn{"parent", []string{"parent", "parent id", "parent category id", "parent option id"}}
	refGrouping  = refColumn{"grouping", []string{"is grouping", "grouping", "group"}}
	refType      = refColumn{"type", []string{"type", "value type"}}
	refUnit      = refColumn{"unit", []string{"unit", "одиниця", "единица"}}
	refFilter    = refColumn{"filter", []string{"filter", "filter type"}}
	refGlobal    = refColumn{"global", []string{"global", "is global"}}
	refCatIDs    = refColumn{"category_ids", []string{"category ids", "categories"}}
	refCharID    = refColumn{"characteristic_id", []string{"characteristic id", "characteristic", "char id"}}
	refSortOrder = refColumn{"sort", []string{"sort", "sort order", "order"}}

	refAllColumns = []refColumn{
		refID, refName, refNameAlt, refParent, refGrouping, refType, refUnit,
		refFilter, refGlobal, refCatIDs, refCharID, refSortOrder,
	}
)

// refTable is one admin table with its columns resolved.
type refTable struct {
	kind domain.Kind
	name string
	cols map[string]int
	rows [][]string
}

func (t *refTable) value(row []string, c refColumn) string {
	i, ok := t.cols[c.key]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func resolveRefColumns(header []string) map[string]int {
	cols := make(map[string]int)
cells:
	for i, cell := range header {
		h := textnorm.Header(cell)
		for _, c := range refAllColumns {
			if _, taken := cols[c.key]; taken {
				continue
			}
			if slices.Contains(c.headers, h) {
				cols[c.key] = i
				continue cells
			}
		}
	}
	return cols
}

func refHeaderScore(row []string) int {
	return len(resolveRefColumns(row))
}

// classify names the kind of a table: by its id or caption, then by the
// columns only that kind carries.
func classify(name string, cols map[string]int) (domain.Kind, bool) {
	n := textnorm.Header(name)
	switch {
	case containsAny(n, []string{"categor", "категор"}):
		return domain.KindCategory, true
	case containsAny(n, []string{"characteristic", "attribute", "характеристик"}):
		return domain.KindCharacteristic, true
	case containsAny(n, []string{"option", "value", "значен"}):
		return domain.KindOption, true
	}
	has := func(c refColumn) bool { _, ok := cols[c.key]; return ok }
	switch {
	case has(refCharID):
		return domain.KindOption, true
	case has(refType) || has(refUnit) || has(refFilter) || has(refCatIDs):
		return domain.KindCharacteristic, true
	case has(refParent) || has(refGrouping):
		return domain.KindCategory, true
	}
	return "", false
}

func (r *Reference) tables(state *pipeline.ImportState) map[domain.Kind]*refTable {
	out := make(map[domain.Kind]*refTable)
	for _, sheet := range state.Workbook.Sheets {
		header := tabular.FindHeaderRow(sheet.Rows, r.Config().HeaderSearchRows, refHeaderScore)
		if header < 0 {
			continue
		}
		cols := resolveRefColumns(sheet.Rows[header])
		if _, ok := cols[refName.key]; !ok {
			continue
		}
		kind, ok := classify(sheet.Name, cols)
		if !ok {
			continue
		}
		if _, dup := out[kind]; dup {
			r.log.Warn().Str("table", sheet.Name).Str("kind", string(kind)).Msg("Ignoring second reference table of the same kind")
			continue
		}
		out[kind] = &refTable{kind: kind, name: sheet.Name, cols: cols, rows: sheet.Rows[header+1:]}
	}
	return out
}

// Execute writes categories, then characteristics, then options.
func (r *Reference) Execute(ctx context.Context, state *pipeline.ImportState) error {
	tables := r.tables(state)
	if len(tables) == 0 {
		return errNoTables
	}

	if t, ok := tables[domain.KindCategory]; ok {
		var items []*domain.Category
		r.collect(state, t, func(row []string) {
			items = append(items, &domain.Category{
				ID:            t.value(row, refID),
				NamePrimary:   t.value(row, refName),
				NameSecondary: t.value(row, refNameAlt),
				ParentID:      t.value(row, refParent),
				IsGrouping:    domain.Truthy(t.value(row, refGrouping)),
			})
		})
		added, err := r.store.AddCategories(ctx, items)
		if err != nil {
			return fmt.Errorf("Reference.Execute: %w", err)
		}
		r.record(state, t, len(added))
	}

	if t, ok := tables[domain.KindCharacteristic]; ok {
		var items []*domain.Characteristic
		r.collect(state, t, func(row []string) {
			items = append(items, &domain.Characteristic{
				ID:            t.value(row, refID),
				NamePrimary:   t.value(row, refName),
				NameSecondary: t.value(row, refNameAlt),
				ValueType:     t.value(row, refType),
				Unit:          t.value(row, refUnit),
				FilterType:    t.value(row, refFilter),
				IsGlobal:      domain.Truthy(t.value(row, refGlobal)),
				CategoryIDs:   domain.ParseIDSet(t.value(row, refCatIDs)),
			})
		})
		added, err := r.store.AddCharacteristics(ctx, items)
		if err != nil {
			return fmt.Errorf("Reference.Execute: %w", err)
		}
		r.record(state, t, len(added))
	}

	if t, ok := tables[domain.KindOption]; ok {
		var items []*domain.Option
		r.collect(state, t, func(row []string) {
			sort, _ := strconv.Atoi(t.value(row, refSortOrder))
			items = append(items, &domain.Option{
				ID:               t.value(row, refID),
				CharacteristicID: t.value(row, refCharID),
				ValuePrimary:     t.value(row, refName),
				ValueSecondary:   t.value(row, refNameAlt),
				SortOrder:        sort,
				ParentOptionID:   t.value(row, refParent),
			})
		})
		added, err := r.store.AddOptions(ctx, items)
		if err != nil {
			return fmt.Errorf("Reference.Execute: %w", err)
		}
		r.record(state, t, len(added))
	}
	return nil
}

// collect calls add for each row worth writing. Rows without an id or a name
// are skipped; rows whose id is stored or repeated are rejected.
func (r *Reference) collect(state *pipeline.ImportState, t *refTable, add func(row []string)) {
	seen := make(map[string]bool)
	for _, row := range t.rows {
		id := t.value(row, refID)
		if tabular.IsBlankRow(row) || id == "" || t.value(row, refName) == "" {
			state.Summary.Skipped++
			continue
		}
		if seen[id] {
			state.Summary.Duplicates++
			continue
		}
		seen[id] = true
		if r.store.OwnExists(t.kind, id) {
			state.Summary.Rejected[t.kind]++
			continue
		}
		add(row)
	}
}

func (r *Reference) record(state *pipeline.ImportState, t *refTable, n int) {
	state.Summary.Created[t.kind] = n
	r.log.Info().Str("table", t.name).Str("kind", string(t.kind)).Int("created", n).
		Int("rejected", state.Summary.Rejected[t.kind]).Msg("Reference table imported")
}

var (
	_ pipeline.Adapter        = (*Reference)(nil)
	_ pipeline.ImportExecutor = (*Reference)(nil)
)
