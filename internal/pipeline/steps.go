package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/reconcile"
	"github.com/dvloznov/taxonomy-bridge/internal/tabular"
)

// ParseFileStep turns the uploaded bytes into grids and lets the adapter
// adjust them.
type ParseFileStep struct{}

func (s *ParseFileStep) Execute(ctx context.Context, state *ImportState) error {
	wb, err := tabular.Parse(state.Request.Filename, state.Request.Data)
	if err != nil {
		return err
	}
	state.Workbook = wb
	if err := state.Adapter.OnFileLoaded(ctx, state); err != nil {
		return fmt.Errorf("ParseFileStep: %s: %w", state.Adapter.Name(), err)
	}
	if len(state.Workbook.Sheets) == 0 {
		return fmt.Errorf("ParseFileStep: no usable tab: %w", domain.ErrParse)
	}
	return nil
}

// DetectColumnsStep picks the tab and header row and maps columns to fields.
type DetectColumnsStep struct{}

func (s *DetectColumnsStep) Execute(ctx context.Context, state *ImportState) error {
	patterns := DefaultPatterns
	if p, ok := state.Adapter.(ColumnPatternProvider); ok {
		extra, err := p.ColumnPatterns(state.Marketplace)
		if err != nil {
			return fmt.Errorf("DetectColumnsStep: %w", err)
		}
		patterns = patterns.Merge(extra)
	}
	var fixed ColumnMap
	if p, ok := state.Adapter.(FixedMappingProvider); ok {
		var err error
		if fixed, err = p.FixedMapping(state.Marketplace); err != nil {
			return fmt.Errorf("DetectColumnsStep: %w", err)
		}
	}

	cfg := state.Adapter.Config()
	preferred := preferredSheets(state.Workbook, cfg.PreferredSheets)
	candidates := append(preferred, state.Workbook.Sheets...)

	best, bestScore, bestHeader := -1, -1, -1
	var bestCols ColumnMap
	for i, sheet := range candidates {
		if len(sheet.Rows) == 0 {
			continue
		}
		headerRow := tabular.FindHeaderRow(sheet.Rows, cfg.HeaderSearchRows, HeaderScore(patterns))
		cols := ColumnMap{}
		if headerRow >= 0 {
			cols = DetectColumns(sheet.Rows[headerRow], patterns)
		}
		for f, idx := range fixed {
			cols[f] = idx
		}
		if !cols.Importable() {
			continue
		}
		if i < len(preferred) {
			// a working preferred tab wins outright
			best, bestCols, bestHeader = i, cols, headerRow
			break
		}
		if len(cols) > bestScore {
			best, bestScore, bestCols, bestHeader = i, len(cols), cols, headerRow
		}
	}
	if best < 0 {
		return fmt.Errorf("DetectColumnsStep: no tab with characteristic, option or category columns: %w", domain.ErrParse)
	}

	state.Sheet = candidates[best]
	state.HeaderRow = max(bestHeader, 0)
	state.Columns = bestCols
	state.Summary.Sheet = state.Sheet.Name
	return nil
}

// preferredSheets returns the named tabs that exist, in the given order.
func preferredSheets(wb *tabular.Workbook, names []string) []tabular.Sheet {
	var out []tabular.Sheet
	for _, name := range names {
		if s, ok := wb.Sheet(name); ok {
			out = append(out, s)
		}
	}
	return out
}

// InterpretStep turns data rows into mirrored records.
type InterpretStep struct{}

func (s *InterpretStep) Execute(ctx context.Context, state *ImportState) error {
	parsed := InterpretRows(state.Marketplace.ID, state.Source(), state.Header(), state.DataRows(), state.Columns)
	if p, ok := state.Adapter.(CategoryProvider); ok {
		cats, err := p.Categories(ctx, state)
		if err != nil {
			return fmt.Errorf("InterpretStep: categories: %w", err)
		}
		parsed.AddCategories(cats...)
	}
	if parsed.Len() == 0 {
		return fmt.Errorf("InterpretStep: no matching rows in %q: %w", state.Sheet.Name, domain.ErrParse)
	}
	state.Parsed = parsed
	state.Summary.Skipped = parsed.Skipped
	state.Summary.Duplicates = parsed.Duplicates
	return nil
}

// BeforeImportStep runs the adapter's hook, if any.
type BeforeImportStep struct{}

func (s *BeforeImportStep) Execute(ctx context.Context, state *ImportState) error {
	if h, ok := state.Adapter.(BeforeImportHook); ok {
		if err := h.BeforeImport(ctx, state); err != nil {
			return fmt.Errorf("BeforeImportStep: %w", err)
		}
	}
	return nil
}

// DedupStep drops records the marketplace already has.
type DedupStep struct {
	store MirrorReader
}

func (s *DedupStep) Execute(ctx context.Context, state *ImportState) error {
	state.Plan = Dedup(s.store, state.Marketplace.ID, state.Parsed)
	for kind, n := range state.Plan.Rejected {
		state.Summary.Rejected[kind] = n
	}
	return nil
}

// WriteStep appends new records kind by kind, categories first, then merges
// category references into stored characteristics.
type WriteStep struct {
	store Store
}

func (s *WriteStep) Execute(ctx context.Context, state *ImportState) error {
	batches := []struct {
		kind  domain.Kind
		items []*domain.MpEntity
	}{
		{domain.KindCategory, state.Plan.Categories},
		{domain.KindCharacteristic, state.Plan.Characteristics},
		{domain.KindOption, state.Plan.Options},
	}
	for _, b := range batches {
		if len(b.items) == 0 {
			continue
		}
		added, err := s.store.AddMirrored(ctx, b.kind, b.items)
		if err != nil {
			return fmt.Errorf("WriteStep: %s: %w", b.kind.Plural(), err)
		}
		for _, e := range added {
			state.Created[b.kind] = append(state.Created[b.kind], e.ID)
		}
		state.Summary.Created[b.kind] = len(added)
	}

	for _, m := range state.Plan.Merges {
		_, err := s.store.UpdateMirrored(ctx, domain.KindCharacteristic, m.ID, func(e *domain.MpEntity) error {
			e.Data.CategoryIDs = e.Data.CategoryIDs.Add(m.CategoryIDs...)
			for _, name := range m.CategoryNames {
				e.Data.CategoryNames = appendUnique(e.Data.CategoryNames, name)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("WriteStep: merging categories into %s: %w", m.ID, err)
		}
		state.Summary.Merged++
	}
	return nil
}

// AutoMapStep maps created records by name when the request asks for it.
type AutoMapStep struct {
	mapper AutoMapper
}

func (s *AutoMapStep) Execute(ctx context.Context, state *ImportState) error {
	if !state.Request.AutoMap || s.mapper == nil {
		return nil
	}
	state.Summary.AutoMap = make(map[domain.Kind]reconcile.AutoMapResult)
	for _, kind := range domain.Kinds {
		if ids := state.Created[kind]; len(ids) > 0 {
			state.Summary.AutoMap[kind] = s.mapper.AutoMap(ctx, kind, ids)
		}
	}
	return nil
}

type executorStep struct {
	exec ImportExecutor
}

func (s *executorStep) Execute(ctx context.Context, state *ImportState) error {
	return s.exec.Execute(ctx, state)
}
