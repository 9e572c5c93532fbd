// Package adapters holds the import adapters registered at startup.
package adapters

import (
	"context"
	"strings"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/pipeline"
	"github.com/dvloznov/taxonomy-bridge/internal/tabular"
	"github.com/dvloznov/taxonomy-bridge/internal/textnorm"
)

// Value types inferred for characteristics the file leaves untyped.
const (
	TypeSelect = "select"
	TypeText   = "text"
)

// instructionMarkers name tabs that document a template instead of holding data.
var instructionMarkers = []string{"instruction", "readme", "help", "інструкц", "инструкц", "довідк", "справк"}

// categoryTabMarkers name tabs that list the marketplace category tree.
var categoryTabMarkers = []string{"categor", "категор"}

// Generic imports any marketplace export. Header patterns and fixed columns
// come from the marketplace's field_schema and column_mapping.
type Generic struct{}

// NewGeneric creates the fallback adapter. Register it last.
func NewGeneric() *Generic {
	return &Generic{}
}

func (g *Generic) Name() string { return "generic" }

func (g *Generic) Match(mp *domain.Marketplace) bool { return true }

func (g *Generic) Config() pipeline.AdapterConfig {
	return pipeline.AdapterConfig{Source: "file", HeaderSearchRows: tabular.MaxHeaderSearchRows}
}

func (g *Generic) OnFileLoaded(ctx context.Context, state *pipeline.ImportState) error {
	dropInstructionTabs(state.Workbook)
	return nil
}

func (g *Generic) ColumnPatterns(mp *domain.Marketplace) (pipeline.Patterns, error) {
	return pipeline.ParsePatterns(mp.FieldSchema)
}

func (g *Generic) FixedMapping(mp *domain.Marketplace) (pipeline.ColumnMap, error) {
	return pipeline.ParseFixedColumns(mp.ColumnMapping)
}

// Categories reads a separate category tab, when the workbook has one besides
// the tab being imported.
func (g *Generic) Categories(ctx context.Context, state *pipeline.ImportState) ([]*domain.MpEntity, error) {
	patterns, err := g.ColumnPatterns(state.Marketplace)
	if err != nil {
		return nil, err
	}
	return categoriesFromTab(state, pipeline.DefaultPatterns.Merge(patterns), g.Config().HeaderSearchRows), nil
}

// BeforeImport types characteristics the file left untyped: select when the
// file lists options for them, text otherwise.
func (g *Generic) BeforeImport(ctx context.Context, state *pipeline.ImportState) error {
	inferTypes(state.Parsed)
	return nil
}

func dropInstructionTabs(wb *tabular.Workbook) {
	kept := wb.Sheets[:0]
	for _, s := range wb.Sheets {
		if containsAny(textnorm.Header(s.Name), instructionMarkers) || len(s.Rows) == 0 {
			continue
		}
		kept = append(kept, s)
	}
	wb.Sheets = kept
}

func categoriesFromTab(state *pipeline.ImportState, patterns pipeline.Patterns, searchRows int) []*domain.MpEntity {
	for _, sheet := range state.Workbook.Sheets {
		if sheet.Name == state.Sheet.Name || !containsAny(textnorm.Header(sheet.Name), categoryTabMarkers) {
			continue
		}
		headerRow := tabular.FindHeaderRow(sheet.Rows, searchRows, pipeline.HeaderScore(patterns))
		if headerRow < 0 {
			continue
		}
		cols := pipeline.DetectColumns(sheet.Rows[headerRow], patterns)
		if !cols.Has(pipeline.FieldCategoryID) || !cols.Has(pipeline.FieldCategoryName) {
			continue
		}
		onlyCategories := pipeline.ColumnMap{}
		for _, f := range []pipeline.Field{pipeline.FieldCategoryID, pipeline.FieldCategoryName, pipeline.FieldParentCategoryID} {
			if idx, ok := cols[f]; ok {
				onlyCategories[f] = idx
			}
		}
		parsed := pipeline.InterpretRows(state.Marketplace.ID, state.Source(), sheet.Rows[headerRow], sheet.Rows[headerRow+1:], onlyCategories)
		return parsed.Categories
	}
	return nil
}

func inferTypes(parsed *pipeline.Parsed) {
	withOptions := make(map[string]bool)
	for _, o := range parsed.Options {
		withOptions[o.Data.CharacteristicID] = true
	}
	for _, c := range parsed.Characteristics {
		if c.Data.Type != "" {
			continue
		}
		if withOptions[c.ExternalID] {
			c.Data.Type = TypeSelect
		} else {
			c.Data.Type = TypeText
		}
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

var (
	_ pipeline.Adapter               = (*Generic)(nil)
	_ pipeline.ColumnPatternProvider = (*Generic)(nil)
	_ pipeline.FixedMappingProvider  = (*Generic)(nil)
	_ pipeline.CategoryProvider      = (*Generic)(nil)
	_ pipeline.BeforeImportHook      = (*Generic)(nil)
)

