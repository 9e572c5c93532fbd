package adapters

import (
	"context"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/pipeline"
	"github.com/dvloznov/taxonomy-bridge/internal/textnorm"
)

// Fixed imports exports with a known column layout. It matches marketplaces
// by slug or name.
type Fixed struct {
	name    string
	keys    map[string]bool
	columns pipeline.ColumnMap
	config  pipeline.AdapterConfig
}

// NewFixed creates an adapter for the marketplaces whose slug or name
// slugifies to one of keys.
func NewFixed(name string, keys []string, columns pipeline.ColumnMap, cfg pipeline.AdapterConfig) *Fixed {
	f := &Fixed{name: name, keys: make(map[string]bool, len(keys)), columns: columns, config: cfg}
	for _, k := range keys {
		f.keys[textnorm.Slug(k)] = true
	}
	if f.config.Source == "" {
		f.config.Source = name
	}
	return f
}

// Rozetka reads the seller attribute export: one row per characteristic and
// option pair, with the category in the last two columns.
func Rozetka() *Fixed {
	return NewFixed("rozetka", []string{"rozetka", "розетка"}, pipeline.ColumnMap{
		pipeline.FieldCharacteristicID:   0,
		pipeline.FieldCharacteristicName: 1,
		pipeline.FieldCharacteristicType: 2,
		pipeline.FieldFilterType:         3,
		pipeline.FieldUnit:               4,
		pipeline.FieldOptionID:           5,
		pipeline.FieldOptionName:         6,
		pipeline.FieldCategoryID:         7,
		pipeline.FieldCategoryName:       8,
	}, pipeline.AdapterConfig{HeaderSearchRows: 5, PreferredSheets: []string{"Attributes", "Характеристики"}})
}

// Epicentr reads the category parameter export. Its options sit in a
// separate file, so only characteristics and categories are mapped.
func Epicentr() *Fixed {
	return NewFixed("epicentr", []string{"epicentr", "epicentrk", "епіцентр"}, pipeline.ColumnMap{
		pipeline.FieldCategoryID:         0,
		pipeline.FieldCategoryName:       1,
		pipeline.FieldCharacteristicID:   2,
		pipeline.FieldCharacteristicName: 3,
		pipeline.FieldCharacteristicType: 4,
		pipeline.FieldIsGlobal:           5,
	}, pipeline.AdapterConfig{HeaderSearchRows: 3})
}

func (f *Fixed) Name() string { return f.name }

func (f *Fixed) Match(mp *domain.Marketplace) bool {
	return f.keys[textnorm.Slug(mp.Slug)] || f.keys[textnorm.Slug(mp.Name)]
}

func (f *Fixed) Config() pipeline.AdapterConfig { return f.config }

func (f *Fixed) OnFileLoaded(ctx context.Context, state *pipeline.ImportState) error {
	dropInstructionTabs(state.Workbook)
	return nil
}

// FixedMapping returns the built-in layout with the marketplace's own
// column_mapping applied on top.
func (f *Fixed) FixedMapping(mp *domain.Marketplace) (pipeline.ColumnMap, error) {
	own, err := pipeline.ParseFixedColumns(mp.ColumnMapping)
	if err != nil {
		return nil, err
	}
	cols := make(pipeline.ColumnMap, len(f.columns)+len(own))
	for field, idx := range f.columns {
		cols[field] = idx
	}
	for field, idx := range own {
		cols[field] = idx
	}
	return cols, nil
}

func (f *Fixed) BeforeImport(ctx context.Context, state *pipeline.ImportState) error {
	inferTypes(state.Parsed)
	return nil
}

var (
	_ pipeline.Adapter              = (*Fixed)(nil)
	_ pipeline.FixedMappingProvider = (*Fixed)(nil)
	_ pipeline.BeforeImportHook     = (*Fixed)(nil)
)
