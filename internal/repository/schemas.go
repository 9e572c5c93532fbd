package repository

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/rowstore"
)

// Sheet names.
const (
	SheetCategories         = "categories"
	SheetCharacteristics    = "characteristics"
	SheetOptions            = "options"
	SheetMarketplaces       = "marketplaces"
	SheetMpCategories       = "mp_categories"
	SheetMpCharacteristics  = "mp_characteristics"
	SheetMpOptions          = "mp_options"
	SheetMapCategories      = "map_categories"
	SheetMapCharacteristics = "map_characteristics"
	SheetMapOptions         = "map_options"
)

func requireField(value, name string) error {
	if value == "" {
		return fmt.Errorf("%s is required: %w", name, domain.ErrValidation)
	}
	return nil
}

func categorySchema() schema[*domain.Category] {
	return schema[*domain.Category]{
		sheet:   rowstore.SheetRef{Spreadsheet: rowstore.SpreadsheetMain, Name: SheetCategories},
		columns: []string{"id", "name_primary", "name_secondary", "parent_id", "is_grouping"},
		aliases: map[string]string{
			"name": "name_primary", "title": "name_primary", "name_en": "name_secondary",
			"parent": "parent_id", "grouping": "is_grouping", "is_group": "is_grouping",
		},
		prefix: domain.CategoryPrefix,
		id:     func(c *domain.Category) string { return c.ID },
		setID:  func(c *domain.Category, id string) { c.ID = id },
		clone:  (*domain.Category).Clone,
		decode: func(f fields) (*domain.Category, error) {
			return &domain.Category{
				ID:            f.str("id"),
				NamePrimary:   f.str("name_primary"),
				NameSecondary: f.str("name_secondary"),
				ParentID:      f.str("parent_id"),
				IsGrouping:    f.boolean("is_grouping"),
			}, nil
		},
		encode: func(c *domain.Category) fields {
			return fields{
				"id":             c.ID,
				"name_primary":   c.NamePrimary,
				"name_secondary": c.NameSecondary,
				"parent_id":      c.ParentID,
				"is_grouping":    domain.FormatBool(c.IsGrouping),
			}
		},
		validate: func(c *domain.Category) error {
			if c.ParentID != "" && c.ParentID == c.ID {
				return fmt.Errorf("category cannot be its own parent: %w", domain.ErrValidation)
			}
			return requireField(c.NamePrimary, "name_primary")
		},
	}
}

func characteristicSchema() schema[*domain.Characteristic] {
	return schema[*domain.Characteristic]{
		sheet: rowstore.SheetRef{Spreadsheet: rowstore.SpreadsheetMain, Name: SheetCharacteristics},
		columns: []string{
			"id", "name_primary", "name_secondary", "value_type", "unit",
			"filter_type", "is_global", "category_ids",
		},
		aliases: map[string]string{
			"name": "name_primary", "title": "name_primary", "name_en": "name_secondary",
			"type": "value_type", "filter": "filter_type", "global": "is_global",
			"categories": "category_ids",
		},
		prefix: domain.CharacteristicPrefix,
		id:     func(c *domain.Characteristic) string { return c.ID },
		setID:  func(c *domain.Characteristic, id string) { c.ID = id },
		clone:  (*domain.Characteristic).Clone,
		decode: func(f fields) (*domain.Characteristic, error) {
			return &domain.Characteristic{
				ID:            f.str("id"),
				NamePrimary:   f.str("name_primary"),
				NameSecondary: f.str("name_secondary"),
				ValueType:     f.str("value_type"),
				Unit:          f.str("unit"),
				FilterType:    f.str("filter_type"),
				IsGlobal:      f.boolean("is_global"),
				CategoryIDs:   domain.ParseIDSet(f["category_ids"]),
			}, nil
		},
		encode: func(c *domain.Characteristic) fields {
			return fields{
				"id":             c.ID,
				"name_primary":   c.NamePrimary,
				"name_secondary": c.NameSecondary,
				"value_type":     c.ValueType,
				"unit":           c.Unit,
				"filter_type":    c.FilterType,
				"is_global":      domain.FormatBool(c.IsGlobal),
				"category_ids":   c.CategoryIDs.String(),
			}
		},
		validate: func(c *domain.Characteristic) error {
			return requireField(c.NamePrimary, "name_primary")
		},
	}
}

func optionSchema() schema[*domain.Option] {
	return schema[*domain.Option]{
		sheet: rowstore.SheetRef{Spreadsheet: rowstore.SpreadsheetMain, Name: SheetOptions},
		columns: []string{
			"id", "characteristic_id", "value_primary", "value_secondary", "sort_order", "parent_option_id",
		},
		aliases: map[string]string{
			"char_id": "characteristic_id", "value": "value_primary", "name": "value_primary",
			"value_en": "value_secondary", "order": "sort_order", "sort": "sort_order",
			"parent_id": "parent_option_id", "parent": "parent_option_id",
		},
		prefix: domain.OptionPrefix,
		id:     func(o *domain.Option) string { return o.ID },
		setID:  func(o *domain.Option, id string) { o.ID = id },
		clone:  (*domain.Option).Clone,
		decode: func(f fields) (*domain.Option, error) {
			return &domain.Option{
				ID:               f.str("id"),
				CharacteristicID: f.str("characteristic_id"),
				ValuePrimary:     f.str("value_primary"),
				ValueSecondary:   f.str("value_secondary"),
				SortOrder:        f.integer("sort_order"),
				ParentOptionID:   f.str("parent_option_id"),
			}, nil
		},
		encode: func(o *domain.Option) fields {
			return fields{
				"id":                o.ID,
				"characteristic_id": o.CharacteristicID,
				"value_primary":     o.ValuePrimary,
				"value_secondary":   o.ValueSecondary,
				"sort_order":        strconv.Itoa(o.SortOrder),
				"parent_option_id":  o.ParentOptionID,
			}
		},
		validate: func(o *domain.Option) error {
			return requireField(o.ValuePrimary, "value_primary")
		},
	}
}

func marketplaceSchema() schema[*domain.Marketplace] {
	return schema[*domain.Marketplace]{
		sheet: rowstore.SheetRef{Spreadsheet: rowstore.SpreadsheetMarketplace, Name: SheetMarketplaces},
		columns: []string{
			"id", "name", "slug", "is_active", "field_schema", "column_mapping", "created_at",
		},
		aliases: map[string]string{
			"state": "is_active", "active": "is_active", "enabled": "is_active",
			"schema": "field_schema", "mapping": "column_mapping", "columns": "column_mapping",
		},
		prefix: domain.MarketplacePrefix,
		id:     func(m *domain.Marketplace) string { return m.ID },
		setID:  func(m *domain.Marketplace, id string) { m.ID = id },
		clone:  (*domain.Marketplace).Clone,
		decode: func(f fields) (*domain.Marketplace, error) {
			return &domain.Marketplace{
				ID:            f.str("id"),
				Name:          f.str("name"),
				Slug:          f.str("slug"),
				IsActive:      f.boolean("is_active"),
				FieldSchema:   f.str("field_schema"),
				ColumnMapping: f.str("column_mapping"),
				CreatedAt:     f.time("created_at"),
			}, nil
		},
		encode: func(m *domain.Marketplace) fields {
			return fields{
				"id":             m.ID,
				"name":           m.Name,
				"slug":           m.Slug,
				"is_active":      domain.FormatBool(m.IsActive),
				"field_schema":   m.FieldSchema,
				"column_mapping": m.ColumnMapping,
				"created_at":     formatTime(m.CreatedAt),
			}
		},
		validate: func(m *domain.Marketplace) error {
			return requireField(m.Name, "name")
		},
	}
}

var mirroredSheets = map[domain.Kind]string{
	domain.KindCategory:       SheetMpCategories,
	domain.KindCharacteristic: SheetMpCharacteristics,
	domain.KindOption:         SheetMpOptions,
}

func mirroredSchema(kind domain.Kind) schema[*domain.MpEntity] {
	return schema[*domain.MpEntity]{
		sheet: rowstore.SheetRef{Spreadsheet: rowstore.SpreadsheetMarketplace, Name: mirroredSheets[kind]},
		columns: []string{
			"id", "marketplace_id", "external_id", "source", "data", "created_at", "updated_at",
		},
		aliases: map[string]string{
			"mp_id": "marketplace_id", "ext_id": "external_id", "json": "data", "payload": "data",
		},
		id:    func(e *domain.MpEntity) string { return e.ID },
		setID: func(e *domain.MpEntity, id string) { e.ID = id },
		clone: (*domain.MpEntity).Clone,
		decode: func(f fields) (*domain.MpEntity, error) {
			e := &domain.MpEntity{
				Kind:          kind,
				ID:            f.str("id"),
				MarketplaceID: f.str("marketplace_id"),
				ExternalID:    f.str("external_id"),
				Source:        f.str("source"),
				CreatedAt:     f.time("created_at"),
				UpdatedAt:     f.time("updated_at"),
			}
			if blob := f.str("data"); blob != "" {
				if err := json.Unmarshal([]byte(blob), &e.Data); err != nil {
					// keep the row addressable; the unreadable blob survives rewrites
					e.Data = domain.MpData{}
					e.Data.Set("_raw", blob)
				}
			}
			if kind == domain.KindOption {
				e.Data.StripCharacteristicAttrs()
			}
			return e, nil
		},
		encode: func(e *domain.MpEntity) fields {
			blob, err := json.Marshal(e.Data)
			if err != nil {
				blob = []byte("{}")
			}
			return fields{
				"id":             e.ID,
				"marketplace_id": e.MarketplaceID,
				"external_id":    e.ExternalID,
				"source":         e.Source,
				"data":           string(blob),
				"created_at":     formatTime(e.CreatedAt),
				"updated_at":     formatTime(e.UpdatedAt),
			}
		},
		validate: func(e *domain.MpEntity) error {
			if err := requireField(e.MarketplaceID, "marketplace_id"); err != nil {
				return err
			}
			return requireField(e.ExternalID, "external_id")
		},
	}
}

var mappingSheets = map[domain.Kind]string{
	domain.KindCategory:       SheetMapCategories,
	domain.KindCharacteristic: SheetMapCharacteristics,
	domain.KindOption:         SheetMapOptions,
}

func mappingSchema(kind domain.Kind) schema[*domain.Mapping] {
	own, mp := kind.OwnColumn(), kind.MpColumn()
	return schema[*domain.Mapping]{
		sheet:   rowstore.SheetRef{Spreadsheet: rowstore.SpreadsheetMain, Name: mappingSheets[kind]},
		columns: []string{"id", own, mp, "created_at"},
		aliases: map[string]string{
			"own_id": own, kind.LegacyKey(): own, "mp_id": mp,
		},
		prefix: kind.MappingPrefix(),
		id:     func(m *domain.Mapping) string { return m.ID },
		setID:  func(m *domain.Mapping, id string) { m.ID = id },
		clone:  (*domain.Mapping).Clone,
		decode: func(f fields) (*domain.Mapping, error) {
			return &domain.Mapping{
				Kind:      kind,
				ID:        f.str("id"),
				OwnID:     f.str(own),
				MpID:      f.str(mp),
				CreatedAt: f.time("created_at"),
			}, nil
		},
		encode: func(m *domain.Mapping) fields {
			return fields{
				"id":         m.ID,
				own:          m.OwnID,
				mp:           m.MpID,
				"created_at": formatTime(m.CreatedAt),
			}
		},
		validate: func(m *domain.Mapping) error {
			if err := requireField(m.OwnID, own); err != nil {
				return err
			}
			return requireField(m.MpID, mp)
		},
	}
}
