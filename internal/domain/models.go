package domain

import (
	"strings"
	"time"
)

// Id prefixes of canonical records.
const (
	CategoryPrefix       = "cat"
	CharacteristicPrefix = "chr"
	OptionPrefix         = "opt"
	MarketplacePrefix    = "mkt"
)

// RowRef carries the 1-based sheet position of a stored record (header row = 1).
// Only the row store reads it.
type RowRef struct {
	RowIndex int `json:"-"`
}

// Index returns the record's sheet row.
func (r *RowRef) Index() int { return r.RowIndex }

// SetIndex moves the record to another sheet row.
func (r *RowRef) SetIndex(i int) { r.RowIndex = i }

// Category is a node of the canonical category tree.
type Category struct {
	RowRef
	ID            string `json:"id"`
	NamePrimary   string `json:"name_primary"`
	NameSecondary string `json:"name_secondary"`
	ParentID      string `json:"parent_id,omitempty"`
	IsGrouping    bool   `json:"is_grouping"`
}

// Clone returns an independent copy.
func (c *Category) Clone() *Category {
	cp := *c
	return &cp
}

// Characteristic is a canonical attribute that applies to a set of categories.
type Characteristic struct {
	RowRef
	ID            string `json:"id"`
	NamePrimary   string `json:"name_primary"`
	NameSecondary string `json:"name_secondary"`
	ValueType     string `json:"value_type"`
	Unit          string `json:"unit,omitempty"`
	FilterType    string `json:"filter_type"`
	IsGlobal      bool   `json:"is_global"`
	CategoryIDs   IDSet  `json:"category_ids"`
}

// Clone returns an independent copy.
func (c *Characteristic) Clone() *Characteristic {
	cp := *c
	cp.CategoryIDs = c.CategoryIDs.Clone()
	return &cp
}

// Option is an allowed value of a canonical characteristic.
type Option struct {
	RowRef
	ID               string `json:"id"`
	CharacteristicID string `json:"characteristic_id"`
	ValuePrimary     string `json:"value_primary"`
	ValueSecondary   string `json:"value_secondary"`
	SortOrder        int    `json:"sort_order"`
	ParentOptionID   string `json:"parent_option_id,omitempty"`
}

// Clone returns an independent copy.
func (o *Option) Clone() *Option {
	cp := *o
	return &cp
}

// Marketplace describes an external catalog whose taxonomy gets mirrored.
type Marketplace struct {
	RowRef
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	IsActive      bool      `json:"is_active"`
	FieldSchema   string    `json:"field_schema,omitempty"`
	ColumnMapping string    `json:"column_mapping,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Clone returns an independent copy.
func (m *Marketplace) Clone() *Marketplace {
	cp := *m
	return &cp
}

// MpEntity is a marketplace-mirrored category, characteristic or option.
// (MarketplaceID, ExternalID) is unique per kind; options additionally scope
// ExternalID by Data.CharacteristicID.
type MpEntity struct {
	RowRef
	Kind          Kind      `json:"kind"`
	ID            string    `json:"id"`
	MarketplaceID string    `json:"marketplace_id"`
	ExternalID    string    `json:"external_id"`
	Source        string    `json:"source"`
	Data          MpData    `json:"data"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns an independent copy.
func (e *MpEntity) Clone() *MpEntity {
	cp := *e
	cp.Data = e.Data.Clone()
	return &cp
}

// Name returns the display name recorded in the data blob.
func (e *MpEntity) Name() string {
	return e.Data.DisplayName()
}

// MpEntityID builds the deterministic id of a mirrored entity. Options pass the
// external id of their characteristic as scope; other kinds pass "".
func MpEntityID(kind Kind, marketplaceID, scope, externalID string) string {
	parts := []string{kind.MpPrefix(), marketplaceID}
	if kind == KindOption && scope != "" {
		parts = append(parts, scope)
	}
	parts = append(parts, externalID)
	return strings.Join(parts, "-")
}

// Mapping links one canonical record to one mirrored record of the same kind.
type Mapping struct {
	RowRef
	Kind      Kind      `json:"kind"`
	ID        string    `json:"id"`
	OwnID     string    `json:"own_id"`
	MpID      string    `json:"mp_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns an independent copy.
func (m *Mapping) Clone() *Mapping {
	cp := *m
	return &cp
}
