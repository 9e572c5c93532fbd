package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/textnorm"
)

// Field is a logical column an import understands.
type Field string

const (
	FieldCharacteristicID   Field = "characteristic_id"
	FieldOptionID           Field = "option_id"
	FieldParentCategoryID   Field = "parent_category_id"
	FieldCategoryID         Field = "category_id"
	FieldFilterType         Field = "filter_type"
	FieldCharacteristicType Field = "characteristic_type"
	FieldUnit               Field = "unit"
	FieldIsGlobal           Field = "is_global"
	FieldCharacteristicName Field = "characteristic_name"
	FieldOptionName         Field = "option_name"
	FieldCategoryName       Field = "category_name"
)

// FieldOrder is the detection priority. A header cell is claimed by the first
// field whose pattern it contains, so specific fields come before the
// generic ones whose patterns they would also match.
var FieldOrder = []Field{
	FieldCharacteristicID,
	FieldOptionID,
	FieldParentCategoryID,
	FieldCategoryID,
	FieldFilterType,
	FieldCharacteristicType,
	FieldUnit,
	FieldIsGlobal,
	FieldCharacteristicName,
	FieldOptionName,
	FieldCategoryName,
}

// Patterns lists header substrings per field.
type Patterns map[Field][]string

// DefaultPatterns cover the English, Ukrainian and Russian headers seen in
// marketplace exports.
var DefaultPatterns = Patterns{
	FieldCharacteristicID:   {"characteristic id", "attribute id", "param id", "feature id", "id характеристики", "id параметра", "id атрибута"},
	FieldOptionID:           {"option id", "value id", "id значения", "id значення", "id опции", "id опції"},
	FieldParentCategoryID:   {"parent id", "parent category", "id родител", "id батьків"},
	FieldCategoryID:         {"category id", "cat id", "id категории", "id категорії"},
	FieldFilterType:         {"filter type", "filter", "тип фильтра", "тип фільтра"},
	FieldCharacteristicType: {"characteristic type", "attribute type", "value type", "type", "тип"},
	FieldUnit:               {"unit", "measure", "единиц", "одиниц"},
	FieldIsGlobal:           {"global", "глобальн"},
	FieldCharacteristicName: {"characteristic", "attribute", "parameter", "характеристик", "параметр", "атрибут"},
	FieldOptionName:         {"option", "value", "значени", "значенн", "опци", "опці"},
	FieldCategoryName:       {"category", "категори", "категорі"},
}

// Merge returns p with extra's patterns tried first.
func (p Patterns) Merge(extra Patterns) Patterns {
	out := make(Patterns, len(p))
	for f, list := range p {
		out[f] = list
	}
	for f, list := range extra {
		out[f] = append(append([]string(nil), list...), p[f]...)
	}
	return out
}

// ParsePatterns reads a marketplace field schema: a JSON object of field
// name to a pattern or a list of patterns.
func ParsePatterns(schema string) (Patterns, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(schema), &raw); err != nil {
		return nil, fmt.Errorf("ParsePatterns: %v: %w", err, domain.ErrValidation)
	}
	out := make(Patterns, len(raw))
	for key, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err != nil {
			var one string
			if err := json.Unmarshal(value, &one); err != nil {
				return nil, fmt.Errorf("ParsePatterns: %s: want string or list: %w", key, domain.ErrValidation)
			}
			list = []string{one}
		}
		out[Field(key)] = list
	}
	return out, nil
}

// ColumnMap maps fields to 0-based column indices.
type ColumnMap map[Field]int

// Has reports whether f was found.
func (c ColumnMap) Has(f Field) bool {
	_, ok := c[f]
	return ok
}

// Value returns the cleaned cell of f in row, or "".
func (c ColumnMap) Value(row []string, f Field) string {
	i, ok := c[f]
	if !ok || i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// DetectColumns matches header cells against the patterns in FieldOrder.
// Each cell is claimed by at most one field and each field takes the first
// cell that matches.
func DetectColumns(header []string, patterns Patterns) ColumnMap {
	normalized := make([]string, len(header))
	for i, cell := range header {
		normalized[i] = textnorm.Header(cell)
	}

	cols := make(ColumnMap)
	claimed := make([]bool, len(header))
	for _, f := range FieldOrder {
		for i, h := range normalized {
			if claimed[i] || h == "" {
				continue
			}
			if matchesAny(h, patterns[f]) {
				cols[f] = i
				claimed[i] = true
				break
			}
		}
	}
	return cols
}

func matchesAny(header string, patterns []string) bool {
	for _, p := range patterns {
		if p = textnorm.Header(p); p != "" && strings.Contains(header, p) {
			return true
		}
	}
	return false
}

// HeaderScore rates a candidate header row by how many fields it reveals.
func HeaderScore(patterns Patterns) func([]string) int {
	return func(row []string) int {
		return len(DetectColumns(row, patterns))
	}
}

// Importable reports whether the columns can yield any record.
func (c ColumnMap) Importable() bool {
	chars := c.Has(FieldCharacteristicID) && c.Has(FieldCharacteristicName)
	options := c.Has(FieldCharacteristicID) && c.Has(FieldOptionID) && c.Has(FieldOptionName)
	cats := c.Has(FieldCategoryID) && c.Has(FieldCategoryName)
	return chars || options || cats
}

// ParseFixedColumns reads a column mapping: a JSON object of field name to
// 0-based column index.
func ParseFixedColumns(mapping string) (ColumnMap, error) {
	mapping = strings.TrimSpace(mapping)
	if mapping == "" {
		return nil, nil
	}
	var raw map[string]int
	if err := json.Unmarshal([]byte(mapping), &raw); err != nil {
		return nil, fmt.Errorf("ParseFixedColumns: %v: %w", err, domain.ErrValidation)
	}
	cols := make(ColumnMap, len(raw))
	for key, idx := range raw {
		if idx < 0 {
			return nil, fmt.Errorf("ParseFixedColumns: %s: negative index: %w", key, domain.ErrValidation)
		}
		cols[Field(key)] = idx
	}
	return cols, nil
}
