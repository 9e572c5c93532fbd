package pipeline

import (
	"strings"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/tabular"
)

// Parsed holds the records interpreted from one tab, in file order.
type Parsed struct {
	Characteristics []*domain.MpEntity
	Options         []*domain.MpEntity
	Categories      []*domain.MpEntity
	// Skipped counts rows that carried no characteristic, option or category.
	Skipped int
	// Duplicates counts repeated option pairs and categories from other tabs.
	Duplicates int
}

// Len is the number of interpreted records.
func (p *Parsed) Len() int {
	return len(p.Characteristics) + len(p.Options) + len(p.Categories)
}

// AddCategories appends categories whose external id is new to p.
func (p *Parsed) AddCategories(cats ...*domain.MpEntity) {
	seen := make(map[string]bool, len(p.Categories))
	for _, c := range p.Categories {
		seen[c.ExternalID] = true
	}
	for _, c := range cats {
		if seen[c.ExternalID] {
			p.Duplicates++
			continue
		}
		seen[c.ExternalID] = true
		p.Categories = append(p.Categories, c)
	}
}

// OptionKey identifies a mirrored option within its marketplace.
func OptionKey(characteristicID, externalID string) string {
	return characteristicID + "\x00" + externalID
}

// InterpretRows turns data rows into mirrored records. A characteristic needs
// an id and a name; the first row wins and later rows only add category
// references. An option needs an id, a name and a characteristic id. A
// category needs an id and a name; repeats are folded silently. Every cell is
// also kept in the data blob under its header text.
func InterpretRows(marketplaceID, source string, header []string, rows [][]string, cols ColumnMap) *Parsed {
	p := &Parsed{}
	chars := make(map[string]*domain.MpEntity)
	options := make(map[string]bool)
	cats := make(map[string]bool)

	for _, row := range rows {
		if tabular.IsBlankRow(row) {
			continue
		}
		used := false

		charID := cols.Value(row, FieldCharacteristicID)
		charName := cols.Value(row, FieldCharacteristicName)
		catID := cols.Value(row, FieldCategoryID)
		catName := cols.Value(row, FieldCategoryName)

		if charID != "" && charName != "" {
			used = true
			if existing, ok := chars[charID]; ok {
				existing.Data.CategoryIDs = existing.Data.CategoryIDs.Add(catID)
				existing.Data.CategoryNames = appendUnique(existing.Data.CategoryNames, catName)
			} else {
				e := &domain.MpEntity{MarketplaceID: marketplaceID, ExternalID: charID, Source: source}
				e.Data = rawData(header, row)
				e.Data.Name = charName
				e.Data.Type = cols.Value(row, FieldCharacteristicType)
				e.Data.Unit = cols.Value(row, FieldUnit)
				e.Data.FilterType = cols.Value(row, FieldFilterType)
				e.Data.IsGlobal = domain.Truthy(cols.Value(row, FieldIsGlobal))
				e.Data.CategoryIDs = domain.IDSet(nil).Add(catID)
				e.Data.CategoryNames = appendUnique(nil, catName)
				chars[charID] = e
				p.Characteristics = append(p.Characteristics, e)
			}
		}

		// Option exports may carry only the parent characteristic's id.
		optID := cols.Value(row, FieldOptionID)
		optName := cols.Value(row, FieldOptionName)
		if charID != "" && optID != "" && optName != "" {
			used = true
			key := OptionKey(charID, optID)
			if options[key] {
				p.Duplicates++
			} else {
				options[key] = true
				o := &domain.MpEntity{MarketplaceID: marketplaceID, ExternalID: optID, Source: source}
				o.Data = rawData(header, row)
				o.Data.Name = optName
				o.Data.CharacteristicID = charID
				o.Data.StripCharacteristicAttrs()
				p.Options = append(p.Options, o)
			}
		}

		if catID != "" && catName != "" {
			used = true
			if !cats[catID] {
				cats[catID] = true
				c := &domain.MpEntity{MarketplaceID: marketplaceID, ExternalID: catID, Source: source}
				if charID == "" {
					c.Data = rawData(header, row)
				}
				c.Data.Name = catName
				c.Data.ParentID = cols.Value(row, FieldParentCategoryID)
				c.Data.SourceID = catID
				p.Categories = append(p.Categories, c)
			}
		}

		if !used {
			p.Skipped++
		}
	}
	return p
}

// rawData keeps every non-empty cell under its header text.
func rawData(header, row []string) domain.MpData {
	var d domain.MpData
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" || i >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[i]); v != "" {
			d.Set(h, v)
		}
	}
	return d
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
