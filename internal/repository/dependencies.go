package repository

import "github.com/dvloznov/taxonomy-bridge/internal/domain"

// Dependencies counts what references a canonical record. Deleting the
// record removes the mappings and unlinks the rest; nothing is protected.
type Dependencies struct {
	Mappings        int `json:"mappings"`
	Characteristics int `json:"characteristics,omitempty"`
	ChildCategories int `json:"child_categories,omitempty"`
	Options         int `json:"options,omitempty"`
	ChildOptions    int `json:"child_options,omitempty"`
}

// Total sums every dependent row.
func (d Dependencies) Total() int {
	return d.Mappings + d.Characteristics + d.ChildCategories + d.Options + d.ChildOptions
}

func (r *Repository) countMappings(kind domain.Kind, ownID string) int {
	return len(r.mappings[kind].Filter(func(m *domain.Mapping) bool { return m.OwnID == ownID }))
}

// CategoryDependencies counts mappings, characteristics linked to the
// category and child categories.
func (r *Repository) CategoryDependencies(id string) Dependencies {
	return Dependencies{
		Mappings: r.countMappings(domain.KindCategory, id),
		Characteristics: len(r.Characteristics.Filter(func(c *domain.Characteristic) bool {
			return c.CategoryIDs.Has(id)
		})),
		ChildCategories: len(r.Categories.Filter(func(c *domain.Category) bool {
			return c.ParentID == id
		})),
	}
}

// CharacteristicDependencies counts mappings and options of the characteristic.
func (r *Repository) CharacteristicDependencies(id string) Dependencies {
	return Dependencies{
		Mappings: r.countMappings(domain.KindCharacteristic, id),
		Options: len(r.Options.Filter(func(o *domain.Option) bool {
			return o.CharacteristicID == id
		})),
	}
}

// OptionDependencies counts mappings and child options of the option.
func (r *Repository) OptionDependencies(id string) Dependencies {
	return Dependencies{
		Mappings: r.countMappings(domain.KindOption, id),
		ChildOptions: len(r.Options.Filter(func(o *domain.Option) bool {
			return o.ParentOptionID == id
		})),
	}
}
