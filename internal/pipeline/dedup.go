package pipeline

import "github.com/dvloznov/taxonomy-bridge/internal/domain"

// MirrorReader reads the mirrored records already stored.
type MirrorReader interface {
	AllMirrored(kind domain.Kind) []*domain.MpEntity
}

// CategoryMerge adds category references to a stored characteristic.
type CategoryMerge struct {
	ID            string
	CategoryIDs   []string
	CategoryNames []string
}

// Plan is what an import will write.
type Plan struct {
	Characteristics []*domain.MpEntity
	Options         []*domain.MpEntity
	Categories      []*domain.MpEntity
	Merges          []CategoryMerge
	// Rejected counts records already stored, per kind.
	Rejected map[domain.Kind]int
}

// Empty reports whether the plan writes nothing.
func (p *Plan) Empty() bool {
	return len(p.Characteristics)+len(p.Options)+len(p.Categories)+len(p.Merges) == 0
}

// Dedup drops parsed records the marketplace already has. Characteristics and
// categories are keyed by external id, options by characteristic and
// external id. A stored characteristic seen with new category references is
// scheduled for a merge instead.
func Dedup(store MirrorReader, marketplaceID string, parsed *Parsed) *Plan {
	plan := &Plan{Rejected: make(map[domain.Kind]int)}

	storedChars := make(map[string]*domain.MpEntity)
	for _, e := range store.AllMirrored(domain.KindCharacteristic) {
		if e.MarketplaceID == marketplaceID {
			storedChars[e.ExternalID] = e
		}
	}
	for _, e := range parsed.Characteristics {
		stored, ok := storedChars[e.ExternalID]
		if !ok {
			plan.Characteristics = append(plan.Characteristics, e)
			continue
		}
		plan.Rejected[domain.KindCharacteristic]++
		var merge CategoryMerge
		for _, id := range e.Data.CategoryIDs {
			if !stored.Data.CategoryIDs.Has(id) {
				merge.CategoryIDs = append(merge.CategoryIDs, id)
			}
		}
		for _, name := range e.Data.CategoryNames {
			if !contains(stored.Data.CategoryNames, name) {
				merge.CategoryNames = append(merge.CategoryNames, name)
			}
		}
		if len(merge.CategoryIDs)+len(merge.CategoryNames) > 0 {
			merge.ID = stored.ID
			plan.Merges = append(plan.Merges, merge)
		}
	}

	storedOptions := make(map[string]bool)
	for _, e := range store.AllMirrored(domain.KindOption) {
		if e.MarketplaceID == marketplaceID {
			storedOptions[OptionKey(e.Data.CharacteristicID, e.ExternalID)] = true
		}
	}
	for _, e := range parsed.Options {
		if storedOptions[OptionKey(e.Data.CharacteristicID, e.ExternalID)] {
			plan.Rejected[domain.KindOption]++
			continue
		}
		plan.Options = append(plan.Options, e)
	}

	storedCats := make(map[string]bool)
	for _, e := range store.AllMirrored(domain.KindCategory) {
		if e.MarketplaceID == marketplaceID {
			storedCats[e.ExternalID] = true
		}
	}
	for _, e := range parsed.Categories {
		if storedCats[e.ExternalID] {
			plan.Rejected[domain.KindCategory]++
			continue
		}
		plan.Categories = append(plan.Categories, e)
	}
	return plan
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
