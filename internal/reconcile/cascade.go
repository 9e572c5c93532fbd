package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
)

// ErrCascadeIncomplete is returned when a dependent could not be cleaned up
// and the record itself was therefore kept.
var ErrCascadeIncomplete = errors.New("cascade incomplete")

// CascadeResult reports what a canonical delete touched.
type CascadeResult struct {
	ID              string      `json:"id"`
	DeletedMappings []string    `json:"deleted_mappings"`
	Unlinked        []string    `json:"unlinked"`
	Failed          []ItemError `json:"failed"`
	Deleted         bool        `json:"deleted"`
}

func (r *CascadeResult) fail(id string, err error) {
	r.Failed = append(r.Failed, ItemError{ID: id, Error: err.Error()})
}

func (e *Engine) deleteMappingsOf(ctx context.Context, kind domain.Kind, ownID string, res *CascadeResult) {
	var ids []string
	for _, m := range e.repo.AllMappings(kind) {
		if m.OwnID == ownID {
			ids = append(ids, m.ID)
		}
	}
	deleted, err := e.repo.Mappings(kind).DeleteBatch(ctx, ids)
	res.DeletedMappings = append(res.DeletedMappings, deleted...)
	if err != nil {
		res.fail(ownID, err)
	}
}

// finish deletes the record once every dependent was handled.
func (e *Engine) finish(ctx context.Context, res *CascadeResult, del func(context.Context, string) error) (*CascadeResult, error) {
	if len(res.Failed) > 0 {
		return res, fmt.Errorf("%s: %d dependents failed: %w", res.ID, len(res.Failed), ErrCascadeIncomplete)
	}
	if err := del(ctx, res.ID); err != nil {
		return res, err
	}
	res.Deleted = true
	return res, nil
}

// DeleteCategory removes the category's mappings, drops it from every
// characteristic, detaches its child categories and deletes it.
func (e *Engine) DeleteCategory(ctx context.Context, id string) (*CascadeResult, error) {
	if _, ok := e.repo.Categories.Get(id); !ok {
		return nil, fmt.Errorf("DeleteCategory: %s: %w", id, domain.ErrNotFound)
	}
	res := &CascadeResult{ID: id}
	e.deleteMappingsOf(ctx, domain.KindCategory, id, res)

	for _, c := range e.repo.Characteristics.Filter(func(c *domain.Characteristic) bool { return c.CategoryIDs.Has(id) }) {
		_, err := e.repo.Characteristics.Update(ctx, c.ID, func(c *domain.Characteristic) error {
			c.CategoryIDs = c.CategoryIDs.Remove(id)
			return nil
		})
		e.track(res, c.ID, err)
	}
	for _, c := range e.repo.Categories.Filter(func(c *domain.Category) bool { return c.ParentID == id }) {
		_, err := e.repo.Categories.Update(ctx, c.ID, func(c *domain.Category) error {
			c.ParentID = ""
			return nil
		})
		e.track(res, c.ID, err)
	}

	res, err := e.finish(ctx, res, e.repo.Categories.Delete)
	if err != nil {
		return res, fmt.Errorf("DeleteCategory: %w", err)
	}
	return res, nil
}

// DeleteCharacteristic removes the characteristic's mappings, detaches its
// options and deletes it.
func (e *Engine) DeleteCharacteristic(ctx context.Context, id string) (*CascadeResult, error) {
	if _, ok := e.repo.Characteristics.Get(id); !ok {
		return nil, fmt.Errorf("DeleteCharacteristic: %s: %w", id, domain.ErrNotFound)
	}
	res := &CascadeResult{ID: id}
	e.deleteMappingsOf(ctx, domain.KindCharacteristic, id, res)

	for _, o := range e.repo.Options.Filter(func(o *domain.Option) bool { return o.CharacteristicID == id }) {
		_, err := e.repo.Options.Update(ctx, o.ID, func(o *domain.Option) error {
			o.CharacteristicID = ""
			return nil
		})
		e.track(res, o.ID, err)
	}

	res, err := e.finish(ctx, res, e.repo.Characteristics.Delete)
	if err != nil {
		return res, fmt.Errorf("DeleteCharacteristic: %w", err)
	}
	return res, nil
}

// DeleteOption removes the option's mappings, detaches child options and
// deletes it.
func (e *Engine) DeleteOption(ctx context.Context, id string) (*CascadeResult, error) {
	if _, ok := e.repo.Options.Get(id); !ok {
		return nil, fmt.Errorf("DeleteOption: %s: %w", id, domain.ErrNotFound)
	}
	res := &CascadeResult{ID: id}
	e.deleteMappingsOf(ctx, domain.KindOption, id, res)

	for _, o := range e.repo.Options.Filter(func(o *domain.Option) bool { return o.ParentOptionID == id }) {
		_, err := e.repo.Options.Update(ctx, o.ID, func(o *domain.Option) error {
			o.ParentOptionID = ""
			return nil
		})
		e.track(res, o.ID, err)
	}

	res, err := e.finish(ctx, res, e.repo.Options.Delete)
	if err != nil {
		return res, fmt.Errorf("DeleteOption: %w", err)
	}
	return res, nil
}

func (e *Engine) track(res *CascadeResult, id string, err error) {
	if err != nil {
		e.log.Warn().Err(err).Str("id", id).Msg("Unlinking dependent failed")
		res.fail(id, err)
		return
	}
	res.Unlinked = append(res.Unlinked, id)
}

// MarketplaceCleanup reports what DeleteMarketplace removed, per kind.
type MarketplaceCleanup struct {
	MarketplaceID string              `json:"marketplace_id"`
	Mirrored      map[domain.Kind]int `json:"mirrored"`
	Mappings      map[domain.Kind]int `json:"mappings"`
	Failed        []ItemError         `json:"failed"`
	Deleted       bool                `json:"deleted"`
}

// DeleteMarketplace removes the marketplace's mirrored records and the
// mappings that reference them, then the marketplace. Mirrored rows of a kind
// are only removed once their mappings are gone.
func (e *Engine) DeleteMarketplace(ctx context.Context, marketplaceID string) (*MarketplaceCleanup, error) {
	if _, ok := e.repo.Marketplaces.Get(marketplaceID); !ok {
		return nil, fmt.Errorf("DeleteMarketplace: %s: %w", marketplaceID, domain.ErrNotFound)
	}
	res := &MarketplaceCleanup{
		MarketplaceID: marketplaceID,
		Mirrored:      make(map[domain.Kind]int),
		Mappings:      make(map[domain.Kind]int),
	}

	for _, kind := range domain.Kinds {
		owned := make(map[string]bool)
		external := make(map[string]bool)
		shared := make(map[string]bool)
		var mirroredIDs []string
		for _, ent := range e.repo.AllMirrored(kind) {
			if ent.MarketplaceID != marketplaceID {
				shared[ent.ExternalID] = true
				continue
			}
			owned[ent.ID] = true
			external[ent.ExternalID] = true
			mirroredIDs = append(mirroredIDs, ent.ID)
		}
		// Legacy rows may reference the external id; those still resolving to
		// another marketplace's record stay.
		for id := range external {
			if id != "" && !shared[id] {
				owned[id] = true
			}
		}
		var mappingIDs []string
		for _, m := range e.repo.AllMappings(kind) {
			if owned[m.MpID] {
				mappingIDs = append(mappingIDs, m.ID)
			}
		}

		deleted, err := e.repo.Mappings(kind).DeleteBatch(ctx, mappingIDs)
		res.Mappings[kind] = len(deleted)
		if err != nil {
			res.Failed = append(res.Failed, ItemError{ID: string(kind) + " mappings", Error: err.Error()})
			continue
		}
		deleted, err = e.repo.Mirrored(kind).DeleteBatch(ctx, mirroredIDs)
		res.Mirrored[kind] = len(deleted)
		if err != nil {
			res.Failed = append(res.Failed, ItemError{ID: string(kind) + " records", Error: err.Error()})
		}
	}

	if len(res.Failed) > 0 {
		return res, fmt.Errorf("DeleteMarketplace: %s: %w", marketplaceID, ErrCascadeIncomplete)
	}
	if err := e.repo.Marketplaces.Delete(ctx, marketplaceID); err != nil {
		return res, fmt.Errorf("DeleteMarketplace: %w", err)
	}
	res.Deleted = true
	e.log.Info().Str("marketplace_id", marketplaceID).Interface("mirrored", res.Mirrored).
		Interface("mappings", res.Mappings).Msg("Marketplace deleted")
	return res, nil
}
