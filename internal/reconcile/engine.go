// Package reconcile links mirrored marketplace records to the canonical
// catalog: mapping rows, name-based auto-mapping, cascade cleanup and the
// grouping wizard.
package reconcile

import (
	"context"
	"fmt"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/events"
	"github.com/dvloznov/taxonomy-bridge/internal/lookup"
	"github.com/dvloznov/taxonomy-bridge/internal/repository"
	"github.com/dvloznov/taxonomy-bridge/internal/textnorm"
	"github.com/rs/zerolog"
)

// Engine performs reconciliation over a loaded repository.
type Engine struct {
	repo  *repository.Repository
	cache *lookup.Cache
	bus   *events.Bus
	log   zerolog.Logger
}

// New creates an engine.
func New(repo *repository.Repository, cache *lookup.Cache, bus *events.Bus, log zerolog.Logger) *Engine {
	return &Engine{repo: repo, cache: cache, bus: bus, log: log}
}

// ItemError is one failed item of a batch.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchResult reports a batch that never aborts on a single item.
type BatchResult struct {
	Success []string    `json:"success"`
	Failed  []ItemError `json:"failed"`
}

func (r *BatchResult) fail(id string, err error) {
	r.Failed = append(r.Failed, ItemError{ID: id, Error: err.Error()})
}

// resolveMirrored finds a mirrored record by row id, falling back to external id.
func (e *Engine) resolveMirrored(kind domain.Kind, ref string) (*domain.MpEntity, bool) {
	if ent, ok := e.repo.Mirrored(kind).Get(ref); ok {
		return ent, true
	}
	if ent, ok := e.cache.MpEntityMaps().ForKind(kind)[ref]; ok {
		return ent.Clone(), true
	}
	return nil, false
}

// CreateMapping links ownID to the mirrored record mpID (row id or external
// id). An existing link is returned unchanged.
func (e *Engine) CreateMapping(ctx context.Context, kind domain.Kind, ownID, mpID string) (*domain.Mapping, error) {
	m, _, err := e.createMapping(ctx, kind, ownID, mpID)
	return m, err
}

// createMapping is CreateMapping that also reports whether a row was written.
func (e *Engine) createMapping(ctx context.Context, kind domain.Kind, ownID, mpID string) (*domain.Mapping, bool, error) {
	if !e.repo.OwnExists(kind, ownID) {
		return nil, false, fmt.Errorf("CreateMapping: %s %s: %w", kind, ownID, domain.ErrNotFound)
	}
	ent, ok := e.resolveMirrored(kind, mpID)
	if !ok {
		return nil, false, fmt.Errorf("CreateMapping: mirrored %s %s: %w", kind, mpID, domain.ErrNotFound)
	}

	existing := e.repo.Mappings(kind).Filter(func(m *domain.Mapping) bool {
		return m.OwnID == ownID && (m.MpID == ent.ID || m.MpID == ent.ExternalID)
	})
	if len(existing) > 0 {
		return existing[0], false, nil
	}

	m, err := e.repo.AddMapping(ctx, kind, ownID, ent.ID)
	if err != nil {
		return nil, false, fmt.Errorf("CreateMapping: %w", err)
	}
	e.log.Debug().Str("kind", string(kind)).Str("own_id", ownID).Str("mp_id", ent.ID).Msg("Mapping created")
	return m, true, nil
}

// DeleteMapping removes one mapping row.
func (e *Engine) DeleteMapping(ctx context.Context, kind domain.Kind, mappingID string) error {
	if err := e.repo.Mappings(kind).Delete(ctx, mappingID); err != nil {
		return fmt.Errorf("DeleteMapping: %w", err)
	}
	return nil
}

// IsMapped reports whether the mirrored record is linked to any canonical
// record, by a mapping row or by a legacy inline id in its data.
func (e *Engine) IsMapped(kind domain.Kind, mpID string) bool {
	return len(e.MappedOwnIDs(kind, mpID)) > 0
}

// MappedOwnIDs returns the canonical ids the mirrored record is linked to.
func (e *Engine) MappedOwnIDs(kind domain.Kind, mpID string) []string {
	refs := map[string]bool{mpID: true}
	var legacy string
	if ent, ok := e.resolveMirrored(kind, mpID); ok {
		refs[ent.ID] = true
		refs[ent.ExternalID] = true
		legacy = ent.Data.LegacyOwnID(kind)
	}

	var ids domain.IDSet
	for _, m := range e.repo.AllMappings(kind) {
		if refs[m.MpID] {
			ids = ids.Add(m.OwnID)
		}
	}
	return ids.Add(legacy)
}

// mappingIndex answers repeated link lookups from one pass over the mapping
// rows of a kind.
type mappingIndex struct {
	kind  domain.Kind
	byRef map[string]domain.IDSet
}

func (e *Engine) indexMappings(kind domain.Kind) *mappingIndex {
	x := &mappingIndex{kind: kind, byRef: make(map[string]domain.IDSet)}
	for _, m := range e.repo.AllMappings(kind) {
		x.byRef[m.MpID] = x.byRef[m.MpID].Add(m.OwnID)
	}
	return x
}

// ownIDs matches the same references as MappedOwnIDs: row id, external id
// and the legacy inline id.
func (x *mappingIndex) ownIDs(ent *domain.MpEntity) domain.IDSet {
	var ids domain.IDSet
	ids = ids.Add(x.byRef[ent.ID]...)
	ids = ids.Add(x.byRef[ent.ExternalID]...)
	return ids.Add(ent.Data.LegacyOwnID(x.kind))
}

// BatchCreateMapping links every mpID to ownID, one at a time.
func (e *Engine) BatchCreateMapping(ctx context.Context, kind domain.Kind, mpIDs []string, ownID string) BatchResult {
	var res BatchResult
	for _, id := range mpIDs {
		if _, err := e.CreateMapping(ctx, kind, ownID, id); err != nil {
			res.fail(id, err)
			continue
		}
		res.Success = append(res.Success, id)
	}
	return res
}

// AutoMapped is one link made by AutoMap.
type AutoMapped struct {
	MpID  string `json:"mp_id"`
	OwnID string `json:"own_id"`
}

// AutoMapResult buckets every requested id.
type AutoMapResult struct {
	Mapped   []AutoMapped `json:"mapped"`
	NotFound []string     `json:"not_found"`
	Failed   []ItemError  `json:"failed"`
}

type ownName struct {
	id               string
	characteristicID string
}

// ownNameIndex maps normalized canonical names to records in sheet order.
func (e *Engine) ownNameIndex(kind domain.Kind) map[string][]ownName {
	index := make(map[string][]ownName)
	add := func(name string, rec ownName) {
		if key := textnorm.Name(name); key != "" {
			index[key] = append(index[key], rec)
		}
	}
	switch kind {
	case domain.KindCategory:
		for _, c := range e.repo.AllCategories() {
			add(c.NamePrimary, ownName{id: c.ID})
		}
	case domain.KindCharacteristic:
		for _, c := range e.repo.AllCharacteristics() {
			add(c.NamePrimary, ownName{id: c.ID})
		}
	case domain.KindOption:
		for _, o := range e.repo.AllOptions() {
			add(o.ValuePrimary, ownName{id: o.ID, characteristicID: o.CharacteristicID})
		}
	}
	return index
}

// AutoMap links mirrored records to canonical records whose primary name
// equals theirs after trimming and lower-casing. Options prefer values of the
// canonical characteristic their marketplace characteristic is mapped to.
func (e *Engine) AutoMap(ctx context.Context, kind domain.Kind, mpIDs []string) AutoMapResult {
	index := e.ownNameIndex(kind)
	res := AutoMapResult{}
	for _, id := range mpIDs {
		ent, ok := e.resolveMirrored(kind, id)
		if !ok {
			res.Failed = append(res.Failed, ItemError{ID: id, Error: domain.ErrNotFound.Error()})
			continue
		}
		candidates := index[textnorm.Name(ent.Name())]
		if len(candidates) == 0 {
			res.NotFound = append(res.NotFound, id)
			continue
		}
		target := candidates[0]
		if kind == domain.KindOption {
			target = e.preferOptionOfMappedCharacteristic(ent, candidates)
		}
		if _, err := e.CreateMapping(ctx, kind, target.id, ent.ID); err != nil {
			res.Failed = append(res.Failed, ItemError{ID: id, Error: err.Error()})
			continue
		}
		res.Mapped = append(res.Mapped, AutoMapped{MpID: ent.ID, OwnID: target.id})
	}
	e.log.Info().Str("kind", string(kind)).Int("mapped", len(res.Mapped)).
		Int("not_found", len(res.NotFound)).Int("failed", len(res.Failed)).Msg("Auto-map finished")
	return res
}

func (e *Engine) preferOptionOfMappedCharacteristic(opt *domain.MpEntity, candidates []ownName) ownName {
	charRef := opt.Data.CharacteristicID
	if charRef == "" {
		return candidates[0]
	}
	charID := domain.MpEntityID(domain.KindCharacteristic, opt.MarketplaceID, "", charRef)
	owners := domain.IDSet(e.MappedOwnIDs(domain.KindCharacteristic, charID))
	for _, c := range candidates {
		if owners.Has(c.characteristicID) {
			return c
		}
	}
	return candidates[0]
}
