package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dvloznov/taxonomy-bridge/internal/api/middleware"
	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/lookup"
	"github.com/dvloznov/taxonomy-bridge/internal/reconcile"
	"github.com/dvloznov/taxonomy-bridge/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CatalogHandler serves canonical records and their mirrored counterparts.
type CatalogHandler struct {
	repo   *repository.Repository
	engine *reconcile.Engine
	cache  *lookup.Cache
	log    zerolog.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(repo *repository.Repository, engine *reconcile.Engine, cache *lookup.Cache, log zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{repo: repo, engine: engine, cache: cache, log: log}
}

// List handles GET /api/catalog/{kind}. The q parameter filters by name.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	match := func(names ...string) bool {
		if q == "" {
			return true
		}
		for _, n := range names {
			if strings.Contains(strings.ToLower(n), q) {
				return true
			}
		}
		return false
	}

	var items interface{}
	var count int
	switch kind {
	case domain.KindCategory:
		list := page(r, h.repo.Categories.Filter(func(c *domain.Category) bool { return match(c.NamePrimary, c.NameSecondary) }))
		items, count = list, len(list)
	case domain.KindCharacteristic:
		list := page(r, h.repo.Characteristics.Filter(func(c *domain.Characteristic) bool { return match(c.NamePrimary, c.NameSecondary) }))
		items, count = list, len(list)
	case domain.KindOption:
		charID := r.URL.Query().Get("characteristic_id")
		list := page(r, h.repo.Options.Filter(func(o *domain.Option) bool {
			return (charID == "" || o.CharacteristicID == charID) && match(o.ValuePrimary, o.ValueSecondary)
		}))
		items, count = list, len(list)
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": count})
}

// Get handles GET /api/catalog/{kind}/{id}. The response carries the
// record's dependency counts, which a client shows before a delete.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")

	var item interface{}
	var deps repository.Dependencies
	var found bool
	switch kind {
	case domain.KindCategory:
		var c *domain.Category
		if c, found = h.repo.Categories.Get(id); found {
			item, deps = c, h.repo.CategoryDependencies(id)
		}
	case domain.KindCharacteristic:
		var c *domain.Characteristic
		if c, found = h.repo.Characteristics.Get(id); found {
			item, deps = c, h.repo.CharacteristicDependencies(id)
		}
	case domain.KindOption:
		var o *domain.Option
		if o, found = h.repo.Options.Get(id); found {
			item, deps = o, h.repo.OptionDependencies(id)
		}
	}
	if !found {
		middleware.WriteDomainError(w, r, fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound))
		return
	}

	resp := map[string]interface{}{"item": item, "dependencies": deps}
	if kind == domain.KindCategory {
		resp["path"] = h.cache.CategoryPath(id)
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/catalog/{kind}. An empty id is assigned.
func (h *CatalogHandler) Create(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	ctx := r.Context()

	var created interface{}
	switch kind {
	case domain.KindCategory:
		var in domain.Category
		if err = decodeJSON(r, &in); err == nil {
			created, err = h.repo.Categories.Add(ctx, &in)
		}
	case domain.KindCharacteristic:
		var in domain.Characteristic
		if err = decodeJSON(r, &in); err == nil {
			created, err = h.repo.Characteristics.Add(ctx, &in)
		}
	case domain.KindOption:
		var in domain.Option
		if err = decodeJSON(r, &in); err == nil {
			if in.CharacteristicID != "" && !h.repo.OwnExists(domain.KindCharacteristic, in.CharacteristicID) {
				err = fmt.Errorf("characteristic %s: %w", in.CharacteristicID, domain.ErrNotFound)
				break
			}
			created, err = h.repo.Options.Add(ctx, &in)
		}
	}
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/catalog/{kind}/{id}. The body replaces every field
// but the id.
func (h *CatalogHandler) Update(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	var updated interface{}
	switch kind {
	case domain.KindCategory:
		var in domain.Category
		if err = decodeJSON(r, &in); err == nil {
			updated, err = h.repo.Categories.Update(ctx, id, func(c *domain.Category) error {
				if in.ParentID == id {
					return fmt.Errorf("category %s cannot be its own parent: %w", id, domain.ErrValidation)
				}
				in.ID, in.RowRef = c.ID, c.RowRef
				*c = in
				return nil
			})
		}
	case domain.KindCharacteristic:
		var in domain.Characteristic
		if err = decodeJSON(r, &in); err == nil {
			updated, err = h.repo.Characteristics.Update(ctx, id, func(c *domain.Characteristic) error {
				in.ID, in.RowRef = c.ID, c.RowRef
				*c = in
				return nil
			})
		}
	case domain.KindOption:
		var in domain.Option
		if err = decodeJSON(r, &in); err == nil {
			updated, err = h.repo.Options.Update(ctx, id, func(o *domain.Option) error {
				in.ID, in.RowRef = o.ID, o.RowRef
				*o = in
				return nil
			})
		}
	}
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/catalog/{kind}/{id} with the full cascade. A
// partial cascade answers 409 with the result so far.
func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")

	var del func(context.Context, string) (*reconcile.CascadeResult, error)
	switch kind {
	case domain.KindCategory:
		del = h.engine.DeleteCategory
	case domain.KindCharacteristic:
		del = h.engine.DeleteCharacteristic
	case domain.KindOption:
		del = h.engine.DeleteOption
	}
	res, err := del(r.Context(), id)
	if err != nil {
		if res != nil {
			h.log.Warn().Err(err).Str("kind", string(kind)).Str("id", id).Msg("Cascade delete incomplete")
			middleware.WriteJSON(w, middleware.StatusFor(err), map[string]interface{}{"error": err.Error(), "result": res})
			return
		}
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// mirroredItem is a mirrored record with the canonical ids it maps to.
type mirroredItem struct {
	*domain.MpEntity
	OwnIDs []string `json:"own_ids"`
	Path   string   `json:"path,omitempty"`
}

// ListMirrored handles GET /api/mirrored/{kind}. Filters: marketplace_id,
// unmapped=true, q.
func (h *CatalogHandler) ListMirrored(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	query := r.URL.Query()
	mkt := query.Get("marketplace_id")
	unmapped := domain.Truthy(query.Get("unmapped"))
	q := strings.ToLower(strings.TrimSpace(query.Get("q")))

	items := []mirroredItem{}
	for _, ent := range h.repo.AllMirrored(kind) {
		if mkt != "" && ent.MarketplaceID != mkt {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(ent.Data.Name), q) {
			continue
		}
		own := h.engine.MappedOwnIDs(kind, ent.ID)
		if unmapped && len(own) > 0 {
			continue
		}
		item := mirroredItem{MpEntity: ent, OwnIDs: own}
		if kind == domain.KindCategory {
			item.Path = h.cache.CategoryPath(ent.ID)
		}
		items = append(items, item)
	}
	items = page(r, items)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}
