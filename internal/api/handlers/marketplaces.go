package handlers

import (
	"net/http"

	"github.com/dvloznov/taxonomy-bridge/internal/api/middleware"
	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/reconcile"
	"github.com/dvloznov/taxonomy-bridge/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// MarketplacesHandler manages marketplace definitions.
type MarketplacesHandler struct {
	repo   *repository.Repository
	engine *reconcile.Engine
	log    zerolog.Logger
}

// NewMarketplacesHandler creates a new marketplaces handler.
func NewMarketplacesHandler(repo *repository.Repository, engine *reconcile.Engine, log zerolog.Logger) *MarketplacesHandler {
	return &MarketplacesHandler{repo: repo, engine: engine, log: log}
}

// List handles GET /api/marketplaces.
func (h *MarketplacesHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.repo.AllMarketplaces()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}

// Create handles POST /api/marketplaces. The slug is derived from the name
// when omitted.
func (h *MarketplacesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.Marketplace
	if err := decodeJSON(r, &in); err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	in.ID = ""
	m, err := h.repo.CreateMarketplace(r.Context(), &in)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	h.log.Info().Str("marketplace_id", m.ID).Str("slug", m.Slug).Msg("Marketplace created")
	middleware.WriteJSON(w, http.StatusCreated, m)
}

// Delete handles DELETE /api/marketplaces/{id}, removing its mirrored
// records and their mappings first.
func (h *MarketplacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.DeleteMarketplace(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if res != nil {
			middleware.WriteJSON(w, middleware.StatusFor(err), map[string]interface{}{"error": err.Error(), "result": res})
			return
		}
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}
