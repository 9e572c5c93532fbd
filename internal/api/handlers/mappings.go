package handlers

import (
	"fmt"
	"net/http"

	"github.com/dvloznov/taxonomy-bridge/internal/api/middleware"
	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/reconcile"
	"github.com/dvloznov/taxonomy-bridge/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// MappingsHandler links mirrored records to canonical ones.
type MappingsHandler struct {
	repo   *repository.Repository
	engine *reconcile.Engine
	log    zerolog.Logger
}

// NewMappingsHandler creates a new mappings handler.
func NewMappingsHandler(repo *repository.Repository, engine *reconcile.Engine, log zerolog.Logger) *MappingsHandler {
	return &MappingsHandler{repo: repo, engine: engine, log: log}
}

// List handles GET /api/mappings/{kind}. Filters: own_id, mp_id.
func (h *MappingsHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	ownID, mpID := r.URL.Query().Get("own_id"), r.URL.Query().Get("mp_id")
	items := h.repo.Mappings(kind).Filter(func(m *domain.Mapping) bool {
		return (ownID == "" || m.OwnID == ownID) && (mpID == "" || m.MpID == mpID)
	})
	items = page(r, items)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}

type createMappingRequest struct {
	OwnID string   `json:"own_id"`
	MpID  string   `json:"mp_id,omitempty"`
	MpIDs []string `json:"mp_ids,omitempty"`
}

// Create handles POST /api/mappings/{kind}. A single mp_id answers with the
// mapping; mp_ids runs a batch and answers with per-item results.
func (h *MappingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	var req createMappingRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	if req.OwnID == "" || (req.MpID == "") == (len(req.MpIDs) == 0) {
		middleware.WriteDomainError(w, r, fmt.Errorf("own_id and exactly one of mp_id or mp_ids are required: %w", domain.ErrValidation))
		return
	}

	if req.MpID != "" {
		m, err := h.engine.CreateMapping(r.Context(), kind, req.OwnID, req.MpID)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, m)
		return
	}

	res := h.engine.BatchCreateMapping(r.Context(), kind, req.MpIDs, req.OwnID)
	status := http.StatusOK
	if len(res.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	middleware.WriteJSON(w, status, res)
}

// Delete handles DELETE /api/mappings/{kind}/{id}.
func (h *MappingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	if err := h.engine.DeleteMapping(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AutoMap handles POST /api/automap/{kind} with {"mp_ids": [...]}. An empty
// list means every unmapped record of the kind.
func (h *MappingsHandler) AutoMap(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	var req struct {
		MpIDs []string `json:"mp_ids"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
	}
	if len(req.MpIDs) == 0 {
		for _, ent := range h.repo.AllMirrored(kind) {
			if !h.engine.IsMapped(kind, ent.ID) {
				req.MpIDs = append(req.MpIDs, ent.ID)
			}
		}
	}

	res := h.engine.AutoMap(r.Context(), kind, req.MpIDs)
	h.log.Info().Str("kind", string(kind)).Int("requested", len(req.MpIDs)).Int("mapped", len(res.Mapped)).Msg("Auto-map finished")
	middleware.WriteJSON(w, http.StatusOK, res)
}
