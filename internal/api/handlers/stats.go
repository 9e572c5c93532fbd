package handlers

import (
	"net/http"

	"github.com/dvloznov/taxonomy-bridge/internal/api/middleware"
	"github.com/dvloznov/taxonomy-bridge/internal/export"
)

// StatsHandler reports mapping coverage.
type StatsHandler struct {
	exporter *export.Exporter
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(exporter *export.Exporter) *StatsHandler {
	return &StatsHandler{exporter: exporter}
}

// Stats handles GET /api/stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.exporter.Stats()
	if stats == nil {
		stats = []export.Stat{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"coverage": stats})
}

// Export handles POST /api/export, writing a snapshot to BigQuery.
func (h *StatsHandler) Export(w http.ResponseWriter, r *http.Request) {
	res, err := h.exporter.Export(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}
