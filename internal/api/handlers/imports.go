package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/dvloznov/taxonomy-bridge/internal/api/middleware"
	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/jobs"
	"github.com/dvloznov/taxonomy-bridge/internal/source"
	"github.com/rs/zerolog"
)

// Submitter queues import jobs.
type Submitter interface {
	Submit(ctx context.Context, job *jobs.ImportJob) error
}

// MarketplaceLookup resolves a marketplace id.
type MarketplaceLookup interface {
	Marketplace(id string) (*domain.Marketplace, bool)
}

// ImportsHandler accepts import files and queues them.
type ImportsHandler struct {
	submitter    Submitter
	marketplaces MarketplaceLookup
	maxBytes     int64
	log          zerolog.Logger
}

// NewImportsHandler creates a new imports handler. Uploads above maxBytes
// are rejected.
func NewImportsHandler(submitter Submitter, marketplaces MarketplaceLookup, maxBytes int64, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{submitter: submitter, marketplaces: marketplaces, maxBytes: maxBytes, log: log}
}

// Upload handles POST /api/imports as multipart form data with fields file,
// marketplace_id and optionally auto_map.
func (h *ImportsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", h.maxBytes))
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read file")
		return
	}
	if len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "file is empty")
		return
	}

	h.enqueue(w, r, &jobs.ImportJob{
		MarketplaceID: r.FormValue("marketplace_id"),
		Filename:      filepath.Base(header.Filename),
		Data:          data,
		AutoMap:       domain.Truthy(r.FormValue("auto_map")),
	})
}

// FromSource handles POST /api/imports/source with
// {"marketplace_id", "source_uri", "auto_map"}.
func (h *ImportsHandler) FromSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MarketplaceID string `json:"marketplace_id"`
		SourceURI     string `json:"source_uri"`
		AutoMap       bool   `json:"auto_map"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	if req.SourceURI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "source_uri is required")
		return
	}
	h.enqueue(w, r, &jobs.ImportJob{
		MarketplaceID: req.MarketplaceID,
		SourceURI:     req.SourceURI,
		Filename:      source.Filename(req.SourceURI),
		AutoMap:       req.AutoMap,
	})
}

func (h *ImportsHandler) enqueue(w http.ResponseWriter, r *http.Request, job *jobs.ImportJob) {
	if job.MarketplaceID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "marketplace_id is required")
		return
	}
	if _, ok := h.marketplaces.Marketplace(job.MarketplaceID); !ok {
		middleware.WriteDomainError(w, r, fmt.Errorf("marketplace %s: %w", job.MarketplaceID, domain.ErrNotFound))
		return
	}

	if err := h.submitter.Submit(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue import job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue import job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("marketplace_id", job.MarketplaceID).Str("filename", job.Filename).Msg("Import job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":         job.JobID,
		"marketplace_id": job.MarketplaceID,
		"status":         string(job.Status),
	})
}
