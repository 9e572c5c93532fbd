// Package handlers implements the JSON endpoints of the API server.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/taxonomy-bridge/internal/api/middleware"
	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/go-chi/chi/v5"
)

// decodeJSON reads the request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, domain.ErrValidation)
	}
	return nil
}

// kindParam parses the {kind} path parameter.
func kindParam(r *http.Request) (domain.Kind, error) {
	return domain.ParseKind(chi.URLParam(r, "kind"))
}

// queryInt returns the integer query parameter, or def when absent or
// malformed.
func queryInt(r *http.Request, name string, def int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// page slices items by the limit and offset query parameters.
func page[T any](r *http.Request, items []T) []T {
	offset := queryInt(r, "offset", 0)
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
