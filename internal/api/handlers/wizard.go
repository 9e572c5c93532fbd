package handlers

import (
	"net/http"

	"github.com/dvloznov/taxonomy-bridge/internal/api/middleware"
	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/reconcile"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// WizardHandler drives mapping wizard sessions.
type WizardHandler struct {
	engine   *reconcile.Engine
	sessions *reconcile.Sessions
	log      zerolog.Logger
}

// NewWizardHandler creates a new wizard handler.
func NewWizardHandler(engine *reconcile.Engine, sessions *reconcile.Sessions, log zerolog.Logger) *WizardHandler {
	return &WizardHandler{engine: engine, sessions: sessions, log: log}
}

// Open handles POST /api/wizard with {"kind"}.
func (h *WizardHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	kind, err := domain.ParseKind(req.Kind)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}

	var s *reconcile.Session
	s = h.engine.NewWizard(kind, func(c reconcile.Counters) {
		h.log.Info().Str("session_id", s.ID).Str("kind", string(kind)).
			Int("created", c.Created).Int("mapped", c.Mapped).Int("skipped", c.Skipped).
			Msg("Wizard session closed")
	})
	h.sessions.Put(s)
	middleware.WriteJSON(w, http.StatusCreated, s.Snapshot())
}

// session resolves {id} or writes the error.
func (h *WizardHandler) session(w http.ResponseWriter, r *http.Request) (*reconcile.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return nil, false
	}
	return s, true
}

// reply writes the session view after a transition, or the transition's
// error.
func reply(w http.ResponseWriter, r *http.Request, s *reconcile.Session, err error) {
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s.Snapshot())
}

// Get handles GET /api/wizard/{id}.
func (h *WizardHandler) Get(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		reply(w, r, s, nil)
	}
}

// Start handles POST /api/wizard/{id}/start with a filter body.
func (h *WizardHandler) Start(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var f reconcile.Filter
	if err := decodeJSON(r, &f); err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	reply(w, r, s, s.Start(f))
}

// Apply handles POST /api/wizard/{id}/apply with {"checked": [...]}.
func (h *WizardHandler) Apply(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Checked []string `json:"checked"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	reply(w, r, s, s.Apply(r.Context(), req.Checked))
}

// Skip handles POST /api/wizard/{id}/skip.
func (h *WizardHandler) Skip(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		reply(w, r, s, s.Skip())
	}
}

// Back handles POST /api/wizard/{id}/back.
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		reply(w, r, s, s.Back())
	}
}

// Close handles DELETE /api/wizard/{id}.
func (h *WizardHandler) Close(w http.ResponseWriter, r *http.Request) {
	counters, err := h.sessions.Close(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, counters)
}
