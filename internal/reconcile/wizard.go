package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/events"
	"github.com/dvloznov/taxonomy-bridge/internal/textnorm"
	"github.com/google/uuid"
)

// WizardState is the step a wizard session is on.
type WizardState string

const (
	StateFilter WizardState = "filter"
	StateCards  WizardState = "cards"
	StateDone   WizardState = "done"
)

// Filter narrows the records a wizard groups.
type Filter struct {
	// Query keeps names containing it, case-insensitively.
	Query string `json:"query"`
	// Marketplaces is the checklist of marketplaces to include; empty means all.
	Marketplaces []string `json:"marketplaces"`
	// CharacteristicID scopes the option wizard to one canonical characteristic.
	CharacteristicID string `json:"characteristic_id,omitempty"`
}

// Member is one unmapped mirrored record on a card.
type Member struct {
	ID            string `json:"id"`
	MarketplaceID string `json:"marketplace_id"`
	Marketplace   string `json:"marketplace"`
	ExternalID    string `json:"external_id"`
	Name          string `json:"name"`
	Path          string `json:"path,omitempty"`
}

// Target is the canonical record a card maps onto.
type Target struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Card groups records sharing one normalized name.
type Card struct {
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	Members []Member `json:"members"`
	Target  *Target  `json:"target,omitempty"`
	// Draft is the canonical category Apply creates when no target exists.
	Draft *domain.Category `json:"draft,omitempty"`
}

// Counters summarize a finished session.
type Counters struct {
	Created int `json:"created"`
	Mapped  int `json:"mapped"`
	Skipped int `json:"skipped"`
}

// Session walks the user through the cards of one kind.
type Session struct {
	ID   string
	Kind domain.Kind

	engine  *Engine
	onClose func(Counters)

	mu       sync.Mutex
	state    WizardState
	filter   Filter
	cards    []Card
	pos      int
	counters Counters
	closed   bool
}

// Snapshot is the JSON view of a session.
type Snapshot struct {
	ID       string      `json:"id"`
	Kind     domain.Kind `json:"kind"`
	State    WizardState `json:"state"`
	Filter   Filter      `json:"filter"`
	Position int         `json:"position"`
	Total    int         `json:"total"`
	Card     *Card       `json:"card,omitempty"`
	Counters Counters    `json:"counters"`
}

// NewWizard opens a session in the filter state. onClose may be nil.
func (e *Engine) NewWizard(kind domain.Kind, onClose func(Counters)) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Kind:    kind,
		engine:  e,
		onClose: onClose,
		state:   StateFilter,
	}
}

// Snapshot returns the session's current view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:       s.ID,
		Kind:     s.Kind,
		State:    s.state,
		Filter:   s.filter,
		Position: s.pos,
		Total:    len(s.cards),
		Counters: s.counters,
	}
	if s.state == StateCards {
		card := s.cards[s.pos]
		snap.Card = &card
	}
	return snap
}

// Start builds the cards for filter and moves to the first one, or straight
// to done when nothing qualifies.
func (s *Session) Start(f Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFilter {
		return fmt.Errorf("Start: session is %s: %w", s.state, domain.ErrValidation)
	}
	cards, err := s.engine.buildCards(s.Kind, f)
	if err != nil {
		return fmt.Errorf("Start: %w", err)
	}
	s.filter = f
	s.cards = cards
	s.pos = 0
	if len(cards) == 0 {
		s.state = StateDone
		return nil
	}
	s.state = StateCards
	return nil
}

// Apply maps the checked members of the current card, creating the draft
// category first when the card has no target, and advances.
func (s *Session) Apply(ctx context.Context, checked []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCards {
		return fmt.Errorf("Apply: session is %s: %w", s.state, domain.ErrValidation)
	}
	card := &s.cards[s.pos]
	selected := make(map[string]bool, len(checked))
	for _, id := range checked {
		selected[id] = true
	}
	var members []Member
	for _, m := range card.Members {
		if selected[m.ID] {
			members = append(members, m)
		}
	}
	if len(members) == 0 {
		return fmt.Errorf("Apply: no member checked: %w", domain.ErrValidation)
	}

	if card.Target == nil {
		if card.Draft == nil {
			return fmt.Errorf("Apply: card %q has no target: %w", card.Name, domain.ErrValidation)
		}
		created, err := s.engine.repo.Categories.Add(ctx, card.Draft)
		if err != nil {
			return fmt.Errorf("Apply: creating %q: %w", card.Draft.NamePrimary, err)
		}
		s.counters.Created++
		card.Target = &Target{ID: created.ID, Name: created.NamePrimary}
		card.Draft = nil
	}

	for _, m := range members {
		_, created, err := s.engine.createMapping(ctx, s.Kind, card.Target.ID, m.ID)
		if err != nil {
			return fmt.Errorf("Apply: %w", err)
		}
		if created {
			s.counters.Mapped++
		}
	}
	s.advance()
	return nil
}

// Skip leaves the current card unmapped and advances.
func (s *Session) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCards {
		return fmt.Errorf("Skip: session is %s: %w", s.state, domain.ErrValidation)
	}
	s.counters.Skipped++
	s.advance()
	return nil
}

// Back returns to the previous card, or to the filter from the first card.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCards:
		if s.pos == 0 {
			s.state = StateFilter
			s.cards = nil
			return nil
		}
		s.pos--
	case StateDone:
		if len(s.cards) == 0 {
			s.state = StateFilter
			return nil
		}
		s.state = StateCards
		s.pos = len(s.cards) - 1
	default:
		return fmt.Errorf("Back: session is %s: %w", s.state, domain.ErrValidation)
	}
	return nil
}

// Close ends the session, reports its counters and asks views to refresh.
// Closing twice is a no-op.
func (s *Session) Close() Counters {
	s.mu.Lock()
	if s.closed {
		c := s.counters
		s.mu.Unlock()
		return c
	}
	s.closed = true
	counters := s.counters
	s.mu.Unlock()

	if s.onClose != nil {
		s.onClose(counters)
	}
	s.engine.bus.Publish(events.Event{Topic: events.RefreshRequested, Table: string(s.Kind)})
	return counters
}

func (s *Session) advance() {
	s.pos++
	if s.pos >= len(s.cards) {
		s.pos = len(s.cards) - 1
		s.state = StateDone
	}
}

// buildCards groups unmapped records by normalized name and keeps the groups
// worth reviewing.
func (e *Engine) buildCards(kind domain.Kind, f Filter) ([]Card, error) {
	if kind == domain.KindOption && f.CharacteristicID == "" {
		return nil, fmt.Errorf("option wizard needs a characteristic: %w", domain.ErrValidation)
	}
	if kind == domain.KindOption && !e.repo.OwnExists(domain.KindCharacteristic, f.CharacteristicID) {
		return nil, fmt.Errorf("characteristic %s: %w", f.CharacteristicID, domain.ErrNotFound)
	}

	wanted := make(map[string]bool, len(f.Marketplaces))
	for _, id := range f.Marketplaces {
		wanted[id] = true
	}
	query := textnorm.Name(f.Query)
	marketplaces := e.cache.MpEntityMaps().Marketplaces

	var scope map[string]bool
	if kind == domain.KindOption {
		scope = e.mpCharacteristicsMappedTo(f.CharacteristicID)
	}

	links := e.indexMappings(kind)
	groups := make(map[string]*Card)
	var order []string
	for _, ent := range e.repo.AllMirrored(kind) {
		if len(wanted) > 0 && !wanted[ent.MarketplaceID] {
			continue
		}
		name := ent.Name()
		key := textnorm.Name(name)
		if key == "" || (query != "" && !strings.Contains(key, query)) {
			continue
		}
		if scope != nil && !scope[domain.MpEntityID(domain.KindCharacteristic, ent.MarketplaceID, "", ent.Data.CharacteristicID)] {
			continue
		}
		if len(links.ownIDs(ent)) > 0 {
			continue
		}
		card, ok := groups[key]
		if !ok {
			card = &Card{Key: key, Name: name}
			groups[key] = card
			order = append(order, key)
		}
		m := Member{ID: ent.ID, MarketplaceID: ent.MarketplaceID, ExternalID: ent.ExternalID, Name: name}
		if mp := marketplaces[ent.MarketplaceID]; mp != nil {
			m.Marketplace = mp.Name
		}
		if kind == domain.KindCategory {
			m.Path = e.cache.CategoryPath(ent.ID)
		}
		card.Members = append(card.Members, m)
	}

	targets := e.ownNameIndex(kind)
	var cards []Card
	for _, key := range order {
		card := groups[key]
		if t := e.pickTarget(kind, targets[key], f.CharacteristicID); t != nil {
			card.Target = t
		}
		switch {
		case card.Target != nil && len(card.Members)+1 >= 2:
		case card.Target == nil && kind == domain.KindCategory && len(card.Members) >= 2:
			card.Draft = &domain.Category{NamePrimary: card.Name}
		default:
			continue
		}
		cards = append(cards, *card)
	}
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].Key < cards[j].Key })
	return cards, nil
}

func (e *Engine) pickTarget(kind domain.Kind, candidates []ownName, characteristicID string) *Target {
	for _, c := range candidates {
		if kind == domain.KindOption && c.characteristicID != characteristicID {
			continue
		}
		return &Target{ID: c.id, Name: e.repo.OwnName(kind, c.id)}
	}
	return nil
}

// mpCharacteristicsMappedTo returns the row ids of mirrored characteristics
// linked to the canonical characteristic.
func (e *Engine) mpCharacteristicsMappedTo(characteristicID string) map[string]bool {
	links := e.indexMappings(domain.KindCharacteristic)
	out := make(map[string]bool)
	for _, ent := range e.repo.AllMirrored(domain.KindCharacteristic) {
		if links.ownIDs(ent).Has(characteristicID) {
			out[ent.ID] = true
		}
	}
	return out
}

// Sessions keeps open wizard sessions by id.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates an empty session store.
func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*Session)}
}

// Put stores s.
func (ss *Sessions) Put(s *Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[s.ID] = s
}

// Get returns the session with id.
func (ss *Sessions) Get(id string) (*Session, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.sessions[id]
	if !ok {
		return nil, fmt.Errorf("wizard session %s: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

// Close closes and forgets the session with id.
func (ss *Sessions) Close(id string) (Counters, error) {
	ss.mu.Lock()
	s, ok := ss.sessions[id]
	delete(ss.sessions, id)
	ss.mu.Unlock()
	if !ok {
		return Counters{}, fmt.Errorf("wizard session %s: %w", id, domain.ErrNotFound)
	}
	return s.Close(), nil
}
