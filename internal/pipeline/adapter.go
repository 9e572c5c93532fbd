package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
)

// AdapterConfig tunes the shared import steps for one adapter.
type AdapterConfig struct {
	// Source is recorded on every mirrored row the adapter creates.
	Source string
	// HeaderSearchRows overrides how many leading rows are searched for the header.
	HeaderSearchRows int
	// PreferredSheets are tried, in order, before the best scoring tab.
	PreferredSheets []string
}

// Adapter is the capability every importer provides. Optional behavior is
// expressed by also implementing the interfaces below.
type Adapter interface {
	Name() string
	// Match reports whether the adapter handles files of mp.
	Match(mp *domain.Marketplace) bool
	Config() AdapterConfig
	// OnFileLoaded runs after parsing and may drop or reorder tabs.
	OnFileLoaded(ctx context.Context, state *ImportState) error
}

// ColumnPatternProvider contributes header patterns tried before the defaults.
type ColumnPatternProvider interface {
	ColumnPatterns(mp *domain.Marketplace) (Patterns, error)
}

// FixedMappingProvider pins fields to column indices, overriding detection.
type FixedMappingProvider interface {
	FixedMapping(mp *domain.Marketplace) (ColumnMap, error)
}

// CategoryProvider supplies mirrored categories from outside the main tab.
type CategoryProvider interface {
	Categories(ctx context.Context, state *ImportState) ([]*domain.MpEntity, error)
}

// BeforeImportHook may adjust interpreted records before deduplication.
type BeforeImportHook interface {
	BeforeImport(ctx context.Context, state *ImportState) error
}

// ImportExecutor replaces the shared interpret, dedup and write steps.
type ImportExecutor interface {
	Execute(ctx context.Context, state *ImportState) error
}

// Registry holds the adapters in registration order. It is built once at
// startup and injected.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewRegistry registers adapters in order; see Register.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates and appends an adapter. Names must be unique.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("Register: nil adapter: %w", domain.ErrValidation)
	}
	name := a.Name()
	if name == "" {
		return fmt.Errorf("Register: adapter without name: %w", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.adapters {
		if existing.Name() == name {
			return fmt.Errorf("Register: adapter %q already registered: %w", name, domain.ErrValidation)
		}
	}
	r.adapters = append(r.adapters, a)
	return nil
}

// Select returns the first adapter that matches mp.
func (r *Registry) Select(mp *domain.Marketplace) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if a.Match(mp) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("Select: no adapter for marketplace %s: %w", mp.ID, domain.ErrNotFound)
}

// Names lists registered adapters in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}
