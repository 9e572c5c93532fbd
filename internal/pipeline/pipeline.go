// Package pipeline imports marketplace taxonomy files into the mirrored
// tables through adapter-specific steps.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/reconcile"
	"github.com/dvloznov/taxonomy-bridge/internal/tabular"
	"github.com/rs/zerolog"
)

// Store is the repository surface an import writes through.
type Store interface {
	MirrorReader
	Marketplace(id string) (*domain.Marketplace, bool)
	AddMirrored(ctx context.Context, kind domain.Kind, items []*domain.MpEntity) ([]*domain.MpEntity, error)
	UpdateMirrored(ctx context.Context, kind domain.Kind, id string, patch func(*domain.MpEntity) error) (*domain.MpEntity, error)
}

// AutoMapper links freshly imported records by name.
type AutoMapper interface {
	AutoMap(ctx context.Context, kind domain.Kind, mpIDs []string) reconcile.AutoMapResult
}

// Request is one file to import for one marketplace.
type Request struct {
	MarketplaceID string `json:"marketplace_id"`
	Filename      string `json:"filename"`
	Data          []byte `json:"-"`
	// AutoMap runs name matching over the records the import created.
	AutoMap bool `json:"auto_map"`
}

// Summary reports what an import did. After a failed write it describes the
// progress that was persisted.
type Summary struct {
	MarketplaceID string                                  `json:"marketplace_id"`
	Adapter       string                                  `json:"adapter"`
	Sheet         string                                  `json:"sheet,omitempty"`
	Created       map[domain.Kind]int                     `json:"created"`
	Rejected      map[domain.Kind]int                     `json:"rejected"`
	Merged        int                                     `json:"merged"`
	Skipped       int                                     `json:"skipped"`
	Duplicates    int                                     `json:"duplicates"`
	AutoMap       map[domain.Kind]reconcile.AutoMapResult `json:"auto_map,omitempty"`
}

// ImportState holds the shared state across all import steps.
type ImportState struct {
	Request     Request
	Marketplace *domain.Marketplace
	Adapter     Adapter
	Workbook    *tabular.Workbook
	Sheet       tabular.Sheet
	HeaderRow   int
	Columns     ColumnMap
	Parsed      *Parsed
	Plan        *Plan
	Created     map[domain.Kind][]string
	Summary     *Summary
}

// Source is the value recorded on mirrored rows of this import.
func (s *ImportState) Source() string {
	if src := s.Adapter.Config().Source; src != "" {
		return src
	}
	return s.Adapter.Name()
}

// Header returns the detected header row.
func (s *ImportState) Header() []string {
	if s.HeaderRow < 0 || s.HeaderRow >= len(s.Sheet.Rows) {
		return nil
	}
	return s.Sheet.Rows[s.HeaderRow]
}

// DataRows returns the rows below the header.
func (s *ImportState) DataRows() [][]string {
	if s.HeaderRow+1 >= len(s.Sheet.Rows) {
		return nil
	}
	return s.Sheet.Rows[s.HeaderRow+1:]
}

// PipelineStep represents a single step of an import.
type PipelineStep interface {
	Execute(ctx context.Context, state *ImportState) error
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *ImportState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Importer runs imports.
type Importer struct {
	store    Store
	registry *Registry
	mapper   AutoMapper
	log      zerolog.Logger
}

// NewImporter creates an importer. mapper may be nil, which disables the
// auto-map option.
func NewImporter(store Store, registry *Registry, mapper AutoMapper, log zerolog.Logger) *Importer {
	return &Importer{store: store, registry: registry, mapper: mapper, log: log}
}

// Import parses req.Data with the adapter selected for the marketplace and
// writes what is new. Parse problems fail before any write.
func (im *Importer) Import(ctx context.Context, req Request) (*Summary, error) {
	mp, ok := im.store.Marketplace(req.MarketplaceID)
	if !ok {
		return nil, fmt.Errorf("Import: marketplace %s: %w", req.MarketplaceID, domain.ErrNotFound)
	}
	adapter, err := im.registry.Select(mp)
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}

	state := &ImportState{
		Request:     req,
		Marketplace: mp,
		Adapter:     adapter,
		Created:     make(map[domain.Kind][]string),
		Summary: &Summary{
			MarketplaceID: mp.ID,
			Adapter:       adapter.Name(),
			Created:       make(map[domain.Kind]int),
			Rejected:      make(map[domain.Kind]int),
		},
	}
	log := im.log.With().Str("marketplace_id", mp.ID).Str("adapter", adapter.Name()).Str("file", req.Filename).Logger()

	if err := im.pipelineFor(adapter).Execute(ctx, state); err != nil {
		log.Error().Err(err).Interface("created", state.Summary.Created).Msg("Import failed")
		return state.Summary, fmt.Errorf("Import: %w", err)
	}
	log.Info().Interface("created", state.Summary.Created).Interface("rejected", state.Summary.Rejected).
		Int("merged", state.Summary.Merged).Msg("Import finished")
	return state.Summary, nil
}

func (im *Importer) pipelineFor(adapter Adapter) *Pipeline {
	if exec, ok := adapter.(ImportExecutor); ok {
		return NewPipeline(&ParseFileStep{}, &executorStep{exec: exec})
	}
	return NewPipeline(
		&ParseFileStep{},
		&DetectColumnsStep{},
		&InterpretStep{},
		&BeforeImportStep{},
		&DedupStep{store: im.store},
		&WriteStep{store: im.store},
		&AutoMapStep{mapper: im.mapper},
	)
}
