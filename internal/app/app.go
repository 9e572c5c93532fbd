// Package app wires the store, reconciliation engine, import pipeline, job
// queue and export into one value shared by the API server and the CLI.
package app

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/dvloznov/taxonomy-bridge/internal/config"
	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/events"
	"github.com/dvloznov/taxonomy-bridge/internal/export"
	"github.com/dvloznov/taxonomy-bridge/internal/jobs"
	"github.com/dvloznov/taxonomy-bridge/internal/jobs/inmemory"
	"github.com/dvloznov/taxonomy-bridge/internal/lookup"
	"github.com/dvloznov/taxonomy-bridge/internal/pipeline"
	"github.com/dvloznov/taxonomy-bridge/internal/pipeline/adapters"
	"github.com/dvloznov/taxonomy-bridge/internal/reconcile"
	"github.com/dvloznov/taxonomy-bridge/internal/repository"
	"github.com/dvloznov/taxonomy-bridge/internal/rowstore"
	"github.com/dvloznov/taxonomy-bridge/internal/source"
	"github.com/rs/zerolog"
)

// App holds every long-lived component.
type App struct {
	Config   *config.Config
	Store    *rowstore.Store
	Repo     *repository.Repository
	Cache    *lookup.Cache
	Engine   *reconcile.Engine
	Registry *pipeline.Registry
	Importer *pipeline.Importer
	Sessions *reconcile.Sessions
	Exporter *export.Exporter
	Jobs     *inmemory.Store
	Queue    *inmemory.Queue

	// ExportTable is nil unless an export table is configured.
	ExportTable *export.Table

	// Fetcher resolves job source URIs. Archiver may be nil.
	Fetcher  source.Fetcher
	Archiver source.Archiver

	log     zerolog.Logger
	closers []func() error
}

// New builds the application from cfg. Nothing is read from the backend
// until Load.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}

	backend, err := newBackend(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	bus := events.NewBus()
	a.Store = rowstore.NewStore(backend, log)
	a.Repo = repository.New(a.Store, bus, log)
	a.Cache = lookup.New(a.Repo, bus)
	a.closers = append(a.closers, func() error { a.Cache.Close(); return nil })
	a.Engine = reconcile.New(a.Repo, a.Cache, bus, log)
	a.Sessions = reconcile.NewSessions()

	a.Registry, err = pipeline.NewRegistry(
		adapters.NewReference(a.Repo, log),
		adapters.Rozetka(),
		adapters.Epicentr(),
		adapters.NewGeneric(),
	)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	a.Importer = pipeline.NewImporter(a.Repo, a.Registry, a.Engine, log)

	mux := &source.Mux{}
	if cfg.Source.LocalRoot != "" {
		mux.Local = &source.Local{Root: cfg.Source.LocalRoot}
	}
	if cfg.Source.GCS || cfg.Source.ArchiveBucket != "" {
		gcs, err := source.NewGCS(ctx, cfg.Source.ArchiveBucket)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, gcs.Close)
		if cfg.Source.GCS {
			mux.GCS = gcs
		}
		if cfg.Source.ArchiveBucket != "" {
			a.Archiver = gcs
		}
	}
	a.Fetcher = mux

	var inserter export.Inserter
	if cfg.Export.Enabled() {
		table, err := export.NewTable(ctx, cfg.Export.Project, cfg.Export.Dataset, cfg.Export.Table)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, table.Close)
		a.ExportTable = table
		inserter = table
	}
	a.Exporter = export.NewExporter(a.Repo, a.Engine, inserter, log)

	a.Jobs = inmemory.NewStore()
	a.Queue = inmemory.NewQueue(cfg.Jobs.Buffer, cfg.Jobs.Workers, a.Jobs)
	return a, nil
}

func newBackend(ctx context.Context, cfg config.StoreConfig) (rowstore.Backend, error) {
	if cfg.Backend == config.BackendMemory {
		return rowstore.NewMemoryBackend(), nil
	}
	return rowstore.NewSheetsBackend(ctx, cfg.CredentialsFile, map[rowstore.SpreadsheetType]string{
		rowstore.SpreadsheetMain:        cfg.MainSpreadsheetID,
		rowstore.SpreadsheetMarketplace: cfg.MarketplaceSpreadsheetID,
	})
}

// Load reads every sheet into memory.
func (a *App) Load(ctx context.Context) error {
	start := time.Now()
	if err := a.Repo.LoadAll(ctx); err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	a.log.Info().Dur("duration", time.Since(start)).
		Int("categories", a.Repo.Categories.Len()).
		Int("characteristics", a.Repo.Characteristics.Len()).
		Int("options", a.Repo.Options.Len()).
		Int("marketplaces", a.Repo.Marketplaces.Len()).
		Msg("Taxonomy loaded")
	return nil
}

// Bootstrap writes header rows for sheets that are missing them.
func (a *App) Bootstrap(ctx context.Context) ([]string, error) {
	return a.Repo.Bootstrap(ctx, a.Store)
}

// Submit queues an import. Uploaded files are archived first when an
// archive bucket is configured; a failed archive does not block the import.
func (a *App) Submit(ctx context.Context, job *jobs.ImportJob) error {
	if job.MaxRetries == 0 {
		job.MaxRetries = a.Config.Jobs.MaxRetries
	}
	if a.Archiver != nil && len(job.Data) > 0 {
		object := path.Join("uploads", job.MarketplaceID, time.Now().UTC().Format("20060102T150405Z")+"-"+job.Filename)
		if uri, err := a.Archiver.Archive(ctx, object, job.Data); err != nil {
			a.log.Warn().Err(err).Str("object", object).Msg("Failed to archive upload")
		} else {
			a.log.Info().Str("uri", uri).Msg("Upload archived")
		}
	}
	return a.Queue.PublishImport(ctx, job)
}

// HandleImport runs one import job. It is the queue's job handler.
func (a *App) HandleImport(ctx context.Context, job *jobs.ImportJob) error {
	log := a.log.With().Str("job_id", job.JobID).Str("marketplace_id", job.MarketplaceID).Logger()

	data := job.Data
	if len(data) == 0 {
		if job.SourceURI == "" {
			return fmt.Errorf("HandleImport: job has neither data nor source: %w", domain.ErrValidation)
		}
		fetched, err := a.Fetcher.Fetch(ctx, job.SourceURI)
		if err != nil {
			return fmt.Errorf("HandleImport: %w", err)
		}
		data = fetched
	}
	filename := job.Filename
	if filename == "" {
		filename = source.Filename(job.SourceURI)
	}

	log.Info().Str("filename", filename).Int("bytes", len(data)).Msg("Processing import job")
	summary, err := a.Importer.Import(ctx, pipeline.Request{
		MarketplaceID: job.MarketplaceID,
		Filename:      filename,
		Data:          data,
		AutoMap:       job.AutoMap,
	})
	job.Summary = summary
	if err != nil {
		log.Error().Err(err).Msg("Import job failed")
		return err
	}
	return nil
}

// Start runs the job workers until ctx is done or Close is called.
func (a *App) Start(ctx context.Context) error {
	return a.Queue.Start(ctx, a.HandleImport)
}

// Close stops the workers and releases clients. Errors are logged.
func (a *App) Close(ctx context.Context) {
	if a.Queue != nil {
		if err := a.Queue.Stop(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Job queue did not stop cleanly")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}
