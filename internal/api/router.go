// Package api assembles the HTTP routes of the API server.
package api

import (
	"net/http"

	"github.com/dvloznov/taxonomy-bridge/internal/api/handlers"
	"github.com/dvloznov/taxonomy-bridge/internal/api/middleware"
	"github.com/dvloznov/taxonomy-bridge/internal/app"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// NewRouter builds the chi router over a.
func NewRouter(a *app.App, log zerolog.Logger) http.Handler {
	catalog := handlers.NewCatalogHandler(a.Repo, a.Engine, a.Cache, log)
	mappings := handlers.NewMappingsHandler(a.Repo, a.Engine, log)
	marketplaces := handlers.NewMarketplacesHandler(a.Repo, a.Engine, log)
	imports := handlers.NewImportsHandler(a, a.Repo, a.Config.Server.MaxUploadBytes, log)
	jobsHandler := handlers.NewJobsHandler(a.Jobs, log)
	wizard := handlers.NewWizardHandler(a.Engine, a.Sessions, log)
	stats := handlers.NewStatsHandler(a.Exporter)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS)

	r.Get("/health", handlers.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(a.Config.Server.APIKey))

		r.Get("/catalog/{kind}", catalog.List)
		r.Post("/catalog/{kind}", catalog.Create)
		r.Get("/catalog/{kind}/{id}", catalog.Get)
		r.Put("/catalog/{kind}/{id}", catalog.Update)
		r.Delete("/catalog/{kind}/{id}", catalog.Delete)
		r.Get("/mirrored/{kind}", catalog.ListMirrored)

		r.Get("/mappings/{kind}", mappings.List)
		r.Post("/mappings/{kind}", mappings.Create)
		r.Delete("/mappings/{kind}/{id}", mappings.Delete)
		r.Post("/automap/{kind}", mappings.AutoMap)

		r.Get("/marketplaces", marketplaces.List)
		r.Post("/marketplaces", marketplaces.Create)
		r.Delete("/marketplaces/{id}", marketplaces.Delete)

		r.Post("/imports", imports.Upload)
		r.Post("/imports/source", imports.FromSource)
		r.Get("/jobs", jobsHandler.ListJobs)
		r.Get("/jobs/{id}", jobsHandler.GetJob)

		r.Post("/wizard", wizard.Open)
		r.Get("/wizard/{id}", wizard.Get)
		r.Post("/wizard/{id}/start", wizard.Start)
		r.Post("/wizard/{id}/apply", wizard.Apply)
		r.Post("/wizard/{id}/skip", wizard.Skip)
		r.Post("/wizard/{id}/back", wizard.Back)
		r.Delete("/wizard/{id}", wizard.Close)

		r.Get("/stats", stats.Stats)
		r.Post("/export", stats.Export)
	})
	return r
}
