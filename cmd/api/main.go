package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/taxonomy-bridge/internal/api"
	"github.com/dvloznov/taxonomy-bridge/internal/app"
	"github.com/dvloznov/taxonomy-bridge/internal/config"
	"github.com/dvloznov/taxonomy-bridge/internal/logger"
	"github.com/joho/godotenv"
)

func main() {
	configFile := flag.String("config", os.Getenv("TAXO_CONFIG"), "Config file (or set TAXO_CONFIG env)")
	flag.Parse()

	bootLog := logger.New()

	// A missing .env is fine; the environment may be set by the platform.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		bootLog.Warn().Err(err).Msg("Failed to read .env")
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Out: os.Stdout})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	if err := a.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load spreadsheet")
	}
	if err := a.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start import worker")
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      api.NewRouter(a, log),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("backend", cfg.Store.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop taking jobs, then wait for the running import.
	cancel()
	a.Close(shutdownCtx)

	log.Info().Msg("Server exited")
}
