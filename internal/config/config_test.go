package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TAXO_STORE_BACKEND", "memory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 30s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Jobs.Workers != 1 {
		t.Errorf("Jobs.Workers = %d, want 1", cfg.Jobs.Workers)
	}
	if !cfg.Source.GCS {
		t.Error("Source.GCS should default to true")
	}
	if cfg.Export.Enabled() {
		t.Error("Export should be disabled without a project")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TAXO_STORE_BACKEND", "sheets")
	t.Setenv("TAXO_STORE_MAIN_SPREADSHEET_ID", "main-id")
	t.Setenv("TAXO_STORE_MARKETPLACE_SPREADSHEET_ID", "mp-id")
	t.Setenv("TAXO_SERVER_PORT", "9090")
	t.Setenv("TAXO_SERVER_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("TAXO_EXPORT_PROJECT", "proj")
	t.Setenv("TAXO_EXPORT_DATASET", "taxonomy")
	t.Setenv("TAXO_LOG_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.MainSpreadsheetID != "main-id" || cfg.Store.MarketplaceSpreadsheetID != "mp-id" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 5s", cfg.Server.ShutdownTimeout)
	}
	if !cfg.Export.Enabled() || cfg.Export.Table != "mapping_coverage" {
		t.Errorf("Export = %+v", cfg.Export)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxo.yaml")
	content := "store:\n  backend: memory\nserver:\n  port: 7000\njobs:\n  buffer: 10\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TAXO_SERVER_PORT", "7001")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("Environment should win over the file, port = %d", cfg.Server.Port)
	}
	if cfg.Jobs.Buffer != 10 {
		t.Errorf("Jobs.Buffer = %d, want 10", cfg.Jobs.Buffer)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}

func TestValidate_ListsEveryFailure(t *testing.T) {
	cfg := &Config{
		Store:  StoreConfig{Backend: BackendSheets},
		Server: ServerConfig{Port: 0, ShutdownTimeout: time.Second, MaxUploadBytes: 1},
		Jobs:   JobsConfig{Workers: 0, Buffer: 1},
		Export: ExportConfig{Project: "p"},
		Log:    LogConfig{Level: "loud", Format: "console"},
	}
	err := cfg.Validate()
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Validate() = %v, want ErrValidation", err)
	}
	for _, want := range []string{
		"TAXO_STORE_MAIN_SPREADSHEET_ID",
		"TAXO_STORE_MARKETPLACE_SPREADSHEET_ID",
		"TAXO_SERVER_PORT",
		"TAXO_JOBS_WORKERS",
		"TAXO_EXPORT_PROJECT and TAXO_EXPORT_DATASET",
		"TAXO_LOG_LEVEL",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Error does not mention %s:\n%v", want, err)
		}
	}
}

func TestValidate_UnknownBackend(t *testing.T) {
	t.Setenv("TAXO_STORE_BACKEND", "postgres")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "TAXO_STORE_BACKEND") {
		t.Errorf("Load() = %v, want backend error", err)
	}
}
