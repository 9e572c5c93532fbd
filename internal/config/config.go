// Package config loads settings from TAXO_* environment variables and an
// optional config file, and validates them on startup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TAXO_SERVER_PORT.
const EnvPrefix = "TAXO"

// Backend names.
const (
	BackendSheets = "sheets"
	BackendMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Server ServerConfig `mapstructure:"server"`
	Jobs   JobsConfig   `mapstructure:"jobs"`
	Source SourceConfig `mapstructure:"source"`
	Export ExportConfig `mapstructure:"export"`
	Log    LogConfig    `mapstructure:"log"`
}

// StoreConfig selects the spreadsheet backend.
type StoreConfig struct {
	// Backend is "sheets" or "memory". The memory backend loses everything on
	// exit and is meant for local runs.
	Backend string `mapstructure:"backend"`

	// CredentialsFile is a service account key; empty uses Application
	// Default Credentials.
	CredentialsFile string `mapstructure:"credentials_file"`

	MainSpreadsheetID        string `mapstructure:"main_spreadsheet_id"`
	MarketplaceSpreadsheetID string `mapstructure:"marketplace_spreadsheet_id"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	// APIKey, when set, is required in the X-API-Key header.
	APIKey string `mapstructure:"api_key"`
}

// JobsConfig sizes the import queue.
type JobsConfig struct {
	Workers    int `mapstructure:"workers"`
	Buffer     int `mapstructure:"buffer"`
	MaxRetries int `mapstructure:"max_retries"`
}

// SourceConfig controls where import files may come from.
type SourceConfig struct {
	// ArchiveBucket receives a copy of every uploaded file. Empty disables
	// archiving.
	ArchiveBucket string `mapstructure:"archive_bucket"`
	// GCS enables gs:// source URIs.
	GCS bool `mapstructure:"gcs"`
	// LocalRoot confines local paths. Empty disables local paths in the API.
	LocalRoot string `mapstructure:"local_root"`
}

// ExportConfig names the BigQuery coverage table.
type ExportConfig struct {
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
	Table   string `mapstructure:"table"`
}

// Enabled reports whether a table is configured.
func (c ExportConfig) Enabled() bool {
	return c.Project != "" && c.Dataset != "" && c.Table != ""
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", BackendSheets)
	v.SetDefault("store.credentials_file", "")
	v.SetDefault("store.main_spreadsheet_id", "")
	v.SetDefault("store.marketplace_spreadsheet_id", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", 32<<20)
	v.SetDefault("server.api_key", "")
	v.SetDefault("jobs.workers", 1)
	v.SetDefault("jobs.buffer", 100)
	v.SetDefault("jobs.max_retries", 3)
	v.SetDefault("source.archive_bucket", "")
	v.SetDefault("source.gcs", true)
	v.SetDefault("source.local_root", "")
	v.SetDefault("export.project", "")
	v.SetDefault("export.dataset", "")
	v.SetDefault("export.table", "mapping_coverage")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads the environment and, when file is non-empty, a config file in
// any format viper understands. Environment variables win over the file.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("Load: reading %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("Load: decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every setting and reports all failures at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Backend {
	case BackendSheets:
		if c.Store.MainSpreadsheetID == "" {
			errs = append(errs, "TAXO_STORE_MAIN_SPREADSHEET_ID is required for the sheets backend")
		}
		if c.Store.MarketplaceSpreadsheetID == "" {
			errs = append(errs, "TAXO_STORE_MARKETPLACE_SPREADSHEET_ID is required for the sheets backend")
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("TAXO_STORE_BACKEND (%q) must be one of: sheets, memory", c.Store.Backend))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("TAXO_SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "TAXO_SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, "TAXO_SERVER_MAX_UPLOAD_BYTES must be positive")
	}
	if c.Jobs.Workers < 1 {
		errs = append(errs, "TAXO_JOBS_WORKERS must be at least 1")
	}
	if c.Jobs.Buffer < 1 {
		errs = append(errs, "TAXO_JOBS_BUFFER must be at least 1")
	}
	if c.Jobs.MaxRetries < 0 {
		errs = append(errs, "TAXO_JOBS_MAX_RETRIES must be non-negative")
	}
	if (c.Export.Project == "") != (c.Export.Dataset == "") {
		errs = append(errs, "TAXO_EXPORT_PROJECT and TAXO_EXPORT_DATASET must be set together")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("TAXO_LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("TAXO_LOG_FORMAT (%q) must be one of: console, json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w:\n  - %s", domain.ErrValidation, strings.Join(errs, "\n  - "))
	}
	return nil
}
