// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

// Package config provides layered configuration loading for Criticus.
//
// Precedence: environment variables > YAML config file > built-in
// defaults. See koanf.go for the loading pipeline.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the application.
type Config struct {
	Library   LibraryConfig   `koanf:"library"`
	Providers ProvidersConfig `koanf:"providers"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Cache     CacheConfig     `koanf:"cache"`
	Dataset   DatasetConfig   `koanf:"dataset"`
	Ratings   RatingsConfig   `koanf:"ratings"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// LibraryConfig describes the host media library's JSON-RPC endpoint.
type LibraryConfig struct {
	URL      string        `koanf:"url" validate:"required,url"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`

	// WriteRate caps ratings write-backs per second toward the library
	// to avoid starving its own UI thread during large batches.
	WriteRate float64 `koanf:"write_rate" validate:"gt=0"`
}

// ProviderConfig holds credentials and limits for one external provider.
// A provider without a usable credential is excluded from the active
// set by the caller; it is never represented as a permanent failure.
type ProviderConfig struct {
	Enabled bool   `koanf:"enabled"`
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`

	// RateLimit / RateWindow define the sliding-window admission budget:
	// at most RateLimit requests within any RateWindow interval.
	RateLimit  int           `koanf:"rate_limit" validate:"gte=0"`
	RateWindow time.Duration `koanf:"rate_window" validate:"gte=0"`

	Timeout time.Duration `koanf:"timeout"`
}

// ProvidersConfig collects all provider adapter configurations.
type ProvidersConfig struct {
	TMDB    ProviderConfig `koanf:"tmdb"`
	Trakt   ProviderConfig `koanf:"trakt"`
	MDBList ProviderConfig `koanf:"mdblist"`
	OMDB    ProviderConfig `koanf:"omdb"`

	// CacheTTLDays bounds the age of provider response cache entries a
	// fetch may reuse. 0 disables the provider response cache entirely.
	CacheTTLDays int `koanf:"cache_ttl_days" validate:"gte=0"`
}

// RateLimitAction selects what a batch run does when a provider reports
// quota exhaustion mid-run.
type RateLimitAction string

// Rate limit policy actions.
const (
	// RateLimitDisableProvider drops the provider for the rest of the
	// session but keeps the batch running.
	RateLimitDisableProvider RateLimitAction = "disable_provider"
	// RateLimitCancelBatch stops the current batch.
	RateLimitCancelBatch RateLimitAction = "cancel_batch"
	// RateLimitCancelRun aborts the whole run including any retry pass.
	RateLimitCancelRun RateLimitAction = "cancel_run"
)

// SchedulerConfig bounds the batch executor.
type SchedulerConfig struct {
	// MaxWorkers caps fetch jobs in flight across the whole batch.
	MaxWorkers int `koanf:"max_workers" validate:"gt=0"`

	// MaxPerProvider caps fetch jobs in flight per provider.
	MaxPerProvider int `koanf:"max_per_provider" validate:"gt=0"`

	// ItemTimeout finalizes an item whose providers have not all
	// answered, bounding tail latency of the batch.
	ItemTimeout time.Duration `koanf:"item_timeout" validate:"gt=0"`

	// PollInterval is the bounded wait of one collection pass. The
	// cancellation flag is observed at least this often.
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`

	// SubmitPollInterval is the shorter collection wait used while the
	// submission loop is still feeding items in.
	SubmitPollInterval time.Duration `koanf:"submit_poll_interval" validate:"gt=0"`

	// OnRateLimit selects the policy for RateLimited outcomes.
	OnRateLimit RateLimitAction `koanf:"on_rate_limit" validate:"oneof=disable_provider cancel_batch cancel_run"`

	// RetryFailed re-runs items carrying retryable failures once after
	// the main batch completes.
	RetryFailed bool `koanf:"retry_failed"`
}

// CacheConfig describes the persistent adaptive-TTL cache store.
type CacheConfig struct {
	Path string `koanf:"path" validate:"required"`

	// JanitorInterval is how often the serve-mode janitor sweeps
	// expired entries and runs value-log GC.
	JanitorInterval time.Duration `koanf:"janitor_interval" validate:"gt=0"`
}

// DatasetConfig describes the local bulk ratings dataset.
type DatasetConfig struct {
	Path string `koanf:"path"`

	// SourceURL is where the flat-file dataset snapshot is fetched from
	// by the import command.
	SourceURL string `koanf:"source_url"`
}

// RatingsConfig tunes merge and reconciliation.
type RatingsConfig struct {
	// DefaultSource is marked as the default rating when present in the
	// final result set; otherwise the first remaining key is used.
	DefaultSource string `koanf:"default_source"`

	// Priorities maps provider name to trust priority. Higher wins;
	// ties are broken by vote count.
	Priorities map[string]int `koanf:"priorities"`
}

// ServerConfig describes the optional ops endpoint (metrics, health).
type ServerConfig struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RefreshInterval is how often serve mode runs a refresh batch.
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"gt=0"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. These are
// layered under the config file and environment overrides.
func defaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			URL:       "http://127.0.0.1:8080/jsonrpc",
			Timeout:   30 * time.Second,
			WriteRate: 10,
		},
		Providers: ProvidersConfig{
			TMDB: ProviderConfig{
				Enabled:    true,
				BaseURL:    "https://api.themoviedb.org/3",
				RateLimit:  35,
				RateWindow: time.Second,
				Timeout:    15 * time.Second,
			},
			Trakt: ProviderConfig{
				Enabled:    true,
				BaseURL:    "https://api.trakt.tv",
				RateLimit:  900,
				RateWindow: 300 * time.Second,
				Timeout:    15 * time.Second,
			},
			MDBList: ProviderConfig{
				Enabled:    true,
				BaseURL:    "https://api.mdblist.com",
				RateLimit:  50,
				RateWindow: time.Minute,
				Timeout:    15 * time.Second,
			},
			OMDB: ProviderConfig{
				Enabled:    true,
				BaseURL:    "https://www.omdbapi.com",
				RateLimit:  10,
				RateWindow: time.Second,
				Timeout:    15 * time.Second,
			},
			CacheTTLDays: 7,
		},
		Scheduler: SchedulerConfig{
			MaxWorkers:         6,
			MaxPerProvider:     2,
			ItemTimeout:        30 * time.Second,
			PollInterval:       time.Second,
			SubmitPollInterval: 100 * time.Millisecond,
			OnRateLimit:        RateLimitDisableProvider,
			RetryFailed:        false,
		},
		Cache: CacheConfig{
			Path:            "/data/criticus/cache",
			JanitorInterval: time.Hour,
		},
		Dataset: DatasetConfig{
			Path:      "/data/criticus/dataset.duckdb",
			SourceURL: "https://datasets.imdbws.com/title.ratings.tsv.gz",
		},
		Ratings: RatingsConfig{
			DefaultSource: "imdb",
			Priorities: map[string]int{
				"dataset": 110,
				"tmdb":    100,
				"trakt":   100,
				"mdblist": 90,
				"omdb":    50,
			},
		},
		Server: ServerConfig{
			Enabled:         false,
			Host:            "0.0.0.0",
			Port:            3858,
			Timeout:         30 * time.Second,
			RefreshInterval: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for structural and cross-field
// consistency. Called automatically by Load.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// An enabled provider must carry a complete sliding-window budget.
	for name, p := range c.ActiveProviderConfigs() {
		if p.RateLimit > 0 && p.RateWindow <= 0 {
			return fmt.Errorf("provider %s: rate_limit set without rate_window", name)
		}
	}

	if len(c.Ratings.Priorities) == 0 {
		return fmt.Errorf("ratings.priorities must not be empty")
	}

	return nil
}

// ActiveProviderConfigs returns the enabled provider configs by name.
// A provider with no API key is not active: per the provider contract a
// missing credential excludes the adapter from the active set.
func (c *Config) ActiveProviderConfigs() map[string]ProviderConfig {
	out := make(map[string]ProviderConfig, 4)
	add := func(name string, p ProviderConfig) {
		if p.Enabled && p.APIKey != "" {
			out[name] = p
		}
	}
	add("tmdb", c.Providers.TMDB)
	add("trakt", c.Providers.Trakt)
	add("mdblist", c.Providers.MDBList)
	add("omdb", c.Providers.OMDB)
	return out
}
