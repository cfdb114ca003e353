// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package config loads Setlist configuration.
//
// Configuration is layered with Koanf v2 (highest priority wins):
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/setlist/config.yaml)
//  3. Environment variables (see envTransformFunc for the mapping)
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load configuration")
//	}
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Logging      LoggingConfig      `koanf:"logging"`
	Security     SecurityConfig     `koanf:"security"`
	Recommend    RecommendConfig    `koanf:"recommend"`
	Events       EventsConfig       `koanf:"events"`
	Ticketmaster TicketmasterConfig `koanf:"ticketmaster"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // development, staging, production
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller includes file and line number in logs.
	Caller bool `koanf:"caller"`
}

// SecurityConfig holds the HTTP edge settings. Authentication is handled by
// the platform gateway in front of this service.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	AdminToken        string        `koanf:"admin_token"` // Required for /api/v1/admin when set
}

// RecommendConfig controls the offline mining jobs and the online scorer.
type RecommendConfig struct {
	Enabled bool `koanf:"enabled"`

	// MinSupport is the frequent-itemset threshold as a fraction of transactions.
	MinSupport float64 `koanf:"min_support"`

	// Neighbors is K, the number of similarity edges kept per item.
	Neighbors int `koanf:"neighbors"`

	// Workers bounds the mining and index-building worker pools (0 = NumCPU).
	Workers int `koanf:"workers"`

	// MineSchedule and SimilaritySchedule are standard 5-field cron expressions.
	MineSchedule       string        `koanf:"mine_schedule"`
	SimilaritySchedule string        `koanf:"similarity_schedule"`
	RunOnStartup       bool          `koanf:"run_on_startup"`
	RunTimeout         time.Duration `koanf:"run_timeout"`

	// TransactionSource selects where playlists are read from: duckdb or sqlite.
	TransactionSource string `koanf:"transaction_source"`
	SQLitePath        string `koanf:"sqlite_path"`

	// FeatureSource selects where track features are read from: duckdb or csv.
	FeatureSource string `koanf:"feature_source"`
	FeaturesCSV   string `koanf:"features_csv"`

	// SnapshotDir keeps compressed archives of each run (empty disables).
	SnapshotDir       string `koanf:"snapshot_dir"`
	SnapshotRetention int    `koanf:"snapshot_retention"`

	// Redis publishes rules and edges to a Redis serving store when Addr is set.
	Redis RedisConfig `koanf:"redis"`

	DefaultTake int `koanf:"default_take"`
}

// RedisConfig configures the optional Redis serving store.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// EventsConfig controls concert ranking and the concert refresh job.
type EventsConfig struct {
	Enabled           bool   `koanf:"enabled"`
	WindowDays        int    `koanf:"window_days"`
	TopArtists        int    `koanf:"top_artists"`
	ListenerThreshold int    `koanf:"listener_threshold"`
	DefaultMatch      string `koanf:"default_match"` // exact or substring
	DefaultNum        int    `koanf:"default_num"`
	Timezone          string `koanf:"timezone"`

	RefreshSchedule  string        `koanf:"refresh_schedule"`
	RefreshOnStartup bool          `koanf:"refresh_on_startup"`
	RefreshTimeout   time.Duration `koanf:"refresh_timeout"`
}

// TicketmasterConfig configures the upstream event search client.
type TicketmasterConfig struct {
	APIKey            string        `koanf:"api_key"`
	BaseURL           string        `koanf:"base_url"`
	Latitude          float64       `koanf:"latitude"`
	Longitude         float64       `koanf:"longitude"`
	GeohashPrecision  int           `koanf:"geohash_precision"`
	Radius            int           `koanf:"radius"`
	PageSize          int           `koanf:"page_size"`
	SegmentID         string        `koanf:"segment_id"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	MaxRetries        int           `koanf:"max_retries"`
	BaseBackoff       time.Duration `koanf:"base_backoff"`
	Timeout           time.Duration `koanf:"timeout"`
	CachePath         string        `koanf:"cache_path"` // empty = in-memory badger, "off" disables
	CacheTTL          time.Duration `koanf:"cache_ttl"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Load reads configuration from defaults, file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
