// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/setlist/config.yaml",
	"/etc/setlist/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Philadelphia is the default search origin for upstream event lookups.
const (
	defaultLatitude  = 39.9526
	defaultLongitude = -75.1652
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8642,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/setlist.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Security: SecurityConfig{
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Recommend: RecommendConfig{
			Enabled:            true,
			MinSupport:         0.01,
			Neighbors:          10,
			Workers:            0,
			MineSchedule:       "30 2 * * *",
			SimilaritySchedule: "45 2 * * *",
			RunOnStartup:       false,
			RunTimeout:         30 * time.Minute,
			TransactionSource:  "duckdb",
			FeatureSource:      "duckdb",
			SnapshotRetention:  3,
			Redis: RedisConfig{
				KeyPrefix: "setlist",
			},
			DefaultTake: 10,
		},
		Events: EventsConfig{
			Enabled:           true,
			WindowDays:        90,
			TopArtists:        50,
			ListenerThreshold: 10,
			DefaultMatch:      "exact",
			DefaultNum:        10,
			Timezone:          "America/New_York",
			RefreshSchedule:   "0 */3 * * *",
			RefreshOnStartup:  false,
			RefreshTimeout:    time.Hour,
		},
		Ticketmaster: TicketmasterConfig{
			BaseURL:           "https://app.ticketmaster.com",
			Latitude:          defaultLatitude,
			Longitude:         defaultLongitude,
			GeohashPrecision:  7,
			Radius:            30,
			PageSize:          20,
			SegmentID:         "KZFzniwnSyZfZ7v7nJ", // Music
			RequestsPerSecond: 5,
			MaxRetries:        3,
			BaseBackoff:       200 * time.Millisecond,
			Timeout:           15 * time.Second,
			CachePath:         "",
			CacheTTL:          2 * time.Hour,
		},
	}
}

// LoadWithKoanf loads configuration using layered sources:
//
//  1. Defaults
//  2. Config file (optional)
//  3. Environment variables
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// TICKETMASTER_API_KEY -> ticketmaster.api_key
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables return "" and are ignored.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",
		"admin_token":         "security.admin_token",

		"recommend_enabled":             "recommend.enabled",
		"recommend_min_support":         "recommend.min_support",
		"recommend_neighbors":           "recommend.neighbors",
		"recommend_workers":             "recommend.workers",
		"recommend_mine_schedule":       "recommend.mine_schedule",
		"recommend_similarity_schedule": "recommend.similarity_schedule",
		"recommend_run_on_startup":      "recommend.run_on_startup",
		"recommend_run_timeout":         "recommend.run_timeout",
		"recommend_transaction_source":  "recommend.transaction_source",
		"recommend_sqlite_path":         "recommend.sqlite_path",
		"recommend_feature_source":      "recommend.feature_source",
		"recommend_features_csv":        "recommend.features_csv",
		"recommend_snapshot_dir":        "recommend.snapshot_dir",
		"recommend_snapshot_retention":  "recommend.snapshot_retention",
		"recommend_default_take":        "recommend.default_take",
		"redis_addr":                    "recommend.redis.addr",
		"redis_password":                "recommend.redis.password",
		"redis_db":                      "recommend.redis.db",
		"redis_key_prefix":              "recommend.redis.key_prefix",

		"events_enabled":            "events.enabled",
		"events_window_days":        "events.window_days",
		"events_top_artists":        "events.top_artists",
		"events_listener_threshold": "events.listener_threshold",
		"events_default_match":      "events.default_match",
		"events_default_num":        "events.default_num",
		"events_timezone":           "events.timezone",
		"events_refresh_schedule":   "events.refresh_schedule",
		"events_refresh_on_startup": "events.refresh_on_startup",
		"events_refresh_timeout":    "events.refresh_timeout",

		"ticketmaster_api_key":             "ticketmaster.api_key",
		"ticketmaster_base_url":            "ticketmaster.base_url",
		"ticketmaster_latitude":            "ticketmaster.latitude",
		"ticketmaster_longitude":           "ticketmaster.longitude",
		"ticketmaster_geohash_precision":   "ticketmaster.geohash_precision",
		"ticketmaster_radius":              "ticketmaster.radius",
		"ticketmaster_page_size":           "ticketmaster.page_size",
		"ticketmaster_segment_id":          "ticketmaster.segment_id",
		"ticketmaster_requests_per_second": "ticketmaster.requests_per_second",
		"ticketmaster_max_retries":         "ticketmaster.max_retries",
		"ticketmaster_base_backoff":        "ticketmaster.base_backoff",
		"ticketmaster_timeout":             "ticketmaster.timeout",
		"ticketmaster_cache_path":          "ticketmaster.cache_path",
		"ticketmaster_cache_ttl":           "ticketmaster.cache_ttl",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
