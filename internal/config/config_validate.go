// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Upstream quota limits of the Discovery API.
const (
	maxRequestsPerSecond = 5
	maxUpstreamRetries   = 3
	maxBaseBackoff       = 10 * time.Second
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateRecommend(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateTicketmaster(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	return nil
}

func (c *Config) validateRecommend() error {
	r := c.Recommend
	if r.MinSupport < 0 || r.MinSupport > 1 {
		return fmt.Errorf("RECOMMEND_MIN_SUPPORT must be within [0, 1], got %g", r.MinSupport)
	}
	if r.Neighbors < 1 {
		return fmt.Errorf("RECOMMEND_NEIGHBORS must be at least 1, got %d", r.Neighbors)
	}
	if r.Workers < 0 {
		return fmt.Errorf("RECOMMEND_WORKERS must not be negative")
	}
	if !r.Enabled {
		return nil
	}
	if err := validateSchedule(r.MineSchedule, "RECOMMEND_MINE_SCHEDULE"); err != nil {
		return err
	}
	if err := validateSchedule(r.SimilaritySchedule, "RECOMMEND_SIMILARITY_SCHEDULE"); err != nil {
		return err
	}

	switch r.TransactionSource {
	case "duckdb":
	case "sqlite":
		if r.SQLitePath == "" {
			return fmt.Errorf("RECOMMEND_SQLITE_PATH is required when RECOMMEND_TRANSACTION_SOURCE=sqlite")
		}
	default:
		return fmt.Errorf("RECOMMEND_TRANSACTION_SOURCE must be duckdb or sqlite, got %q", r.TransactionSource)
	}

	switch r.FeatureSource {
	case "duckdb":
	case "csv":
		if r.FeaturesCSV == "" {
			return fmt.Errorf("RECOMMEND_FEATURES_CSV is required when RECOMMEND_FEATURE_SOURCE=csv")
		}
	default:
		return fmt.Errorf("RECOMMEND_FEATURE_SOURCE must be duckdb or csv, got %q", r.FeatureSource)
	}
	return nil
}

func (c *Config) validateEvents() error {
	e := c.Events
	if e.WindowDays < 0 {
		return fmt.Errorf("EVENTS_WINDOW_DAYS must not be negative")
	}
	if e.TopArtists < 1 {
		return fmt.Errorf("EVENTS_TOP_ARTISTS must be at least 1")
	}
	if e.ListenerThreshold < 1 {
		return fmt.Errorf("EVENTS_LISTENER_THRESHOLD must be at least 1")
	}
	switch strings.ToLower(e.DefaultMatch) {
	case "exact", "substring":
	default:
		return fmt.Errorf("EVENTS_DEFAULT_MATCH must be exact or substring, got %q", e.DefaultMatch)
	}
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		return fmt.Errorf("EVENTS_TIMEZONE is invalid: %w", err)
	}
	if e.Enabled {
		return validateSchedule(e.RefreshSchedule, "EVENTS_REFRESH_SCHEDULE")
	}
	return nil
}

func (c *Config) validateTicketmaster() error {
	t := c.Ticketmaster
	if c.Events.Enabled && t.APIKey == "" && c.IsProduction() {
		return fmt.Errorf("TICKETMASTER_API_KEY is required in production when events are enabled")
	}
	u, err := url.Parse(t.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("TICKETMASTER_BASE_URL must be an http(s) URL, got %q", t.BaseURL)
	}
	if t.Latitude < -90 || t.Latitude > 90 || t.Longitude < -180 || t.Longitude > 180 {
		return fmt.Errorf("TICKETMASTER_LATITUDE/LONGITUDE out of range")
	}
	if t.GeohashPrecision < 1 || t.GeohashPrecision > 12 {
		return fmt.Errorf("TICKETMASTER_GEOHASH_PRECISION must be between 1 and 12")
	}
	if t.PageSize < 1 || t.PageSize > 200 {
		return fmt.Errorf("TICKETMASTER_PAGE_SIZE must be between 1 and 200")
	}
	if t.RequestsPerSecond <= 0 || t.RequestsPerSecond > maxRequestsPerSecond {
		return fmt.Errorf("TICKETMASTER_REQUESTS_PER_SECOND must be in (0, %d], got %v", maxRequestsPerSecond, t.RequestsPerSecond)
	}
	if t.MaxRetries < 0 || t.MaxRetries > maxUpstreamRetries {
		return fmt.Errorf("TICKETMASTER_MAX_RETRIES must be between 0 and %d", maxUpstreamRetries)
	}
	if t.BaseBackoff <= 0 || t.BaseBackoff > maxBaseBackoff {
		return fmt.Errorf("TICKETMASTER_BASE_BACKOFF must be in (0, %v], got %v", maxBaseBackoff, t.BaseBackoff)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL is invalid: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

func validateSchedule(spec, name string) error {
	if spec == "" {
		return fmt.Errorf("%s is required", name)
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("%s is not a valid cron expression: %w", name, err)
	}
	return nil
}
