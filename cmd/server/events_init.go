// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/database"
	"github.com/tomtom215/setlist/internal/events"
	"github.com/tomtom215/setlist/internal/sync"
)

// EventComponents holds the concert ranker and, when an upstream API key is
// configured, the Ticketmaster client and the refresh job.
type EventComponents struct {
	Ranker    *events.Ranker
	Client    *sync.TicketmasterClient
	Refresher *events.Refresher
	cache     *sync.PageCache
}

// Close releases the upstream page cache.
func (c *EventComponents) Close(logger zerolog.Logger) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Close(); err != nil {
		logger.Warn().Err(err).Msg("Error closing upstream page cache")
	}
}

// initEvents builds the event ranker and refresher. Returns nil if events
// are disabled in config.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func initEvents(cfg *config.Config, db *database.DB, logger zerolog.Logger) (*EventComponents, error) {
	if !cfg.Events.Enabled {
		logger.Info().Msg("Event recommendations disabled (EVENTS_ENABLED=false)")
		return nil, nil
	}

	ranker, err := events.NewRanker(&cfg.Events, db, db, db, logger)
	if err != nil {
		return nil, fmt.Errorf("create event ranker: %w", err)
	}
	c := &EventComponents{Ranker: ranker}

	if cfg.Ticketmaster.APIKey == "" {
		logger.Warn().Msg("TICKETMASTER_API_KEY not set - concert refresh and live search disabled")
		return c, nil
	}

	cache, err := sync.OpenPageCache(cfg.Ticketmaster.CachePath, cfg.Ticketmaster.CacheTTL)
	if err != nil {
		logger.Warn().Err(err).Msg("Upstream page cache unavailable, continuing without cache")
		cache = nil
	}
	c.cache = cache

	client, err := sync.NewTicketmasterClient(&cfg.Ticketmaster, ranker.Location(), cache, logger)
	if err != nil {
		c.Close(logger)
		return nil, fmt.Errorf("create ticketmaster client: %w", err)
	}
	c.Client = client
	c.Refresher = events.NewRefresher(&cfg.Events, db, client, logger)

	logger.Info().
		Str("timezone", ranker.Location().String()).
		Str("refresh_schedule", cfg.Events.RefreshSchedule).
		Bool("cache", cache != nil).
		Msg("Event recommendations enabled")
	return c, nil
}
