// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/setlist/internal/api"
	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/database"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/supervisor"
	"github.com/tomtom215/setlist/internal/supervisor/services"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().Msg("Starting Setlist with supervisor tree")
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("environment", cfg.Server.Environment).
		Bool("recommend_enabled", cfg.Recommend.Enabled).
		Bool("events_enabled", cfg.Events.Enabled).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logging.Logger()

	// Bridges zerolog to slog for sutureslog
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	recommendComponents, err := initRecommend(ctx, cfg, db, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize recommendation engine")
	}
	if recommendComponents != nil {
		defer recommendComponents.Close(logger)
	}

	eventComponents, err := initEvents(cfg, db, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize event recommendations")
	}
	if eventComponents != nil {
		defer eventComponents.Close(logger)
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	for _, origin := range cfg.Security.CORSOrigins {
		if origin == "*" {
			logging.Warn().Msg("CORS is configured with wildcard origin; set specific origins in production")
			break
		}
	}
	if cfg.Security.AdminToken == "" {
		logging.Info().Msg("Admin endpoints disabled (ADMIN_TOKEN not set)")
	}

	// Optional services stay nil interfaces so their routes answer 503.
	deps := api.Dependencies{
		Config:      cfg,
		Seeds:       db,
		Attendance:  db,
		DB:          db,
		BaseContext: ctx,
	}
	if recommendComponents != nil {
		deps.Scorer = recommendComponents.Scorer
		deps.Jobs = recommendComponents.Engine
		tree.AddBatchService(services.NewRecommendService(recommendComponents.Engine, &cfg.Recommend, logger))
		logging.Info().Msg("Recommendation batch jobs added to supervisor tree")
	}
	if eventComponents != nil {
		deps.Events = eventComponents.Ranker
		if eventComponents.Client != nil {
			deps.Search = eventComponents.Client
			deps.Refresher = eventComponents.Refresher
			tree.AddBatchService(services.NewConcertService(eventComponents.Refresher, &cfg.Events, eventComponents.Ranker.Location(), logger))
			logging.Info().Msg("Concert refresh added to supervisor tree")
		}
	}

	handler := api.NewHandler(deps)
	router := api.NewRouter(handler, api.NewChiMiddlewareConfig(&cfg.Security), cfg.Security.AdminToken)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// The supervisor sends exactly one value when it stops.
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	if err := db.Checkpoint(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Final checkpoint failed")
	}
	logging.Info().Msg("Application stopped gracefully")
}
