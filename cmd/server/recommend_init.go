// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/database"
	"github.com/tomtom215/setlist/internal/recommend"
	"github.com/tomtom215/setlist/internal/recommend/scoring"
	"github.com/tomtom215/setlist/internal/recommend/source"
	"github.com/tomtom215/setlist/internal/recommend/storage"
)

// RecommendComponents holds the batch engine, the online scorer and the
// resources they own.
type RecommendComponents struct {
	Engine  *recommend.Engine
	Scorer  *scoring.Scorer
	closers []func() error
}

// Close releases sources, the snapshot store and the Redis client.
func (c *RecommendComponents) Close(logger zerolog.Logger) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("Error closing recommendation resource")
		}
	}
}

// initRecommend builds the recommendation engine and scorer. Returns nil if
// recommendations are disabled in config.
//
// Optional outputs degrade instead of failing startup: an unreachable Redis
// or an unwritable snapshot directory is logged and skipped. A reachable Redis
// with nothing published is seeded from DuckDB, and scoring reads fall back to
// DuckDB whenever Redis has no generation or a read fails.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func initRecommend(ctx context.Context, cfg *config.Config, db *database.DB, logger zerolog.Logger) (*RecommendComponents, error) {
	if !cfg.Recommend.Enabled {
		logger.Info().Msg("Recommendation engine disabled (RECOMMEND_ENABLED=false)")
		return nil, nil
	}

	logger.Info().
		Float64("min_support", cfg.Recommend.MinSupport).
		Int("neighbors", cfg.Recommend.Neighbors).
		Str("transaction_source", cfg.Recommend.TransactionSource).
		Str("feature_source", cfg.Recommend.FeatureSource).
		Str("mine_schedule", cfg.Recommend.MineSchedule).
		Str("similarity_schedule", cfg.Recommend.SimilaritySchedule).
		Msg("Initializing recommendation engine")

	txs, features, closeSources, err := source.New(&cfg.Recommend, db)
	if err != nil {
		return nil, fmt.Errorf("open recommendation sources: %w", err)
	}
	c := &RecommendComponents{closers: []func() error{closeSources}}

	var (
		opts  []recommend.Option
		rules scoring.RuleReader = db
		edges scoring.EdgeReader = db
	)

	if dir := cfg.Recommend.SnapshotDir; dir != "" {
		snaps, err := storage.NewSnapshotStore(dir)
		if err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("Snapshot store unavailable, run archives disabled")
		} else {
			opts = append(opts, recommend.WithSnapshots(snaps))
			c.closers = append(c.closers, snaps.Close)
			logger.Info().Str("dir", dir).Int("retention", cfg.Recommend.SnapshotRetention).Msg("Run snapshots enabled")
		}
	}

	if cfg.Recommend.Redis.Addr != "" {
		redisStore, err := storage.NewRedisStore(ctx, &cfg.Recommend.Redis)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Recommend.Redis.Addr).Msg("Redis serving store unavailable, serving from DuckDB")
		} else {
			opts = append(opts, recommend.WithPublisher(redisStore))
			c.closers = append(c.closers, redisStore.Close)

			seeded, err := storage.Seed(ctx, redisStore, db)
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to seed Redis from DuckDB, unseeded kinds read from DuckDB")
			} else if len(seeded) > 0 {
				logger.Info().Strs("kinds", seeded).Msg("Seeded Redis serving store from DuckDB")
			}

			serving := storage.NewFallback(redisStore, db, logger)
			rules, edges = serving, serving
			logger.Info().Str("addr", cfg.Recommend.Redis.Addr).Msg("Serving rules and edges from Redis with DuckDB fallback")
		}
	}

	c.Engine = recommend.NewEngine(&cfg.Recommend, db, txs, features, logger, opts...)
	c.Scorer = scoring.NewScorer(rules, edges, db, logger)
	return c, nil
}
