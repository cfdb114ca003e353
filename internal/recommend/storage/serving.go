// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/setlist/internal/metrics"
	"github.com/tomtom215/setlist/internal/models"
)

// Reader serves rules and similarity edges by source item.
type Reader interface {
	RulesFromSources(ctx context.Context, sources []string) ([]models.Rule, error)
	EdgesFromSources(ctx context.Context, sources []string) ([]models.SimilarityEdge, error)
}

// Fallback reads from a primary store and retries against a secondary one
// when the primary has nothing published or fails. Cancelled reads are not
// retried.
type Fallback struct {
	primary   Reader
	secondary Reader
	logger    zerolog.Logger
}

// NewFallback wraps primary with secondary.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func NewFallback(primary, secondary Reader, logger zerolog.Logger) *Fallback {
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("component", "serving_fallback").Logger(),
	}
}

// RulesFromSources implements Reader.
func (f *Fallback) RulesFromSources(ctx context.Context, sources []string) ([]models.Rule, error) {
	rules, err := f.primary.RulesFromSources(ctx, sources)
	if err == nil || ctx.Err() != nil {
		return rules, err
	}
	f.fellBack(KindRules, err)
	return f.secondary.RulesFromSources(ctx, sources)
}

// EdgesFromSources implements Reader.
func (f *Fallback) EdgesFromSources(ctx context.Context, sources []string) ([]models.SimilarityEdge, error) {
	edges, err := f.primary.EdgesFromSources(ctx, sources)
	if err == nil || ctx.Err() != nil {
		return edges, err
	}
	f.fellBack(KindEdges, err)
	return f.secondary.EdgesFromSources(ctx, sources)
}

func (f *Fallback) fellBack(kind string, err error) {
	if errors.Is(err, ErrNotPublished) {
		metrics.ServingFallbacks.WithLabelValues(kind, "not_published").Inc()
		f.logger.Debug().Str("kind", kind).Msg("Nothing published yet, reading fallback store")
		return
	}
	metrics.ServingFallbacks.WithLabelValues(kind, "error").Inc()
	f.logger.Warn().Err(err).Str("kind", kind).Msg("Primary store read failed, reading fallback store")
}

// SeedTarget is a serving store that can be seeded.
type SeedTarget interface {
	Published(ctx context.Context, kind string) (bool, error)
	PublishRules(ctx context.Context, rules []models.Rule, createdAt time.Time) error
	PublishEdges(ctx context.Context, edges []models.SimilarityEdge, createdAt time.Time) error
}

// SeedSource holds the authoritative rule and edge sets.
type SeedSource interface {
	AllRules(ctx context.Context) ([]models.Rule, error)
	AllSimilarityEdges(ctx context.Context) ([]models.SimilarityEdge, error)
}

// Seed copies src into dst for each kind dst has never published and returns
// the kinds it wrote. Empty sets are not published. Kinds dst already serves
// are left untouched.
func Seed(ctx context.Context, dst SeedTarget, src SeedSource) ([]string, error) {
	var seeded []string

	ok, err := dst.Published(ctx, KindRules)
	if err != nil {
		return seeded, err
	}
	if !ok {
		rules, err := src.AllRules(ctx)
		if err != nil {
			return seeded, fmt.Errorf("load rules: %w", err)
		}
		if len(rules) > 0 {
			if err := dst.PublishRules(ctx, rules, rules[0].CreatedAt); err != nil {
				return seeded, fmt.Errorf("seed rules: %w", err)
			}
			seeded = append(seeded, KindRules)
		}
	}

	ok, err = dst.Published(ctx, KindEdges)
	if err != nil {
		return seeded, err
	}
	if !ok {
		edges, err := src.AllSimilarityEdges(ctx)
		if err != nil {
			return seeded, fmt.Errorf("load similarity edges: %w", err)
		}
		if len(edges) > 0 {
			if err := dst.PublishEdges(ctx, edges, edges[0].CreatedAt); err != nil {
				return seeded, fmt.Errorf("seed similarity edges: %w", err)
			}
			seeded = append(seeded, KindEdges)
		}
	}
	return seeded, nil
}
