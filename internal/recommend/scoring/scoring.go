// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package scoring turns a seed item set into ranked track recommendations.
//
// Two independent paths are offered:
//
//   - ByRules averages the confidence of every association rule whose source
//     is a seed, grouped by target.
//   - BySimilarity keeps, per target, the highest similarity edge whose
//     source is a seed.
//
// Seeds are never recommended back. A Scorer holds no mutable state and is
// safe for concurrent use.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/setlist/internal/metrics"
	"github.com/tomtom215/setlist/internal/models"
)

// RuleReader loads association rules by source item.
type RuleReader interface {
	RulesFromSources(ctx context.Context, sources []string) ([]models.Rule, error)
}

// EdgeReader loads similarity edges by source item.
type EdgeReader interface {
	EdgesFromSources(ctx context.Context, sources []string) ([]models.SimilarityEdge, error)
}

// SeedReader loads the seed items of a user.
type SeedReader interface {
	SeedItems(ctx context.Context, userID string) ([]string, error)
}

// Scorer ranks candidate items for a seed set.
type Scorer struct {
	rules  RuleReader
	edges  EdgeReader
	seeds  SeedReader
	logger zerolog.Logger
}

// NewScorer creates a scorer. seeds may be nil when Recommend is not used.
func NewScorer(rules RuleReader, edges EdgeReader, seeds SeedReader, logger zerolog.Logger) *Scorer {
	return &Scorer{
		rules:  rules,
		edges:  edges,
		seeds:  seeds,
		logger: logger.With().Str("component", "scorer").Logger(),
	}
}

// Recommendations holds both named recommendation lists for one user.
type Recommendations struct {
	Rules   []models.ScoredItem `json:"rules"`
	Similar []models.ScoredItem `json:"similar"`
	Signal  models.Signal       `json:"signal"`
}

// ByRules returns at most n targets ranked by mean rule confidence.
func (s *Scorer) ByRules(ctx context.Context, seeds []string, n int) ([]models.ScoredItem, error) {
	if len(seeds) == 0 || n <= 0 {
		return []models.ScoredItem{}, nil
	}
	start := time.Now()
	defer func() { metrics.ScoreDuration.WithLabelValues("rules").Observe(time.Since(start).Seconds()) }()

	rules, err := s.rules.RulesFromSources(ctx, seeds)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return RankRules(rules, seeds, n), nil
}

// BySimilarity returns at most n targets ranked by their best similarity to
// any seed.
func (s *Scorer) BySimilarity(ctx context.Context, seeds []string, n int) ([]models.ScoredItem, error) {
	if len(seeds) == 0 || n <= 0 {
		return []models.ScoredItem{}, nil
	}
	start := time.Now()
	defer func() { metrics.ScoreDuration.WithLabelValues("similarity").Observe(time.Since(start).Seconds()) }()

	edges, err := s.edges.EdgesFromSources(ctx, seeds)
	if err != nil {
		return nil, fmt.Errorf("load similarity edges: %w", err)
	}
	return RankEdges(edges, seeds, n), nil
}

// Recommend loads userID's seeds and scores both paths concurrently. A failing
// path degrades the result instead of failing it; only a seed lookup failure
// or both paths failing return an error.
func (s *Scorer) Recommend(ctx context.Context, userID string, n int) (*Recommendations, error) {
	if s.seeds == nil {
		return nil, fmt.Errorf("scorer has no seed reader")
	}
	seeds, err := s.seeds.SeedItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load seeds for %s: %w", userID, err)
	}

	out := &Recommendations{}
	var ruleErr, simErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.Rules, ruleErr = s.ByRules(ctx, seeds, n)
	}()
	go func() {
		defer wg.Done()
		out.Similar, simErr = s.BySimilarity(ctx, seeds, n)
	}()
	wg.Wait()

	if ruleErr != nil && simErr != nil {
		return nil, fmt.Errorf("both scoring paths failed: %w; %w", ruleErr, simErr)
	}
	if ruleErr != nil {
		s.logger.Warn().Err(ruleErr).Str("user_id", userID).Msg("Rule scoring unavailable, returning similarity only")
		out.Rules = []models.ScoredItem{}
	}
	if simErr != nil {
		s.logger.Warn().Err(simErr).Str("user_id", userID).Msg("Similarity scoring unavailable, returning rules only")
		out.Similar = []models.ScoredItem{}
	}

	switch {
	case ruleErr != nil || simErr != nil:
		out.Signal = models.SignalDegraded
	case len(out.Rules) == 0 && len(out.Similar) == 0:
		out.Signal = models.SignalNone
	default:
		out.Signal = models.SignalOK
	}
	metrics.ScoreResults.WithLabelValues("combined", string(out.Signal)).Inc()
	return out, nil
}

// RankRules groups rules by target (seed targets excluded), scores each target
// by its mean confidence and returns the top n, ties by item id.
func RankRules(rules []models.Rule, seeds []string, n int) []models.ScoredItem {
	seedSet := toSet(seeds)

	type agg struct {
		sum   float64
		count int
	}
	byTarget := make(map[string]*agg)
	for _, r := range rules {
		if _, ok := seedSet[r.Source]; !ok {
			continue
		}
		if _, ok := seedSet[r.Target]; ok {
			continue
		}
		a := byTarget[r.Target]
		if a == nil {
			a = &agg{}
			byTarget[r.Target] = a
		}
		a.sum += r.Confidence
		a.count++
	}

	items := make([]models.ScoredItem, 0, len(byTarget))
	for target, a := range byTarget {
		items = append(items, models.ScoredItem{ItemID: target, Score: a.sum / float64(a.count)})
	}
	sortScored(items)
	return truncate(items, n)
}

// RankEdges keeps the best edge per target (seed targets excluded) and returns
// the top n by similarity, ties by item id.
func RankEdges(edges []models.SimilarityEdge, seeds []string, n int) []models.ScoredItem {
	seedSet := toSet(seeds)

	best := make(map[string]float64)
	for _, e := range edges {
		if _, ok := seedSet[e.Source]; !ok {
			continue
		}
		if _, ok := seedSet[e.Target]; ok {
			continue
		}
		if cur, ok := best[e.Target]; !ok || e.Similarity > cur {
			best[e.Target] = e.Similarity
		}
	}

	items := make([]models.ScoredItem, 0, len(best))
	for target, sim := range best {
		items = append(items, models.ScoredItem{ItemID: target, Score: sim})
	}
	sortScored(items)
	return truncate(items, n)
}

func sortScored(items []models.ScoredItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ItemID < items[j].ItemID
	})
}

func truncate(items []models.ScoredItem, n int) []models.ScoredItem {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
