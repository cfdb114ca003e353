// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"context"
	"time"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/events"
	"github.com/tomtom215/setlist/internal/models"
	"github.com/tomtom215/setlist/internal/recommend"
	"github.com/tomtom215/setlist/internal/recommend/scoring"
	"github.com/tomtom215/setlist/internal/sync"
)

// Scorer ranks tracks for a seed set. Satisfied by *scoring.Scorer.
type Scorer interface {
	ByRules(ctx context.Context, seeds []string, n int) ([]models.ScoredItem, error)
	BySimilarity(ctx context.Context, seeds []string, n int) ([]models.ScoredItem, error)
	Recommend(ctx context.Context, userID string, n int) (*scoring.Recommendations, error)
}

// SeedReader loads the seed tracks of a user.
type SeedReader interface {
	SeedItems(ctx context.Context, userID string) ([]string, error)
}

// EventRanker recommends upcoming events. Satisfied by *events.Ranker.
type EventRanker interface {
	Recommend(ctx context.Context, userID string, num int, policy events.MatchPolicy) (*events.Recommendation, error)
}

// EventSearcher runs a live upstream event search. Satisfied by
// *sync.TicketmasterClient.
type EventSearcher interface {
	SearchByLocation(ctx context.Context, lat, lon float64, radius int, keyword string) *sync.SearchResult
	CircuitState() string
}

// JobEngine runs and reports the offline recommendation jobs. Satisfied by
// *recommend.Engine.
type JobEngine interface {
	RunJob(ctx context.Context, job string) (*recommend.RunReport, error)
	Status() []recommend.JobStatus
}

// ConcertRefresher runs the concert refresh. Satisfied by *events.Refresher.
type ConcertRefresher interface {
	Run(ctx context.Context) (*events.RefreshReport, error)
	Running() bool
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the services the handlers call. Optional services may be
// nil; their routes answer 503.
type Dependencies struct {
	Config     *config.Config
	Scorer     Scorer
	Seeds      SeedReader
	Events     EventRanker
	Attendance events.AttendanceReader
	Search     EventSearcher
	Jobs       JobEngine
	Refresher  ConcertRefresher
	DB         Pinger

	// BaseContext scopes jobs started from the admin API. It should be
	// canceled on shutdown. Defaults to context.Background().
	BaseContext context.Context
}

// Handler serves the HTTP API.
//
// Handler methods are split across files:
//   - handlers_recommend.go: track recommendations
//   - handlers_events.go: concert recommendations and live search
//   - handlers_admin.go: batch job triggers and status
//   - handlers_health.go: liveness and readiness checks
type Handler struct {
	deps         Dependencies
	defaultTake  int
	defaultNum   int
	defaultMatch events.MatchPolicy
	startTime    time.Time
}

// NewHandler creates a handler. An unparsable default match policy falls
// back to exact matching.
func NewHandler(deps Dependencies) *Handler {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	h := &Handler{
		deps:         deps,
		defaultTake:  10,
		defaultNum:   10,
		defaultMatch: events.ExactMatch,
		startTime:    time.Now(),
	}
	if cfg := deps.Config; cfg != nil {
		if cfg.Recommend.DefaultTake > 0 {
			h.defaultTake = cfg.Recommend.DefaultTake
		}
		if cfg.Events.DefaultNum > 0 {
			h.defaultNum = cfg.Events.DefaultNum
		}
		if p, err := events.ParseMatchPolicy(cfg.Events.DefaultMatch); err == nil {
			h.defaultMatch = p
		}
	}
	return h
}
