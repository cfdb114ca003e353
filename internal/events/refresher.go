// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package events

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/metrics"
	"github.com/tomtom215/setlist/internal/models"
	"github.com/tomtom215/setlist/internal/sync"
)

// JobConcerts is the batch job name of the event refresh.
const JobConcerts = "concerts"

// maxReportErrors caps the error messages kept on a report.
const maxReportErrors = 20

// ErrRefreshRunning is returned when a refresh is started while one is running.
var ErrRefreshRunning = errors.New("event refresh already running")

// EventSearcher finds upstream events for an artist keyword.
type EventSearcher interface {
	SearchEvents(ctx context.Context, keyword string) *sync.SearchResult
}

// RefreshStore is the persistence the refresh reads users from and writes
// events to.
type RefreshStore interface {
	UserIDs(ctx context.Context) ([]string, error)
	TopArtists(ctx context.Context, userID string, limit int) ([]string, error)
	ListenerCount(ctx context.Context, artist string) (int, error)
	UpsertEvent(ctx context.Context, e *models.Event) error
	RecordRun(ctx context.Context, run *models.MiningRun) error
}

// RefreshReport summarizes one refresh run.
type RefreshReport struct {
	RunID     string        `json:"run_id"`
	Job       string        `json:"job"`
	Status    string        `json:"status"` // success, partial, failure
	CreatedAt time.Time     `json:"created_at"`
	Duration  time.Duration `json:"duration_ns"`
	Users     int           `json:"users"`
	Artists   int           `json:"artists"`
	Fetched   int           `json:"fetched"`
	Upserted  int           `json:"upserted"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Partial   bool          `json:"partial"`
	Errors    []string      `json:"errors,omitempty"`
}

func (r *RefreshReport) degrade(err error) {
	r.Partial = true
	if len(r.Errors) < maxReportErrors {
		r.Errors = append(r.Errors, err.Error())
	}
}

// Refresher pulls upcoming events for every user's top artists from the
// upstream API and upserts them with a popularity score. Each artist is
// searched at most once per run.
//
// Upstream and per-record failures degrade the run to partial; only a
// failure to list users or a cancelled context fails it.
type Refresher struct {
	store      RefreshStore
	searcher   EventSearcher
	topArtists int
	threshold  int
	timeout    time.Duration
	running    atomic.Bool
	now        func() time.Time
	logger     zerolog.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(cfg *config.EventsConfig, store RefreshStore, searcher EventSearcher, logger zerolog.Logger) *Refresher {
	topArtists := cfg.TopArtists
	if topArtists <= 0 {
		topArtists = DefaultTopArtists
	}
	return &Refresher{
		store:      store,
		searcher:   searcher,
		topArtists: topArtists,
		threshold:  cfg.ListenerThreshold,
		timeout:    cfg.RefreshTimeout,
		now:        time.Now,
		logger:     logger.With().Str("component", "event_refresher").Logger(),
	}
}

// Run performs one refresh.
func (r *Refresher) Run(ctx context.Context) (*RefreshReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRefreshRunning
	}
	defer r.running.Store(false)

	report := &RefreshReport{
		RunID:     uuid.New().String(),
		Job:       JobConcerts,
		Status:    "success",
		CreatedAt: r.now().UTC(),
	}
	ctx = logging.ContextWithRunID(ctx, report.RunID)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	logging.Ctx(ctx).Info().Str("job", JobConcerts).Msg("Starting event refresh")

	start := time.Now()
	err := r.refresh(ctx, report)
	report.Duration = time.Since(start)

	switch {
	case err != nil:
		report.Status = "failure"
		logging.Ctx(ctx).Error().Err(err).Str("job", JobConcerts).Msg("Event refresh failed")
	case report.Partial:
		report.Status = "partial"
	}
	if err == nil {
		logging.Ctx(ctx).Info().
			Str("status", report.Status).
			Int("users", report.Users).
			Int("artists", report.Artists).
			Int("upserted", report.Upserted).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Dur("duration", report.Duration).
			Msg("Event refresh complete")
	}

	metrics.RecordBatchRun(JobConcerts, report.Status, report.Duration)
	r.record(ctx, report, err)

	if err != nil {
		return report, fmt.Errorf("%s: %w", JobConcerts, err)
	}
	return report, nil
}

// Running reports whether a refresh is in progress.
func (r *Refresher) Running() bool {
	return r.running.Load()
}

func (r *Refresher) refresh(ctx context.Context, report *RefreshReport) error {
	users, err := r.store.UserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	report.Users = len(users)

	processed := make(map[string]struct{})
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return err
		}

		artists, err := r.store.TopArtists(ctx, userID, r.topArtists)
		if err != nil {
			report.Failed++
			report.degrade(fmt.Errorf("top artists for %s: %w", userID, err))
			r.logger.Warn().Err(err).Str("user_id", userID).Msg("Skipping user, top artists unavailable")
			continue
		}

		for _, artist := range artists {
			if _, ok := processed[artist]; ok {
				continue
			}
			processed[artist] = struct{}{}
			if err := ctx.Err(); err != nil {
				return err
			}
			report.Artists++
			r.refreshArtist(ctx, artist, report)
		}
	}
	return nil
}

func (r *Refresher) refreshArtist(ctx context.Context, artist string, report *RefreshReport) {
	listeners, err := r.store.ListenerCount(ctx, artist)
	if err != nil {
		report.Failed++
		report.degrade(fmt.Errorf("listener count for %s: %w", artist, err))
		r.logger.Warn().Err(err).Str("artist", artist).Msg("Skipping artist, listener count unavailable")
		return
	}

	res := r.searcher.SearchEvents(ctx, artist)
	if res.Partial {
		report.degrade(fmt.Errorf("search %s: %w", artist, res.Err))
	}
	report.Fetched += len(res.Events)

	for i := range res.Events {
		ev := &res.Events[i]
		if reason := missingField(ev); reason != "" {
			report.Skipped++
			metrics.EventsSkipped.WithLabelValues(reason).Inc()
			r.logger.Warn().Str("external_id", ev.ID).Str("artist", artist).Str("reason", reason).Msg("Skipping incomplete event")
			continue
		}

		m := ev.ToModel(popularity(listeners, r.threshold, ev.Price))
		m.UpdatedAt = r.now().UTC()
		if err := r.store.UpsertEvent(ctx, m); err != nil {
			report.Failed++
			report.degrade(fmt.Errorf("upsert %s: %w", ev.ID, err))
			r.logger.Warn().Err(err).Str("external_id", ev.ID).Msg("Failed to store event")
			continue
		}
		report.Upserted++
		metrics.EventsUpserted.Inc()
	}
}

// missingField names the first required field an event lacks, or "".
func missingField(ev *sync.UpstreamEvent) string {
	switch {
	case ev.ID == "":
		return "no_id"
	case ev.Venue == "":
		return "no_venue"
	case ev.StartsAt == nil:
		return "no_date"
	default:
		return ""
	}
}

// record stores the run outcome. A cancelled run context still records.
func (r *Refresher) record(ctx context.Context, report *RefreshReport, runErr error) {
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	detail := ""
	switch {
	case runErr != nil:
		detail = runErr.Error()
	case len(report.Errors) > 0:
		detail = report.Errors[0]
	}
	run := &models.MiningRun{
		ID:         report.RunID,
		Job:        report.Job,
		StartedAt:  report.CreatedAt,
		FinishedAt: report.CreatedAt.Add(report.Duration),
		Status:     report.Status,
		Records:    report.Upserted,
		Detail:     detail,
	}
	if err := r.store.RecordRun(recordCtx, run); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record event refresh run")
	}
}
