// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/events"
	"github.com/tomtom215/setlist/internal/recommend"
)

// RecommendEngine runs the offline recommendation jobs by name.
type RecommendEngine interface {
	RunJob(ctx context.Context, job string) (*recommend.RunReport, error)
}

// ConcertRefresher runs the concert refresh job.
type ConcertRefresher interface {
	Run(ctx context.Context) (*events.RefreshReport, error)
}

// NewRecommendService schedules rule mining and similarity index building.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRecommendService(engine RecommendEngine, cfg *config.RecommendConfig, logger zerolog.Logger) *ScheduleService {
	job := func(name string) func(context.Context) error {
		return func(ctx context.Context) error {
			_, err := engine.RunJob(ctx, name)
			if errors.Is(err, recommend.ErrJobRunning) {
				return ErrJobSkipped
			}
			return err
		}
	}
	return NewScheduleService("recommend-service", nil, []ScheduledJob{
		{Name: recommend.JobMine, Schedule: cfg.MineSchedule, OnStartup: cfg.RunOnStartup, Run: job(recommend.JobMine)},
		{Name: recommend.JobSimilarity, Schedule: cfg.SimilaritySchedule, OnStartup: cfg.RunOnStartup, Run: job(recommend.JobSimilarity)},
	}, logger)
}

// NewConcertService schedules the concert refresh in the events time zone.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewConcertService(refresher ConcertRefresher, cfg *config.EventsConfig, location *time.Location, logger zerolog.Logger) *ScheduleService {
	return NewScheduleService("concert-service", location, []ScheduledJob{{
		Name:      events.JobConcerts,
		Schedule:  cfg.RefreshSchedule,
		OnStartup: cfg.RefreshOnStartup,
		Run: func(ctx context.Context) error {
			_, err := refresher.Run(ctx)
			if errors.Is(err, events.ErrRefreshRunning) {
				return ErrJobSkipped
			}
			return err
		},
	}}, logger)
}
