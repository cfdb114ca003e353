// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// ErrJobSkipped is returned by a job that did not run because a previous
// run of the same job is still in progress.
var ErrJobSkipped = errors.New("job skipped")

// ScheduledJob is one cron-triggered job.
type ScheduledJob struct {
	Name      string
	Schedule  string // standard 5-field cron expression
	OnStartup bool
	Run       func(ctx context.Context) error
}

// ScheduleService runs jobs on cron schedules under suture supervision.
//
// Jobs that overlap with their own previous run are skipped, both by the
// cron chain and by the job's own ErrJobSkipped. A panicking job is
// recovered and logged. An invalid schedule stops the service for good
// instead of restarting it.
type ScheduleService struct {
	name     string
	jobs     []ScheduledJob
	location *time.Location
	stopWait time.Duration
	logger   zerolog.Logger
}

// NewScheduleService creates a schedule service. A nil location means the
// local time zone.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewScheduleService(name string, location *time.Location, jobs []ScheduledJob, logger zerolog.Logger) *ScheduleService {
	if location == nil {
		location = time.Local
	}
	return &ScheduleService{
		name:     name,
		jobs:     jobs,
		location: location,
		stopWait: 30 * time.Second,
		logger:   logger.With().Str("service", name).Logger(),
	}
}

// Serve implements suture.Service.
func (s *ScheduleService) Serve(ctx context.Context) error {
	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	for i := range s.jobs {
		job := s.jobs[i]
		schedule, err := cron.ParseStandard(job.Schedule)
		if err != nil {
			return fmt.Errorf("job %s: invalid schedule %q: %v: %w", job.Name, job.Schedule, err, suture.ErrDoNotRestart)
		}
		c.Schedule(schedule, cron.FuncJob(func() { s.run(ctx, job, "schedule") }))
		s.logger.Info().
			Str("job", job.Name).
			Str("schedule", job.Schedule).
			Time("next_run", schedule.Next(time.Now().In(s.location))).
			Msg("job scheduled")
	}

	for _, job := range s.jobs {
		if job.OnStartup {
			s.run(ctx, job, "startup")
		}
	}

	c.Start()
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("schedule service running")

	<-ctx.Done()
	s.logger.Info().Msg("schedule service shutting down")

	// Running jobs see ctx canceled; wait for them to return.
	select {
	case <-c.Stop().Done():
	case <-time.After(s.stopWait):
		s.logger.Warn().Dur("wait", s.stopWait).Msg("running jobs did not stop in time")
	}
	return ctx.Err()
}

func (s *ScheduleService) run(ctx context.Context, job ScheduledJob, trigger string) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.logger.Debug().Str("job", job.Name).Str("trigger", trigger).Msg("job triggered")

	err := job.Run(ctx)
	switch {
	case errors.Is(err, ErrJobSkipped):
		s.logger.Info().Str("job", job.Name).Str("trigger", trigger).Msg("job skipped, previous run still in progress")
	case err != nil:
		s.logger.Warn().Err(err).Str("job", job.Name).Str("trigger", trigger).Msg("job failed (will retry on schedule)")
	default:
		s.logger.Info().Str("job", job.Name).Str("trigger", trigger).Dur("duration", time.Since(start)).Msg("job complete")
	}
}

// String returns the service name for logging.
func (s *ScheduleService) String() string {
	return s.name
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
