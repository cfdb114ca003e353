// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Command batch runs the offline jobs once and exits, for cron or CI use
// without the HTTP server.
//
//	batch [-timeout 30m] mine|similarity|concerts|all
//
// Run reports are written to stdout as JSON. The exit status is 0 when every
// job succeeded, 2 when at least one finished partial, and 1 on failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/database"
	"github.com/tomtom215/setlist/internal/events"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/recommend"
	"github.com/tomtom215/setlist/internal/recommend/source"
	"github.com/tomtom215/setlist/internal/recommend/storage"
	"github.com/tomtom215/setlist/internal/sync"
)

const jobAll = "all"

const (
	exitOK      = 0
	exitFailure = 1
	exitPartial = 2
)

// outcome is one job's report and final status.
type outcome struct {
	Job    string      `json:"job"`
	Status string      `json:"status"`
	Report interface{} `json:"report,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func main() {
	timeout := flag.Duration("timeout", 0, "overall deadline for the run (0 = none)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] mine|similarity|concerts|all\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	job := jobAll
	if flag.NArg() > 0 {
		job = flag.Arg(0)
	}
	switch job {
	case recommend.JobMine, recommend.JobSimilarity, events.JobConcerts, jobAll:
	default:
		flag.Usage()
		os.Exit(exitFailure)
	}

	os.Exit(run(job, *timeout))
}

func run(job string, timeout time.Duration) int {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return exitFailure
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logger := logging.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize database")
		return exitFailure
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing database")
		}
	}()

	var outcomes []outcome
	if job == recommend.JobMine || job == recommend.JobSimilarity || job == jobAll {
		outcomes = append(outcomes, runRecommend(ctx, cfg, db, job, logger)...)
	}
	if job == events.JobConcerts || job == jobAll {
		outcomes = append(outcomes, runConcerts(ctx, cfg, db, logger))
	}

	out, err := json.MarshalIndent(outcomes, "", "  ")
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode run reports")
		return exitFailure
	}
	fmt.Println(string(out))

	code := exitOK
	for _, o := range outcomes {
		switch o.Status {
		case recommend.StatusFailure:
			return exitFailure
		case recommend.StatusPartial:
			code = exitPartial
		}
	}
	return code
}

//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func runRecommend(ctx context.Context, cfg *config.Config, db *database.DB, job string, logger zerolog.Logger) []outcome {
	jobs := []string{job}
	if job == jobAll {
		jobs = []string{recommend.JobMine, recommend.JobSimilarity}
	}

	txs, features, closeSources, err := source.New(&cfg.Recommend, db)
	if err != nil {
		out := make([]outcome, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, failed(j, err))
		}
		return out
	}
	defer func() { _ = closeSources() }()

	var opts []recommend.Option
	if dir := cfg.Recommend.SnapshotDir; dir != "" {
		snaps, err := storage.NewSnapshotStore(dir)
		if err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("Snapshot store unavailable, run archives disabled")
		} else {
			defer func() { _ = snaps.Close() }()
			opts = append(opts, recommend.WithSnapshots(snaps))
		}
	}
	if cfg.Recommend.Redis.Addr != "" {
		redisStore, err := storage.NewRedisStore(ctx, &cfg.Recommend.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis serving store unavailable, publishing skipped")
		} else {
			defer func() { _ = redisStore.Close() }()
			opts = append(opts, recommend.WithPublisher(redisStore))
		}
	}

	engine := recommend.NewEngine(&cfg.Recommend, db, txs, features, logger, opts...)
	out := make([]outcome, 0, len(jobs))
	for _, j := range jobs {
		report, err := engine.RunJob(ctx, j)
		if err != nil {
			o := failed(j, err)
			if report != nil {
				o.Report = report
			}
			out = append(out, o)
			if errors.Is(err, context.Canceled) {
				break
			}
			continue
		}
		out = append(out, outcome{Job: j, Status: report.Status, Report: report})
	}
	return out
}

//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func runConcerts(ctx context.Context, cfg *config.Config, db *database.DB, logger zerolog.Logger) outcome {
	if cfg.Ticketmaster.APIKey == "" {
		return failed(events.JobConcerts, errors.New("TICKETMASTER_API_KEY is not set"))
	}
	loc, err := events.LoadLocation(cfg.Events.Timezone)
	if err != nil {
		return failed(events.JobConcerts, err)
	}

	cache, err := sync.OpenPageCache(cfg.Ticketmaster.CachePath, cfg.Ticketmaster.CacheTTL)
	if err != nil {
		logger.Warn().Err(err).Msg("Upstream page cache unavailable, continuing without cache")
		cache = nil
	}
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	client, err := sync.NewTicketmasterClient(&cfg.Ticketmaster, loc, cache, logger)
	if err != nil {
		return failed(events.JobConcerts, err)
	}
	report, err := events.NewRefresher(&cfg.Events, db, client, logger).Run(ctx)
	if err != nil {
		o := failed(events.JobConcerts, err)
		if report != nil {
			o.Report = report
		}
		return o
	}
	return outcome{Job: events.JobConcerts, Status: report.Status, Report: report}
}

func failed(job string, err error) outcome {
	return outcome{Job: job, Status: recommend.StatusFailure, Error: err.Error()}
}
