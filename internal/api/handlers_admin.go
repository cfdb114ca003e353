// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/setlist/internal/events"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/recommend"
)

// JobAccepted is returned when a job was started in the background.
type JobAccepted struct {
	Job     string `json:"job"`
	Started bool   `json:"started"`
}

// TriggerJob handles POST /api/v1/admin/jobs/{job} for mine, similarity and
// concerts. The job runs in the background and the handler answers 202,
// unless ?wait=true is given, in which case the run report is returned.
func (h *Handler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	job := chi.URLParam(r, "job")

	run, running, ok := h.jobRunner(job)
	if !ok {
		respondError(w, http.StatusNotFound, codeUnknownJob, "Unknown job: "+sanitizeLogValue(job), nil)
		return
	}
	if run == nil {
		respondError(w, http.StatusServiceUnavailable, codeUnavailable, "Job "+job+" is not enabled", nil)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		report, err := run(r.Context())
		switch {
		case isRunningErr(err):
			respondError(w, http.StatusConflict, codeJobRunning, "Job "+job+" is already running", nil)
		case err != nil:
			respondError(w, http.StatusInternalServerError, codeJobFailed, "Job "+job+" failed", err)
		default:
			respondSuccess(w, http.StatusOK, report, start)
		}
		return
	}

	if running() {
		respondError(w, http.StatusConflict, codeJobRunning, "Job "+job+" is already running", nil)
		return
	}
	ctx := logging.ContextWithCorrelationID(h.deps.BaseContext, logging.CorrelationIDFromContext(r.Context()))
	go func() {
		logger := logging.Ctx(ctx).With().Str("job", job).Logger()
		if _, err := run(ctx); err != nil {
			if isRunningErr(err) {
				logger.Info().Msg("Triggered job skipped, already running")
				return
			}
			logger.Error().Err(err).Msg("Triggered job failed")
			return
		}
		logger.Info().Msg("Triggered job complete")
	}()
	respondSuccess(w, http.StatusAccepted, &JobAccepted{Job: job, Started: true}, start)
}

// JobStatuses handles GET /api/v1/admin/jobs.
func (h *Handler) JobStatuses(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	statuses := []recommend.JobStatus{}
	if h.deps.Jobs != nil {
		statuses = append(statuses, h.deps.Jobs.Status()...)
	}
	if h.deps.Refresher != nil {
		statuses = append(statuses, recommend.JobStatus{Job: events.JobConcerts, Running: h.deps.Refresher.Running()})
	}
	respondSuccess(w, http.StatusOK, statuses, start)
}

// jobRunner resolves a job name. ok is false for unknown names; run is nil
// when the job is known but its service is not configured.
func (h *Handler) jobRunner(job string) (run func(context.Context) (interface{}, error), running func() bool, ok bool) {
	switch job {
	case recommend.JobMine, recommend.JobSimilarity:
		if h.deps.Jobs == nil {
			return nil, nil, true
		}
		return func(ctx context.Context) (interface{}, error) {
				return h.deps.Jobs.RunJob(ctx, job)
			}, func() bool {
				for _, s := range h.deps.Jobs.Status() {
					if s.Job == job {
						return s.Running
					}
				}
				return false
			}, true
	case events.JobConcerts:
		if h.deps.Refresher == nil {
			return nil, nil, true
		}
		return func(ctx context.Context) (interface{}, error) {
			return h.deps.Refresher.Run(ctx)
		}, h.deps.Refresher.Running, true
	default:
		return nil, nil, false
	}
}

func isRunningErr(err error) bool {
	return errors.Is(err, recommend.ErrJobRunning) || errors.Is(err, events.ErrRefreshRunning)
}
