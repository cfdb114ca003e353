// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "setlist_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "kind"}, // kind: transient_conflict, fatal, not_found
	)

	DBRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_duckdb_retries_total",
			Help: "Writes retried after a transient transaction conflict",
		},
		[]string{"operation"},
	)

	// Batch job metrics
	BatchRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "setlist_batch_run_duration_seconds",
			Help:    "Duration of batch runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"job"}, // mine, similarity, concerts
	)

	BatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_batch_runs_total",
			Help: "Batch runs by outcome",
		},
		[]string{"job", "outcome"}, // outcome: success, partial, failure, skipped
	)

	BatchLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "setlist_batch_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		},
		[]string{"job"},
	)

	MinedTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "setlist_mining_transactions",
		Help: "Transactions seen by the last mining run",
	})

	MinedFrequentItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "setlist_mining_frequent_items",
		Help: "Frequent single items found by the last mining run",
	})

	MinedRules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "setlist_mining_rules",
		Help: "Association rules produced by the last mining run",
	})

	SimilarityEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "setlist_similarity_edges",
		Help: "Similarity edges produced by the last index build",
	})

	SimilarityDroppedItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "setlist_similarity_dropped_items",
		Help: "Items dropped from the last index build for lacking features",
	})

	// Scoring metrics
	ScoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "setlist_score_duration_seconds",
			Help:    "Latency of online scoring calls",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"path"}, // rules, similarity, events
	)

	ScoreResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_score_results_total",
			Help: "Scoring calls by signal state",
		},
		[]string{"path", "signal"}, // signal: ok, no_signal, degraded
	)

	ServingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_serving_fallbacks_total",
			Help: "Scoring reads served by the fallback store",
		},
		[]string{"kind", "reason"}, // reason: not_published, error
	)

	// Upstream event API metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_upstream_requests_total",
			Help: "Requests sent to the upstream event API",
		},
		[]string{"upstream", "status"},
	)

	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_upstream_retries_total",
			Help: "Upstream requests retried",
		},
		[]string{"upstream", "reason"}, // reason: rate_limited, network, server_error, decode
	)

	UpstreamCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "setlist_upstream_cache_hits_total",
		Help: "Upstream pages served from the local cache",
	})

	UpstreamPartialResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_upstream_partial_results_total",
			Help: "Searches that returned partial results after exhausting retries",
		},
		[]string{"upstream"},
	)

	EventsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "setlist_events_upserted_total",
		Help: "Events inserted or updated by the refresh job",
	})

	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_events_skipped_total",
			Help: "Upstream events skipped during ingestion",
		},
		[]string{"reason"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "setlist_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordDBQuery records the duration of a DuckDB query.
func RecordDBQuery(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordBatchRun records the outcome of a batch job.
func RecordBatchRun(job, outcome string, duration time.Duration) {
	BatchRuns.WithLabelValues(job, outcome).Inc()
	BatchRunDuration.WithLabelValues(job).Observe(duration.Seconds())
	if outcome == "success" || outcome == "partial" {
		BatchLastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

// RecordUpstreamRequest counts one upstream request by HTTP status code.
// A status of 0 means the request never produced a response.
func RecordUpstreamRequest(upstream string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequests.WithLabelValues(upstream, label).Inc()
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
