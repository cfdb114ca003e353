// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package models

import (
	"time"
)

// APIResponse represents a standardized API response wrapper used by all HTTP endpoints.
//
// Status field values:
//   - "success": Request completed successfully, see Data field
//   - "error": Request failed, see Error field for details
//
// Example success response:
//
//	{
//	  "status": "success",
//	  "data": {"signal": "ok", "items": [{"item_id": "t1", "score": 0.66}]},
//	  "metadata": {"timestamp": "2026-01-15T10:30:00Z", "query_time_ms": 12}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability and performance tracking.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError represents an error response with structured error details.
//
// Fields:
//   - Code: Machine-readable error code (e.g., "VALIDATION_ERROR", "DATABASE_ERROR")
//   - Message: Human-readable error message
//   - Details: Additional context (field names, constraints, etc.)
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Signal describes how much evidence backs a recommendation payload.
type Signal string

const (
	// SignalOK means every signal source answered.
	SignalOK Signal = "ok"

	// SignalNone means the sources answered but had nothing for this request.
	SignalNone Signal = "no_signal"

	// SignalDegraded means at least one source failed and the result is partial.
	SignalDegraded Signal = "degraded"
)

// Notice codes attached to non-ok payloads.
const (
	NoticeNoSignal            = "NO_SIGNAL"
	NoticeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// Notice explains a no_signal or degraded payload to the client.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NoticeFor returns the notice matching a signal, or nil for SignalOK.
func NoticeFor(s Signal) *Notice {
	switch s {
	case SignalNone:
		return &Notice{Code: NoticeNoSignal, Message: "No recommendation data is available for this request"}
	case SignalDegraded:
		return &Notice{Code: NoticeUpstreamUnavailable, Message: "Some recommendation sources are unavailable; results may be incomplete"}
	default:
		return nil
	}
}
