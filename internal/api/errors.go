// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import "errors"

// ErrEmptyBody is returned for a POST without a request body.
var ErrEmptyBody = errors.New("request body is empty")

// Error codes returned in APIError.Code.
const (
	codeBadRequest    = "BAD_REQUEST"
	codeUnavailable   = "SERVICE_UNAVAILABLE"
	codeRecommend     = "RECOMMENDATION_ERROR"
	codeEvents        = "EVENTS_ERROR"
	codeUnknownJob    = "UNKNOWN_JOB"
	codeJobRunning    = "JOB_RUNNING"
	codeJobFailed     = "JOB_FAILED"
	codeNotReady      = "NOT_READY"
	codeMethodInvalid = "METHOD_NOT_ALLOWED"
	codeNotFound      = "NOT_FOUND"
)
