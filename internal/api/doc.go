// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package api provides the HTTP REST API for Setlist.

Routes:

	GET  /api/v1/health/live
	GET  /api/v1/health/ready
	GET  /api/v1/recommendations/rules/{userID}?take=10
	GET  /api/v1/recommendations/similar/{userID}?num=10
	GET  /api/v1/recommendations/{userID}?num=10
	POST /api/v1/recommendations/score
	GET  /api/v1/events/recommended/{userID}?num=10&match=exact
	GET  /api/v1/events/search?latitude=..&longitude=..&radius=50&keyword=..&user_id=..
	GET  /api/v1/admin/jobs
	POST /api/v1/admin/jobs/{job}?wait=true
	GET  /metrics

Every JSON response uses the models.APIResponse envelope. Recommendation
payloads carry a signal field (ok, no_signal, degraded) and, when it is not
ok, a notice, so a client can tell "nothing to recommend" apart from "a
source is down". Routes whose service is not configured answer 503.

Admin routes require "Authorization: Bearer <token>" matching
security.admin_token and are disabled when no token is configured.

Usage Example:

	handler := api.NewHandler(api.Dependencies{
	    Config: cfg,
	    Scorer: scorer,
	    Seeds:  db,
	    Events: ranker,
	    DB:     db,
	})
	router := api.NewRouter(handler, api.NewChiMiddlewareConfig(&cfg.Security), cfg.Security.AdminToken)
	srv := &http.Server{Addr: addr, Handler: router.SetupChi()}
*/
package api
