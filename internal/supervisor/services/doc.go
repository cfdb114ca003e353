// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package services provides suture.Service wrappers for Setlist components.

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts the ListenAndServe pattern to Serve

Schedules (ScheduleService):
  - Runs named jobs on standard 5-field cron expressions (robfig/cron)
  - Optional run on startup
  - Overlapping runs are skipped, panics are recovered
  - An invalid schedule returns suture.ErrDoNotRestart

NewRecommendService schedules the rule mining and similarity jobs of a
recommend.Engine. NewConcertService schedules an events.Refresher in the
configured events time zone.

# Usage

	tree.AddBatchService(services.NewRecommendService(engine, &cfg.Recommend, logger))
	tree.AddBatchService(services.NewConcertService(refresher, &cfg.Events, loc, logger))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
*/
package services
