// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package main is the entry point for the Setlist recommendation server.

Setlist serves track recommendations mined from user playlists (association
rules) and track audio features (nearest-neighbor similarity), and concert
recommendations built from each listener's top artists and upstream event
listings.

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	RootSupervisor ("setlist")
	├── BatchSupervisor ("batch-layer")
	│   ├── recommend-service (cron: mine, similarity)
	│   └── concert-service (cron: concerts)
	└── APISupervisor ("api-layer")
	    └── HTTP Server

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config file
 2. Logging: zerolog with JSON/console output modes
 3. Database: DuckDB primary store
 4. Recommendation engine: sources, optional snapshots and Redis serving store
 5. Events: ranker, Ticketmaster client with badger page cache, refresher
 6. Supervisor Tree and HTTP Server

# Configuration

	Priority: Environment variables > Config file > Defaults

Core environment variables:

	HTTP_PORT=8642
	DUCKDB_PATH=/data/setlist.duckdb
	LOG_LEVEL=info
	LOG_FORMAT=json

	RECOMMEND_ENABLED=true
	RECOMMEND_MINE_SCHEDULE="30 2 * * *"
	RECOMMEND_TRANSACTION_SOURCE=duckdb     # or sqlite
	REDIS_ADDR=localhost:6379               # optional serving store

	EVENTS_ENABLED=true
	EVENTS_TIMEZONE=America/New_York
	TICKETMASTER_API_KEY=<key>

	ADMIN_TOKEN=<token>                     # enables /api/v1/admin

# Signal Handling

On SIGINT or SIGTERM the server stops accepting connections, cancels
running batch jobs, waits for in-flight requests (10s timeout), checkpoints
and closes the database, then reports any services that failed to stop.

For one-shot batch runs without the HTTP server see cmd/batch.
*/
package main
