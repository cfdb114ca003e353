// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package supervisor provides process supervision for Setlist using suture v4.

The tree isolates the scheduled batch jobs from the HTTP API:

	RootSupervisor ("setlist")
	├── BatchSupervisor ("batch-layer")
	│   ├── recommend-service (mine, similarity)
	│   └── concert-service (concerts)
	└── APISupervisor ("api-layer")
	    └── http-server

A crashing service is restarted with exponential backoff. Failures are
counted per layer, so a batch job stuck in a restart loop never takes the
API down with it.

Supervisor events are logged through sutureslog into the zerolog-backed
slog handler from internal/logging:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor stopped")
	}
*/
package supervisor
