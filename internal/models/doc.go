// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package models defines the records shared by the persistence layer, the
recommendation engine and the HTTP API.

Key Types:

  - Rule: directional association rule (source -> target) mined from playlists
  - SimilarityEdge: nearest-neighbor edge from the track feature index
  - Event: an upcoming concert with its popularity score
  - Friend: a friend of the requesting user, used to annotate events
  - APIResponse: standard response wrapper for every HTTP endpoint

Model Categories:

1. Derived recommendation data:
  - Rule and SimilarityEdge are produced by full batch runs and replace the
    previous set atomically; they are never merged incrementally.

2. Event data:
  - Event is upserted by ExternalID. PopularityScore is recomputed on every
    refresh and never accumulated.

3. API Request/Response Models:
  - APIResponse: Standard response wrapper
  - APIError: Error details
  - Metadata: Response metadata (timestamp, query time)
  - Signal / Notice: distinguish an empty result from a degraded one

All models use JSON struct tags with snake_case field names.
*/
package models
