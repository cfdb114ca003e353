// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package events scores and recommends upcoming concerts.
//
// The Refresher runs on a schedule. It walks every user's top artists,
// searches the upstream event API once per artist, scores each event with
// PopularityScore and upserts it by external id. The Ranker serves requests
// from the stored events: affinity matches under a MatchPolicy first, then
// the most popular upcoming events as backfill, each annotated with the
// friends attending.
package events
