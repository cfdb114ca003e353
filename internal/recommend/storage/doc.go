// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package storage keeps secondary copies of the batch outputs.
//
// # Snapshots
//
// SnapshotStore archives each mining run and similarity build on disk so a
// bad run can be inspected or restored:
//
//	filename: {job}_v{version}.gob.zst
//
//	structure:
//	  - Metadata (SnapshotMetadata)
//	  - Payload (zstd-compressed gob-encoded RuleSnapshot or EdgeSnapshot)
//
// The SHA-256 checksum of the uncompressed payload is verified on load.
// Prune keeps the newest N versions of a job.
//
// # Redis serving store
//
// RedisStore publishes rules and edges to Redis for low-latency scoring
// reads and implements the same RulesFromSources and EdgesFromSources
// methods as the DuckDB store. Publishing swaps a generation pointer so
// readers never observe a half-written set. A failed publish expires the
// partial generation and withdraws the served one, since DuckDB already holds
// the newer set.
//
// Fallback puts DuckDB behind Redis for reads: it answers when Redis has no
// generation (ErrNotPublished) or a Redis read fails. Seed copies the DuckDB
// sets into a Redis store that has never been published to.
package storage
