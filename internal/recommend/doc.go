// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package recommend orchestrates the track recommendation batch jobs.
//
// # Architecture
//
// Recommendations come from two offline models that are rebuilt on a
// schedule and read online by the scorer:
//
//   - Association rules (package mining): playlist co-occurrence mined into
//     directional rules with support and confidence.
//   - Similarity edges (package similarity): exact cosine nearest neighbors
//     over standardized audio features.
//
// The Engine loads inputs from a source (package source), runs the model
// build, and replaces the output in the primary store in one transaction.
// Optional copies go to a Redis serving store and to on-disk snapshots
// (package storage). Online reads go through package scoring.
//
// # Failure Model
//
//   - Input and configuration errors (no transactions, ragged feature
//     vectors) fail the run before any store is written.
//   - Secondary store failures degrade the run to "partial".
//   - Every run, failed or not, is recorded with its run id.
//
// # Usage
//
//	txs, features, closer, err := source.New(&cfg.Recommend, db)
//	engine := recommend.NewEngine(&cfg.Recommend, db, txs, features, logger,
//	    recommend.WithSnapshots(snapshots))
//	report, err := engine.MineRules(ctx)
package recommend
