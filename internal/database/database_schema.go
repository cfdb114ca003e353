// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
database_schema.go - Database Schema Management

Tables owned by Setlist:
  - association_rules: mined source -> target rules, replaced per run
  - similarity_edges: top-K nearest neighbors per track, replaced per run
  - events: upcoming concerts, upserted by external_id
  - mining_runs: one row per batch run

Tables mirrored from the user subsystem (read-only here; tests seed them):
  - users, user_top_artists, user_top_tracks
  - playlists, playlist_tracks, track_features
  - friendships (one row per pair, either direction)
  - event_attendance (keyed by the event's external_id)
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// FeatureColumns are the numeric track attributes fed to the similarity index,
// in column order.
var FeatureColumns = []string{
	"danceability",
	"energy",
	"key",
	"loudness",
	"speechiness",
	"acousticness",
	"instrumentalness",
	"liveness",
	"valence",
	"tempo",
	"duration_ms",
	"time_signature",
	"mode",
}

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func tableCreationQueries() []string {
	featureCols := ""
	for _, c := range FeatureColumns {
		featureCols += fmt.Sprintf("\n\t\t\t%q DOUBLE,", c)
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS association_rules (
			created_at TIMESTAMP NOT NULL,
			source_item TEXT NOT NULL,
			target_item TEXT NOT NULL,
			confidence DECIMAL(10,8) NOT NULL,
			support DECIMAL(10,8) NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS similarity_edges (
			created_at TIMESTAMP NOT NULL,
			source_item TEXT NOT NULL,
			target_item TEXT NOT NULL,
			similarity DECIMAL(8,7) NOT NULL
		)`,

		`CREATE SEQUENCE IF NOT EXISTS events_id_seq START 1`,

		`CREATE TABLE IF NOT EXISTS events (
			id BIGINT PRIMARY KEY DEFAULT nextval('events_id_seq'),
			external_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			artist TEXT NOT NULL,
			artists TEXT NOT NULL DEFAULT '[]',
			venue TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			starts_at TIMESTAMP,
			has_time BOOLEAN NOT NULL DEFAULT FALSE,
			price_range TEXT NOT NULL DEFAULT '',
			genres TEXT NOT NULL DEFAULT '[]',
			image_url TEXT NOT NULL DEFAULT '',
			event_url TEXT NOT NULL DEFAULT '',
			popularity_score DOUBLE NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS user_top_artists (
			user_id TEXT NOT NULL,
			artist_name TEXT NOT NULL,
			top_rank INTEGER NOT NULL DEFAULT 0,
			collected_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS user_top_tracks (
			user_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			top_rank INTEGER NOT NULL DEFAULT 0,
			collected_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS playlists (
			playlist_id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS playlist_tracks (
			playlist_id TEXT NOT NULL,
			track_id TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS track_features (
			track_id TEXT PRIMARY KEY,` + featureCols + `
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS friendships (
			user1 TEXT NOT NULL,
			user2 TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS event_attendance (
			external_id TEXT NOT NULL,
			user_id TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS mining_runs (
			id TEXT PRIMARY KEY,
			job TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			records INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		)`,
	}
}

func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_rules_source ON association_rules(source_item)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_source ON similarity_edges(source_item)`,
		`CREATE INDEX IF NOT EXISTS idx_top_artists_user ON user_top_artists(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_top_artists_name ON user_top_artists(artist_name)`,
		`CREATE INDEX IF NOT EXISTS idx_top_tracks_user ON user_top_tracks(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_playlist_tracks_playlist ON playlist_tracks(playlist_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_event ON event_attendance(external_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_job ON mining_runs(job, finished_at)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}
	return nil
}
