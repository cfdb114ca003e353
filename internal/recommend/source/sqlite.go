// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/recommend/mining"
)

// SQLite reads seed playlists from an external catalog database. The catalog
// stores track references as Spotify URIs in recommender_mpdplaylist_songs.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the catalog at path and verifies the connection.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open playlist catalog: %w", err)
	}

	// Reads only; a small pool is plenty.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to playlist catalog: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Name implements TransactionSource.
func (s *SQLite) Name() string { return "sqlite" }

// Close closes the catalog.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Transactions returns the catalog playlists ordered by playlist id. Track
// URIs are reduced to bare ids; unrecognized references are skipped.
func (s *SQLite) Transactions(ctx context.Context) ([]mining.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mpdplaylist_id, mpdtrack_id
		FROM recommender_mpdplaylist_songs`)
	if err != nil {
		return nil, fmt.Errorf("query playlist catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byPlaylist := make(map[string][]string)
	skipped := 0
	for rows.Next() {
		var playlistID, uri string
		if err := rows.Scan(&playlistID, &uri); err != nil {
			return nil, fmt.Errorf("scan playlist catalog row: %w", err)
		}
		id := ExtractID(uri)
		if id == "" {
			skipped++
			continue
		}
		byPlaylist[playlistID] = append(byPlaylist[playlistID], id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read playlist catalog: %w", err)
	}

	if skipped > 0 {
		logging.Warn().Int("skipped", skipped).Msg("Skipped catalog tracks with unrecognized references")
	}
	return fromMap(byPlaylist), nil
}
