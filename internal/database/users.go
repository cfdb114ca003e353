// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package database

import (
	"context"

	"github.com/tomtom215/setlist/internal/models"
)

// UserIDs returns every known user id in stable order.
func (db *DB) UserIDs(ctx context.Context) ([]string, error) {
	return db.queryStrings(ctx, "user_ids", "users",
		`SELECT user_id FROM users ORDER BY user_id`)
}

// TopArtists returns the user's affinity profile: distinct artist names,
// most recently collected first, at most limit entries.
func (db *DB) TopArtists(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	return db.queryStrings(ctx, "top_artists", "user_top_artists",
		`SELECT artist_name
		FROM user_top_artists
		WHERE user_id = ?
		GROUP BY artist_name
		ORDER BY MAX(collected_at) DESC, MIN(top_rank) ASC, artist_name ASC
		LIMIT ?`, userID, limit)
}

// SeedItems returns the user's distinct top tracks, the seed set for scoring.
func (db *DB) SeedItems(ctx context.Context, userID string) ([]string, error) {
	return db.queryStrings(ctx, "seed_items", "user_top_tracks",
		`SELECT DISTINCT track_id FROM user_top_tracks WHERE user_id = ? ORDER BY track_id`, userID)
}

// ListenerCount returns how many distinct users have artist among their top artists.
func (db *DB) ListenerCount(ctx context.Context, artist string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM user_top_artists WHERE artist_name = ?`, artist).Scan(&n)
	if err != nil {
		return 0, classify("listener_count", "user_top_artists", err)
	}
	return n, nil
}

// FriendsAttending returns the user's friends who attend the event, excluding
// the user themself.
func (db *DB) FriendsAttending(ctx context.Context, userID, externalID string) ([]models.Friend, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		WITH friends AS (
			SELECT user2 AS friend_id FROM friendships WHERE user1 = ?
			UNION
			SELECT user1 AS friend_id FROM friendships WHERE user2 = ?
		)
		SELECT DISTINCT a.user_id, COALESCE(u.username, ''), COALESCE(u.avatar_url, '')
		FROM event_attendance a
		JOIN friends f ON f.friend_id = a.user_id
		LEFT JOIN users u ON u.user_id = a.user_id
		WHERE a.external_id = ? AND a.user_id <> ?
		ORDER BY a.user_id`, userID, userID, externalID, userID)
	if err != nil {
		return nil, classify("friends_attending", "event_attendance", err)
	}
	defer closeQuietly(rows)

	friends := []models.Friend{}
	for rows.Next() {
		var f models.Friend
		if err := rows.Scan(&f.UserID, &f.Username, &f.AvatarURL); err != nil {
			return nil, classify("friends_attending", "event_attendance", err)
		}
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("friends_attending", "event_attendance", err)
	}
	return friends, nil
}

func (db *DB) queryStrings(ctx context.Context, op, table, query string, args ...interface{}) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, table, err)
	}
	defer closeQuietly(rows)

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, classify(op, table, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, table, err)
	}
	return out, nil
}
