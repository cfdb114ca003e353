// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/setlist/internal/models"
)

const eventColumns = `id, external_id, name, artist, artists, venue, location, starts_at,
	has_time, price_range, genres, image_url, event_url, popularity_score, updated_at`

// UpsertEvent inserts the event or updates the row with the same external id.
// The popularity score is overwritten, never accumulated. e.ID is set from
// the stored row.
func (db *DB) UpsertEvent(ctx context.Context, e *models.Event) error {
	if e.ExternalID == "" {
		return &Error{Op: "upsert_event", Kind: KindFatal, Err: errors.New("external id is required")}
	}
	artists, err := json.Marshal(nonNil(e.Artists))
	if err != nil {
		return fmt.Errorf("failed to encode artists: %w", err)
	}
	genres, err := json.Marshal(nonNil(e.Genres))
	if err != nil {
		return fmt.Errorf("failed to encode genres: %w", err)
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}

	var startsAt interface{}
	if e.StartsAt != nil {
		startsAt = *e.StartsAt
	}

	query := `INSERT INTO events (external_id, name, artist, artists, venue, location, starts_at,
			has_time, price_range, genres, image_url, event_url, popularity_score, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			artist = EXCLUDED.artist,
			artists = EXCLUDED.artists,
			venue = EXCLUDED.venue,
			location = EXCLUDED.location,
			starts_at = EXCLUDED.starts_at,
			has_time = EXCLUDED.has_time,
			price_range = EXCLUDED.price_range,
			genres = EXCLUDED.genres,
			image_url = EXCLUDED.image_url,
			event_url = EXCLUDED.event_url,
			popularity_score = EXCLUDED.popularity_score,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	return db.withRetry(ctx, "upsert_event", "events", func(ctx context.Context) error {
		return db.conn.QueryRowContext(ctx, query,
			e.ExternalID, e.Name, e.Artist, string(artists), e.Venue, e.Location, startsAt,
			e.HasTime, e.PriceRange, string(genres), e.ImageURL, e.EventURL, e.PopularityScore, e.UpdatedAt,
		).Scan(&e.ID)
	})
}

// UpcomingEvents returns events starting within [from, to], both inclusive,
// ordered by popularity desc, start asc, external id asc. Events without a
// start date are never returned.
func (db *DB) UpcomingEvents(ctx context.Context, from, to time.Time) ([]models.Event, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE starts_at IS NOT NULL AND starts_at >= ? AND starts_at <= ?
		ORDER BY popularity_score DESC, starts_at ASC, external_id ASC`

	rows, err := db.conn.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, classify("upcoming_events", "events", err)
	}
	defer closeQuietly(rows)

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, classify("upcoming_events", "events", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("upcoming_events", "events", err)
	}
	return events, nil
}

// EventByExternalID loads one event. A missing row yields a KindNotFound error.
func (db *DB) EventByExternalID(ctx context.Context, externalID string) (*models.Event, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE external_id = ?`, externalID)
	e, err := scanEvent(row)
	if err != nil {
		return nil, classify("event_by_external_id", "events", err)
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		e        models.Event
		artists  string
		genres   string
		startsAt sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.ExternalID, &e.Name, &e.Artist, &artists, &e.Venue, &e.Location,
		&startsAt, &e.HasTime, &e.PriceRange, &genres, &e.ImageURL, &e.EventURL,
		&e.PopularityScore, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if startsAt.Valid {
		t := startsAt.Time
		e.StartsAt = &t
	}
	if err := json.Unmarshal([]byte(artists), &e.Artists); err != nil {
		return nil, fmt.Errorf("decode artists for %s: %w", e.ExternalID, err)
	}
	if err := json.Unmarshal([]byte(genres), &e.Genres); err != nil {
		return nil, fmt.Errorf("decode genres for %s: %w", e.ExternalID, err)
	}
	return &e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
