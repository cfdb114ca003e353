// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/tomtom215/setlist/internal/models"
)

// FeatureRow is one track's numeric attributes in FeatureColumns order.
// NULL values are NaN.
type FeatureRow struct {
	TrackID string
	Values  []float64
}

// Transactions returns the tracks of every playlist, keyed by playlist id.
// Duplicate tracks within a playlist are collapsed.
func (db *DB) Transactions(ctx context.Context) (map[string][]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT playlist_id, track_id
		FROM playlist_tracks
		ORDER BY playlist_id, track_id`)
	if err != nil {
		return nil, classify("transactions", "playlist_tracks", err)
	}
	defer closeQuietly(rows)

	out := make(map[string][]string)
	for rows.Next() {
		var playlistID, trackID string
		if err := rows.Scan(&playlistID, &trackID); err != nil {
			return nil, classify("transactions", "playlist_tracks", err)
		}
		out[playlistID] = append(out[playlistID], trackID)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("transactions", "playlist_tracks", err)
	}
	return out, nil
}

// FeatureVectors returns every track's feature row ordered by track id.
func (db *DB) FeatureVectors(ctx context.Context) ([]FeatureRow, error) {
	quoted := make([]string, len(FeatureColumns))
	for i, c := range FeatureColumns {
		quoted[i] = fmt.Sprintf("CAST(%q AS DOUBLE)", c)
	}
	query := "SELECT track_id, " + strings.Join(quoted, ", ") + " FROM track_features ORDER BY track_id"

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("feature_vectors", "track_features", err)
	}
	defer closeQuietly(rows)

	var out []FeatureRow
	for rows.Next() {
		raw := make([]sql.NullFloat64, len(FeatureColumns))
		dest := make([]interface{}, 0, len(raw)+1)
		var id string
		dest = append(dest, &id)
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, classify("feature_vectors", "track_features", err)
		}

		values := make([]float64, len(raw))
		for i, v := range raw {
			if v.Valid {
				values[i] = v.Float64
			} else {
				values[i] = math.NaN()
			}
		}
		out = append(out, FeatureRow{TrackID: id, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("feature_vectors", "track_features", err)
	}
	return out, nil
}

// RecordRun stores the outcome of a batch run.
func (db *DB) RecordRun(ctx context.Context, run *models.MiningRun) error {
	return db.withRetry(ctx, "record_run", "mining_runs", func(ctx context.Context) error {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO mining_runs (id, job, started_at, finished_at, status, records, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.Job, run.StartedAt, run.FinishedAt, run.Status, run.Records, run.Detail)
		return err
	})
}

// LastRun returns the most recent run of job. A job that never ran yields a
// KindNotFound error.
func (db *DB) LastRun(ctx context.Context, job string) (*models.MiningRun, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var run models.MiningRun
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, job, started_at, finished_at, status, records, detail
		FROM mining_runs
		WHERE job = ?
		ORDER BY finished_at DESC
		LIMIT 1`, job).Scan(&run.ID, &run.Job, &run.StartedAt, &run.FinishedAt, &run.Status, &run.Records, &run.Detail)
	if err != nil {
		return nil, classify("last_run", "mining_runs", err)
	}
	return &run, nil
}
