// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/setlist/internal/models"
)

// ReplaceSimilarityEdges swaps the full edge set in one transaction.
func (db *DB) ReplaceSimilarityEdges(ctx context.Context, edges []models.SimilarityEdge) error {
	return db.withRetry(ctx, "replace_similarity_edges", "similarity_edges", func(ctx context.Context) error {
		return db.replaceInTx(ctx, "similarity_edges",
			"INSERT INTO similarity_edges (created_at, source_item, target_item, similarity) VALUES ",
			4, len(edges), func(i int) []interface{} {
				e := edges[i]
				return []interface{}{e.CreatedAt, e.Source, e.Target, e.Similarity}
			})
	})
}

// EdgesFromSources returns every similarity edge whose source is one of sources.
func (db *DB) EdgesFromSources(ctx context.Context, sources []string) ([]models.SimilarityEdge, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT created_at, source_item, target_item, CAST(similarity AS DOUBLE)
		FROM similarity_edges
		WHERE source_item IN (%s)
		ORDER BY source_item, similarity DESC, target_item`, placeholders(len(sources)))

	rows, err := db.conn.QueryContext(ctx, query, stringArgs(sources)...)
	if err != nil {
		return nil, classify("edges_from_sources", "similarity_edges", err)
	}
	defer closeQuietly(rows)

	var edges []models.SimilarityEdge
	for rows.Next() {
		var e models.SimilarityEdge
		if err := rows.Scan(&e.CreatedAt, &e.Source, &e.Target, &e.Similarity); err != nil {
			return nil, classify("edges_from_sources", "similarity_edges", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("edges_from_sources", "similarity_edges", err)
	}
	return edges, nil
}

// AllSimilarityEdges returns the full current edge set.
func (db *DB) AllSimilarityEdges(ctx context.Context) ([]models.SimilarityEdge, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT created_at, source_item, target_item, CAST(similarity AS DOUBLE)
		FROM similarity_edges
		ORDER BY source_item, similarity DESC, target_item`)
	if err != nil {
		return nil, classify("all_similarity_edges", "similarity_edges", err)
	}
	defer closeQuietly(rows)

	var edges []models.SimilarityEdge
	for rows.Next() {
		var e models.SimilarityEdge
		if err := rows.Scan(&e.CreatedAt, &e.Source, &e.Target, &e.Similarity); err != nil {
			return nil, classify("all_similarity_edges", "similarity_edges", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("all_similarity_edges", "similarity_edges", err)
	}
	return edges, nil
}

// CountSimilarityEdges returns the size of the current edge set.
func (db *DB) CountSimilarityEdges(ctx context.Context) (int, error) {
	return db.count(ctx, "similarity_edges")
}
