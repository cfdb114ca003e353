// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package source loads the batch inputs of the recommendation jobs: playlist
// transactions for the rule miner and track feature vectors for the
// similarity index.
//
// Transactions come from the primary DuckDB store or from an external SQLite
// playlist catalog. Features come from DuckDB or from a CSV export.
package source

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/database"
	"github.com/tomtom215/setlist/internal/recommend/mining"
	"github.com/tomtom215/setlist/internal/recommend/similarity"
)

// TransactionSource provides playlist transactions.
type TransactionSource interface {
	Name() string
	Transactions(ctx context.Context) ([]mining.Transaction, error)
}

// FeatureSource provides track feature vectors.
type FeatureSource interface {
	Name() string
	Features(ctx context.Context) ([]similarity.Vector, error)
}

// DuckDB reads both inputs from the primary store.
type DuckDB struct {
	db *database.DB
}

// NewDuckDB wraps db as a transaction and feature source.
func NewDuckDB(db *database.DB) *DuckDB {
	return &DuckDB{db: db}
}

// Name implements TransactionSource and FeatureSource.
func (s *DuckDB) Name() string { return "duckdb" }

// Transactions returns one transaction per playlist ordered by playlist id.
func (s *DuckDB) Transactions(ctx context.Context) ([]mining.Transaction, error) {
	byPlaylist, err := s.db.Transactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load playlist transactions: %w", err)
	}
	return fromMap(byPlaylist), nil
}

// Features returns every stored feature row as a vector.
func (s *DuckDB) Features(ctx context.Context) ([]similarity.Vector, error) {
	rows, err := s.db.FeatureVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load track features: %w", err)
	}
	out := make([]similarity.Vector, len(rows))
	for i, r := range rows {
		out[i] = similarity.Vector{ID: r.TrackID, Values: r.Values}
	}
	return out, nil
}

// New selects the configured transaction and feature sources. The returned
// closer releases any external handle and is never nil.
func New(cfg *config.RecommendConfig, db *database.DB) (TransactionSource, FeatureSource, func() error, error) {
	closer := func() error { return nil }

	var txs TransactionSource
	switch cfg.TransactionSource {
	case "", "duckdb":
		txs = NewDuckDB(db)
	case "sqlite":
		catalog, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, closer, err
		}
		txs = catalog
		closer = catalog.Close
	default:
		return nil, nil, closer, fmt.Errorf("unknown transaction source %q", cfg.TransactionSource)
	}

	var features FeatureSource
	switch cfg.FeatureSource {
	case "", "duckdb":
		features = NewDuckDB(db)
	case "csv":
		features = NewCSV(cfg.FeaturesCSV, database.FeatureColumns)
	default:
		_ = closer()
		return nil, nil, func() error { return nil }, fmt.Errorf("unknown feature source %q", cfg.FeatureSource)
	}

	return txs, features, closer, nil
}

// ExtractID returns the bare track id of a Spotify URI ("spotify:track:ID").
// Strings without a colon are already bare ids. Any other URI yields "".
func ExtractID(uri string) string {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return ""
	}
	if !strings.Contains(uri, ":") {
		return uri
	}
	if !strings.HasPrefix(uri, "spotify:") {
		return ""
	}
	return uri[strings.LastIndex(uri, ":")+1:]
}

func fromMap(byCollection map[string][]string) []mining.Transaction {
	ids := make([]string, 0, len(byCollection))
	for id := range byCollection {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]mining.Transaction, len(ids))
	for i, id := range ids {
		out[i] = mining.Transaction{CollectionID: id, Items: byCollection[id]}
	}
	return out
}
