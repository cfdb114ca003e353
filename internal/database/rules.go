// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tomtom215/setlist/internal/models"
)

// ReplaceRules swaps the full rule set for rules in one transaction.
// Readers see either the previous set or the new one, never a mix.
func (db *DB) ReplaceRules(ctx context.Context, rules []models.Rule) error {
	return db.withRetry(ctx, "replace_rules", "association_rules", func(ctx context.Context) error {
		return db.replaceInTx(ctx, "association_rules",
			"INSERT INTO association_rules (created_at, source_item, target_item, confidence, support) VALUES ",
			5, len(rules), func(i int) []interface{} {
				r := rules[i]
				return []interface{}{r.CreatedAt, r.Source, r.Target, r.Confidence, r.Support}
			})
	})
}

// RulesFromSources returns every rule whose source is one of sources.
func (db *DB) RulesFromSources(ctx context.Context, sources []string) ([]models.Rule, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT created_at, source_item, target_item,
			CAST(confidence AS DOUBLE), CAST(support AS DOUBLE)
		FROM association_rules
		WHERE source_item IN (%s)
		ORDER BY source_item, target_item`, placeholders(len(sources)))

	rows, err := db.conn.QueryContext(ctx, query, stringArgs(sources)...)
	if err != nil {
		return nil, classify("rules_from_sources", "association_rules", err)
	}
	defer closeQuietly(rows)

	var rules []models.Rule
	for rows.Next() {
		var r models.Rule
		if err := rows.Scan(&r.CreatedAt, &r.Source, &r.Target, &r.Confidence, &r.Support); err != nil {
			return nil, classify("rules_from_sources", "association_rules", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("rules_from_sources", "association_rules", err)
	}
	return rules, nil
}

// AllRules returns the full current rule set.
func (db *DB) AllRules(ctx context.Context) ([]models.Rule, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT created_at, source_item, target_item,
			CAST(confidence AS DOUBLE), CAST(support AS DOUBLE)
		FROM association_rules
		ORDER BY source_item, target_item`)
	if err != nil {
		return nil, classify("all_rules", "association_rules", err)
	}
	defer closeQuietly(rows)

	var rules []models.Rule
	for rows.Next() {
		var r models.Rule
		if err := rows.Scan(&r.CreatedAt, &r.Source, &r.Target, &r.Confidence, &r.Support); err != nil {
			return nil, classify("all_rules", "association_rules", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("all_rules", "association_rules", err)
	}
	return rules, nil
}

// CountRules returns the size of the current rule set.
func (db *DB) CountRules(ctx context.Context) (int, error) {
	return db.count(ctx, "association_rules")
}

func (db *DB) count(ctx context.Context, table string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int
	// table is always a package constant
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, classify("count", table, err)
	}
	return n, nil
}

// replaceInTx deletes every row of table and inserts n rows in batches,
// committing once.
func (db *DB) replaceInTx(ctx context.Context, table, insertPrefix string, cols, n int, rowArgs func(int) []interface{}) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackQuietly(tx, err)
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	if err = insertBatches(ctx, tx, insertPrefix, cols, n, db.insertBatchSize, rowArgs); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", table, err)
	}
	return nil
}

// insertBatches issues multi-row INSERTs of at most batch rows each.
func insertBatches(ctx context.Context, tx *sql.Tx, prefix string, cols, n, batch int, rowArgs func(int) []interface{}) error {
	if batch <= 0 {
		batch = 500
	}
	tuple := "(" + placeholders(cols) + ")"

	for start := 0; start < n; start += batch {
		end := start + batch
		if end > n {
			end = n
		}

		var sb strings.Builder
		sb.WriteString(prefix)
		args := make([]interface{}, 0, (end-start)*cols)
		for i := start; i < end; i++ {
			if i > start {
				sb.WriteString(", ")
			}
			sb.WriteString(tuple)
			args = append(args, rowArgs(i)...)
		}

		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
