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
	"io"
	"time"

	"github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/metrics"
)

// Kind classifies a persistence failure.
type Kind int

const (
	// KindFatal errors are not retried.
	KindFatal Kind = iota

	// KindTransientConflict is a write-write conflict between concurrent
	// transactions. The operation may succeed if retried.
	KindTransientConflict

	// KindNotFound means the requested row does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransientConflict:
		return "transient_conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "fatal"
	}
}

// ErrNotFound is returned by single-row lookups with no match.
var ErrNotFound = errors.New("not found")

// Error is a classified persistence error.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps an error to a Kind using the driver's typed errors.
// Context cancellation and deadlines are fatal: the caller gave up.
func Classify(err error) Kind {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Kind
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindFatal
	}
	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) && duckErr.Type == duckdb.ErrorTypeTransaction {
		return KindTransientConflict
	}
	return KindFatal
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == KindTransientConflict
}

// classify wraps err as *Error for op, recording the failure.
func classify(op, table string, err error) error {
	if err == nil {
		return nil
	}
	kind := Classify(err)
	metrics.DBQueryErrors.WithLabelValues(op, table, kind.String()).Inc()
	return &Error{Op: op, Kind: kind, Err: err}
}

// withRetry runs fn until it succeeds, fails with a non-transient error, or
// exhausts the retry budget. Delays double from db.retryDelay.
func (db *DB) withRetry(ctx context.Context, op, table string, fn func(context.Context) error) error {
	delay := db.retryDelay
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := fn(ctx)
		metrics.RecordDBQuery(op, table, time.Since(start))
		if err == nil {
			return nil
		}
		if Classify(err) != KindTransientConflict || attempt >= db.maxRetries {
			return classify(op, table, err)
		}

		metrics.DBRetries.WithLabelValues(op).Inc()
		logging.Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt+1).
			Dur("retry_delay", delay).
			Msg("Transaction conflict, retrying")

		select {
		case <-ctx.Done():
			return classify(op, table, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// closeQuietly closes a resource and explicitly ignores any error
// Use this for cleanup operations in error paths where Close() errors are not actionable
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// rollbackQuietly rolls back tx after a failed write.
func rollbackQuietly(tx *sql.Tx, cause error) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Error().
			Err(err).
			AnErr("original_error", cause).
			Msg("Transaction rollback failed")
	}
}
