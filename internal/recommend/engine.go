// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/metrics"
	"github.com/tomtom215/setlist/internal/models"
	"github.com/tomtom215/setlist/internal/recommend/mining"
	"github.com/tomtom215/setlist/internal/recommend/similarity"
	"github.com/tomtom215/setlist/internal/recommend/source"
	"github.com/tomtom215/setlist/internal/recommend/storage"
)

// Batch job names.
const (
	JobMine       = "mine"
	JobSimilarity = "similarity"
)

// Run outcomes.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailure = "failure"
)

// ErrJobRunning is returned when a job is triggered while it is still running.
var ErrJobRunning = errors.New("job already running")

// Store is the primary store the batch jobs replace and record into.
type Store interface {
	ReplaceRules(ctx context.Context, rules []models.Rule) error
	ReplaceSimilarityEdges(ctx context.Context, edges []models.SimilarityEdge) error
	RecordRun(ctx context.Context, run *models.MiningRun) error
}

// Publisher receives a copy of every completed output. Publish failures
// degrade the run to partial but never fail it.
type Publisher interface {
	Name() string
	PublishRules(ctx context.Context, rules []models.Rule, createdAt time.Time) error
	PublishEdges(ctx context.Context, edges []models.SimilarityEdge, createdAt time.Time) error
}

// Snapshotter archives completed outputs.
type Snapshotter interface {
	Save(ctx context.Context, job string, data interface{}, meta storage.SnapshotMetadata) (*storage.SnapshotMetadata, error)
	Prune(ctx context.Context, job string, keep int) (int, error)
}

// Engine runs the offline recommendation jobs: association rule mining and
// similarity index building. Each job fully replaces its output in the
// primary store in one transaction. Input and configuration errors are
// detected before anything is written.
//
// Engine is safe for concurrent use; a job cannot overlap with itself.
type Engine struct {
	cfg      *config.RecommendConfig
	store    Store
	txs      source.TransactionSource
	features source.FeatureSource
	logger   zerolog.Logger

	publisher Publisher
	snapshots Snapshotter

	locks map[string]*sync.Mutex

	statusMu sync.RWMutex
	status   map[string]JobStatus
}

// JobStatus is the state of one batch job.
type JobStatus struct {
	Job        string    `json:"job"`
	Running    bool      `json:"running"`
	LastRunID  string    `json:"last_run_id,omitempty"`
	LastStatus string    `json:"last_status,omitempty"`
	LastRunAt  time.Time `json:"last_run_at"`
	Records    int       `json:"records"`
	DurationMS int64     `json:"duration_ms"`
	LastError  string    `json:"last_error,omitempty"`
}

// RunReport summarizes a finished job.
type RunReport struct {
	RunID      string        `json:"run_id"`
	Job        string        `json:"job"`
	Status     string        `json:"status"`
	Records    int           `json:"records"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
	Detail     string        `json:"detail,omitempty"`
	Skipped    int           `json:"skipped,omitempty"`
	Published  bool          `json:"published"`
	Snapshot   int           `json:"snapshot_version,omitempty"`
	PublishErr string        `json:"publish_error,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher adds a secondary serving store.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithSnapshots archives every completed output.
func WithSnapshots(s Snapshotter) Option {
	return func(e *Engine) { e.snapshots = s }
}

// NewEngine creates a batch engine.
func NewEngine(cfg *config.RecommendConfig, store Store, txs source.TransactionSource, features source.FeatureSource, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		store:    store,
		txs:      txs,
		features: features,
		logger:   logger.With().Str("component", "recommend_engine").Logger(),
		locks: map[string]*sync.Mutex{
			JobMine:       {},
			JobSimilarity: {},
		},
		status: map[string]JobStatus{
			JobMine:       {Job: JobMine},
			JobSimilarity: {Job: JobSimilarity},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MineRules mines association rules from the transaction source and replaces
// the stored rule set.
func (e *Engine) MineRules(ctx context.Context) (*RunReport, error) {
	return e.run(ctx, JobMine, func(ctx context.Context, report *RunReport) error {
		txs, err := e.txs.Transactions(ctx)
		if err != nil {
			return err
		}

		res, err := mining.Mine(ctx, txs, e.cfg.MinSupport, mining.Options{
			Workers:   e.cfg.Workers,
			CreatedAt: report.CreatedAt,
		})
		if err != nil {
			return err
		}

		metrics.MinedTransactions.Set(float64(res.Transactions))
		metrics.MinedFrequentItems.Set(float64(res.FrequentItems))
		logging.Ctx(ctx).Info().
			Str("source", e.txs.Name()).
			Int("transactions", res.Transactions).
			Int("frequent_items", res.FrequentItems).
			Int("frequent_pairs", res.FrequentPairs).
			Int("rules", len(res.Rules)).
			Msg("Mined association rules")

		if err := e.store.ReplaceRules(ctx, res.Rules); err != nil {
			return fmt.Errorf("replace rules: %w", err)
		}
		metrics.MinedRules.Set(float64(len(res.Rules)))
		report.Records = len(res.Rules)
		report.Detail = fmt.Sprintf("transactions=%d frequent_items=%d", res.Transactions, res.FrequentItems)

		if e.publisher != nil {
			e.published(report, e.publisher.PublishRules(ctx, res.Rules, report.CreatedAt))
		}
		e.snapshot(ctx, report, storage.RuleSnapshot{Rules: res.Rules})
		return nil
	})
}

// BuildSimilarity builds the nearest-neighbor index from the feature source
// and replaces the stored similarity edges.
func (e *Engine) BuildSimilarity(ctx context.Context) (*RunReport, error) {
	return e.run(ctx, JobSimilarity, func(ctx context.Context, report *RunReport) error {
		vectors, err := e.features.Features(ctx)
		if err != nil {
			return err
		}

		idx, err := similarity.Build(ctx, vectors, e.cfg.Neighbors, similarity.Options{Workers: e.cfg.Workers})
		if err != nil {
			return err
		}
		edges := idx.Edges(report.CreatedAt)

		dropped := len(idx.Dropped())
		metrics.SimilarityDroppedItems.Set(float64(dropped))
		if dropped > 0 {
			logging.Ctx(ctx).Warn().Int("dropped", dropped).Msg("Dropped items without usable features")
		}
		if dups := idx.Duplicates(); len(dups) > 0 {
			logging.Ctx(ctx).Warn().Int("duplicates", len(dups)).Strs("sample", head(dups, 5)).Msg("Duplicate feature rows, last row kept")
		}
		logging.Ctx(ctx).Info().
			Str("source", e.features.Name()).
			Int("items", idx.Len()).
			Int("dimension", idx.Dim()).
			Int("edges", len(edges)).
			Msg("Built similarity index")

		if err := e.store.ReplaceSimilarityEdges(ctx, edges); err != nil {
			return fmt.Errorf("replace similarity edges: %w", err)
		}
		metrics.SimilarityEdges.Set(float64(len(edges)))
		report.Records = len(edges)
		report.Skipped = dropped
		report.Detail = fmt.Sprintf("items=%d dropped=%d", idx.Len(), dropped)

		if e.publisher != nil {
			e.published(report, e.publisher.PublishEdges(ctx, edges, report.CreatedAt))
		}
		e.snapshot(ctx, report, storage.EdgeSnapshot{Edges: edges})
		return nil
	})
}

// Train runs both jobs. A failing job does not prevent the other from
// running; the errors are joined.
func (e *Engine) Train(ctx context.Context) ([]*RunReport, error) {
	var reports []*RunReport
	var errs []error
	for _, job := range []func(context.Context) (*RunReport, error){e.MineRules, e.BuildSimilarity} {
		report, err := job(ctx)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// RunJob runs a job by name.
func (e *Engine) RunJob(ctx context.Context, job string) (*RunReport, error) {
	switch job {
	case JobMine:
		return e.MineRules(ctx)
	case JobSimilarity:
		return e.BuildSimilarity(ctx)
	default:
		return nil, fmt.Errorf("unknown job %q", job)
	}
}

// Status returns the state of every job.
func (e *Engine) Status() []JobStatus {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return []JobStatus{e.status[JobMine], e.status[JobSimilarity]}
}

// run wraps a job body with locking, timeout, run bookkeeping and metrics.
func (e *Engine) run(ctx context.Context, job string, body func(context.Context, *RunReport) error) (*RunReport, error) {
	lock := e.locks[job]
	if !lock.TryLock() {
		return nil, fmt.Errorf("%s: %w", job, ErrJobRunning)
	}
	defer lock.Unlock()

	report := &RunReport{
		RunID:     uuid.New().String(),
		Job:       job,
		Status:    StatusSuccess,
		CreatedAt: time.Now().UTC(),
	}
	ctx = logging.ContextWithRunID(ctx, report.RunID)
	if e.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RunTimeout)
		defer cancel()
	}

	e.setRunning(job, true)
	logging.Ctx(ctx).Info().Str("job", job).Msg("Starting batch job")

	start := time.Now()
	err := body(ctx, report)
	report.Duration = time.Since(start)

	if err != nil {
		report.Status = StatusFailure
		report.Detail = err.Error()
		logging.Ctx(ctx).Error().Err(err).Str("job", job).Msg("Batch job failed")
	} else {
		logging.Ctx(ctx).Info().
			Str("job", job).
			Str("status", report.Status).
			Int("records", report.Records).
			Dur("duration", report.Duration).
			Msg("Batch job complete")
	}

	metrics.RecordBatchRun(job, report.Status, report.Duration)
	e.record(ctx, report)
	e.finish(report, err)

	if err != nil {
		return report, fmt.Errorf("%s: %w", job, err)
	}
	return report, nil
}

func (e *Engine) published(report *RunReport, err error) {
	if err != nil {
		report.Status = StatusPartial
		report.PublishErr = err.Error()
		e.logger.Warn().Err(err).Str("job", report.Job).Str("publisher", e.publisher.Name()).
			Msg("Publishing to secondary store failed")
		return
	}
	report.Published = true
}

func (e *Engine) snapshot(ctx context.Context, report *RunReport, data interface{}) {
	if e.snapshots == nil {
		return
	}
	meta, err := e.snapshots.Save(ctx, report.Job, data, storage.SnapshotMetadata{
		CreatedAt:  report.CreatedAt,
		Records:    report.Records,
		DurationMS: time.Since(report.CreatedAt).Milliseconds(),
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("job", report.Job).Msg("Failed to archive run snapshot")
		return
	}
	report.Snapshot = meta.Version

	if keep := e.cfg.SnapshotRetention; keep > 0 {
		if _, err := e.snapshots.Prune(ctx, report.Job, keep); err != nil {
			e.logger.Warn().Err(err).Str("job", report.Job).Msg("Failed to prune run snapshots")
		}
	}
}

// record stores the run outcome. A cancelled job context still records.
func (e *Engine) record(ctx context.Context, report *RunReport) {
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	run := &models.MiningRun{
		ID:         report.RunID,
		Job:        report.Job,
		StartedAt:  report.CreatedAt,
		FinishedAt: report.CreatedAt.Add(report.Duration),
		Status:     report.Status,
		Records:    report.Records,
		Detail:     report.Detail,
	}
	if err := e.store.RecordRun(recordCtx, run); err != nil {
		e.logger.Warn().Err(err).Str("job", report.Job).Msg("Failed to record batch run")
	}
}

func (e *Engine) setRunning(job string, running bool) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	st := e.status[job]
	st.Running = running
	e.status[job] = st
}

func (e *Engine) finish(report *RunReport, err error) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	st := JobStatus{
		Job:        report.Job,
		LastRunID:  report.RunID,
		LastStatus: report.Status,
		LastRunAt:  report.CreatedAt,
		Records:    report.Records,
		DurationMS: report.Duration.Milliseconds(),
	}
	if err != nil {
		st.LastError = err.Error()
	}
	e.status[report.Job] = st
}

func head(ids []string, n int) []string {
	if len(ids) > n {
		return ids[:n]
	}
	return ids
}
