// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package mining derives directional association rules from playlist
// co-occurrence.
//
// A run has two counting passes over the transactions. The first counts
// every distinct item once per transaction and keeps the items whose count
// strictly exceeds minSupport * N. The second counts unordered pairs whose
// members are both frequent. Every counted pair {s, t} then yields the rules
// s -> t and t -> s with
//
//	support    = count(s, t) / N
//	confidence = count(s, t) / count(source)
//
// Rules are returned sorted by confidence ascending (ties by source, then
// target). Callers wanting the strongest rules first read from the tail.
//
// Both passes are sharded over a worker pool. Each worker fills a private
// Accumulator and the shards are merged afterwards, so no counter is shared
// between goroutines.
package mining

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/setlist/internal/models"
)

var (
	// ErrNoTransactions is returned when there is nothing to mine. The support
	// threshold is undefined without transactions.
	ErrNoTransactions = errors.New("mining: no transactions")

	// ErrInvalidSupport is returned for a minimum support outside [0, 1].
	ErrInvalidSupport = errors.New("mining: minimum support must be within [0, 1]")
)

// cancelCheckInterval is how many transactions a worker processes between
// context checks.
const cancelCheckInterval = 1024

// Transaction is the set of items in one collection (playlist).
// Duplicate items count once.
type Transaction struct {
	CollectionID string
	Items        []string
}

// Options tunes a mining run.
type Options struct {
	// Workers bounds the counting goroutines (0 = runtime.NumCPU()).
	Workers int

	// CreatedAt stamps every emitted rule (zero = time.Now().UTC()).
	CreatedAt time.Time
}

// Result is the output of a mining run.
type Result struct {
	Rules         []models.Rule
	Transactions  int
	FrequentItems int
	FrequentPairs int
}

// Mine counts frequent items and pairs across transactions and derives the
// association rules.
func Mine(ctx context.Context, transactions []Transaction, minSupport float64, opts Options) (*Result, error) {
	n := len(transactions)
	if n <= 0 {
		return nil, ErrNoTransactions
	}
	if minSupport < 0 || minSupport > 1 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidSupport, minSupport)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	createdAt := opts.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	shards := split(transactions, workers)

	itemAcc, err := countSharded(ctx, shards, func(ctx context.Context, txs []Transaction, acc *Accumulator) error {
		return CountItems(ctx, txs, acc)
	})
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}

	vocab := NewVocabulary(itemAcc.ItemCounts, minSupport*float64(n))

	pairAcc, err := countSharded(ctx, shards, func(ctx context.Context, txs []Transaction, acc *Accumulator) error {
		return CountPairs(ctx, txs, vocab, acc)
	})
	if err != nil {
		return nil, fmt.Errorf("count pairs: %w", err)
	}
	itemAcc.PairCounts = pairAcc.PairCounts

	return &Result{
		Rules:         Rules(itemAcc, vocab, createdAt),
		Transactions:  n,
		FrequentItems: vocab.FrequentCount(),
		FrequentPairs: len(itemAcc.PairCounts),
	}, nil
}

// countSharded runs count over every shard with a private accumulator each,
// then merges the shards in order.
func countSharded(ctx context.Context, shards [][]Transaction, count func(context.Context, []Transaction, *Accumulator) error) (*Accumulator, error) {
	partials := make([]*Accumulator, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		partials[i] = NewAccumulator()
		acc := partials[i]
		g.Go(func() error {
			return count(gctx, shard, acc)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := NewAccumulator()
	for _, p := range partials {
		merged.Merge(p)
	}
	return merged, nil
}

// split cuts transactions into at most parts contiguous shards.
func split(transactions []Transaction, parts int) [][]Transaction {
	if parts > len(transactions) {
		parts = len(transactions)
	}
	size := (len(transactions) + parts - 1) / parts
	shards := make([][]Transaction, 0, parts)
	for start := 0; start < len(transactions); start += size {
		end := start + size
		if end > len(transactions) {
			end = len(transactions)
		}
		shards = append(shards, transactions[start:end])
	}
	return shards
}

// Rules emits s -> t for every counted pair and both of its members, sorted
// by confidence ascending, then source, then target.
func Rules(acc *Accumulator, vocab *Vocabulary, createdAt time.Time) []models.Rule {
	if acc.Transactions <= 0 {
		return nil
	}
	n := float64(acc.Transactions)

	rules := make([]models.Rule, 0, 2*len(acc.PairCounts))
	for p, count := range acc.PairCounts {
		a, b := vocab.Item(p.Lo), vocab.Item(p.Hi)
		support := float64(count) / n

		for _, dir := range [2][2]string{{a, b}, {b, a}} {
			source, target := dir[0], dir[1]
			sourceCount := acc.ItemCounts[source]
			if sourceCount == 0 {
				continue
			}
			rules = append(rules, models.Rule{
				CreatedAt:  createdAt,
				Source:     source,
				Target:     target,
				Confidence: float64(count) / float64(sourceCount),
				Support:    support,
			})
		}
	}

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Confidence != rules[j].Confidence {
			return rules[i].Confidence < rules[j].Confidence
		}
		if rules[i].Source != rules[j].Source {
			return rules[i].Source < rules[j].Source
		}
		return rules[i].Target < rules[j].Target
	})
	return rules
}

// Vocabulary interns item ids to dense uint32 ids and records the frequent set.
// It is read-only after construction and safe for concurrent use.
type Vocabulary struct {
	items    []string
	ids      map[string]uint32
	frequent *roaring.Bitmap
}

// NewVocabulary interns every counted item in sorted order and marks the items
// whose count strictly exceeds threshold as frequent.
func NewVocabulary(itemCounts map[string]int, threshold float64) *Vocabulary {
	items := make([]string, 0, len(itemCounts))
	for item := range itemCounts {
		items = append(items, item)
	}
	sort.Strings(items)

	v := &Vocabulary{
		items:    items,
		ids:      make(map[string]uint32, len(items)),
		frequent: roaring.New(),
	}
	for i, item := range items {
		id := uint32(i) //nolint:gosec // item count is bounded well below 2^32
		v.ids[item] = id
		if float64(itemCounts[item]) > threshold {
			v.frequent.Add(id)
		}
	}
	v.frequent.RunOptimize()
	return v
}

// ID returns the interned id of item.
func (v *Vocabulary) ID(item string) (uint32, bool) {
	id, ok := v.ids[item]
	return id, ok
}

// Item returns the item for an interned id.
func (v *Vocabulary) Item(id uint32) string {
	return v.items[id]
}

// IsFrequent reports whether item passed the support threshold.
func (v *Vocabulary) IsFrequent(item string) bool {
	id, ok := v.ids[item]
	return ok && v.frequent.Contains(id)
}

// FrequentCount returns the number of frequent items.
func (v *Vocabulary) FrequentCount() int {
	return int(v.frequent.GetCardinality())
}

// FrequentItems returns the frequent items in sorted order.
func (v *Vocabulary) FrequentItems() []string {
	out := make([]string, 0, v.frequent.GetCardinality())
	it := v.frequent.Iterator()
	for it.HasNext() {
		out = append(out, v.items[it.Next()])
	}
	return out
}
