// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package mining

import (
	"context"
	"sort"
)

// Pair is an unordered pair of interned item ids with Lo < Hi.
type Pair struct {
	Lo, Hi uint32
}

// Accumulator holds the counts of one shard or of a whole run.
// It is not safe for concurrent use; each worker owns its own.
type Accumulator struct {
	Transactions int
	ItemCounts   map[string]int
	PairCounts   map[Pair]int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		ItemCounts: make(map[string]int),
		PairCounts: make(map[Pair]int),
	}
}

// Merge adds other's counts into a.
func (a *Accumulator) Merge(other *Accumulator) {
	a.Transactions += other.Transactions
	for item, c := range other.ItemCounts {
		a.ItemCounts[item] += c
	}
	for p, c := range other.PairCounts {
		a.PairCounts[p] += c
	}
}

// CountItems adds one count per distinct item of every transaction to acc.
// Empty item ids are ignored.
func CountItems(ctx context.Context, transactions []Transaction, acc *Accumulator) error {
	seen := make(map[string]struct{})
	for i, tx := range transactions {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		acc.Transactions++

		clear(seen)
		for _, item := range tx.Items {
			if item == "" {
				continue
			}
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
			acc.ItemCounts[item]++
		}
	}
	return nil
}

// CountPairs adds one count per unordered pair of distinct frequent items of
// every transaction to acc. Pairs with an infrequent member are pruned.
func CountPairs(ctx context.Context, transactions []Transaction, vocab *Vocabulary, acc *Accumulator) error {
	var ids []uint32
	for i, tx := range transactions {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		acc.Transactions++

		ids = ids[:0]
		for _, item := range tx.Items {
			id, ok := vocab.ID(item)
			if ok && vocab.frequent.Contains(id) {
				ids = append(ids, id)
			}
		}
		ids = sortUnique(ids)
		if len(ids) < 2 {
			continue
		}

		for x := 0; x < len(ids)-1; x++ {
			for y := x + 1; y < len(ids); y++ {
				acc.PairCounts[Pair{Lo: ids[x], Hi: ids[y]}]++
			}
		}
	}
	return nil
}

func sortUnique(ids []uint32) []uint32 {
	if len(ids) < 2 {
		return ids
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
