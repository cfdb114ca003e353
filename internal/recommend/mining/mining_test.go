// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package mining

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/setlist/internal/models"
)

var fixedTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func findRule(rules []models.Rule, source, target string) (models.Rule, bool) {
	for _, r := range rules {
		if r.Source == source && r.Target == target {
			return r, true
		}
	}
	return models.Rule{}, false
}

func TestMine_PlaylistExample(t *testing.T) {
	txs := []Transaction{
		{CollectionID: "p1", Items: []string{"A", "B", "C"}},
		{CollectionID: "p2", Items: []string{"A", "D"}},
		{CollectionID: "p3", Items: []string{"A", "B"}},
	}

	res, err := Mine(context.Background(), txs, 0.01, Options{CreatedAt: fixedTime})
	if err != nil {
		t.Fatalf("Mine() error = %v", err)
	}

	if res.Transactions != 3 {
		t.Errorf("Transactions = %d, want 3", res.Transactions)
	}
	if res.FrequentItems != 4 {
		t.Errorf("FrequentItems = %d, want 4", res.FrequentItems)
	}

	ab, ok := findRule(res.Rules, "A", "B")
	if !ok {
		t.Fatal("rule A -> B not emitted")
	}
	if math.Abs(ab.Confidence-2.0/3.0) > 1e-12 {
		t.Errorf("A->B confidence = %v, want 2/3", ab.Confidence)
	}
	if math.Abs(ab.Support-2.0/3.0) > 1e-12 {
		t.Errorf("A->B support = %v, want 2/3", ab.Support)
	}

	ba, ok := findRule(res.Rules, "B", "A")
	if !ok || ba.Confidence != 1 {
		t.Errorf("B->A = %+v, want confidence 1", ba)
	}

	if _, ok := findRule(res.Rules, "C", "D"); ok {
		t.Error("C and D never co-occur; no rule expected")
	}
	if !ab.CreatedAt.Equal(fixedTime) {
		t.Errorf("CreatedAt = %v, want %v", ab.CreatedAt, fixedTime)
	}
}

func TestMine_SortedByConfidenceAscending(t *testing.T) {
	txs := []Transaction{
		{Items: []string{"A", "B", "C"}},
		{Items: []string{"A", "D"}},
		{Items: []string{"A", "B"}},
	}
	res, err := Mine(context.Background(), txs, 0, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(res.Rules); i++ {
		prev, cur := res.Rules[i-1], res.Rules[i]
		if prev.Confidence > cur.Confidence {
			t.Fatalf("rules not ascending at %d: %v > %v", i, prev.Confidence, cur.Confidence)
		}
		if prev.Confidence == cur.Confidence && prev.Source > cur.Source {
			t.Fatalf("tie not ordered by source at %d: %s > %s", i, prev.Source, cur.Source)
		}
	}
	if last := res.Rules[len(res.Rules)-1]; last.Confidence != 1 {
		t.Errorf("strongest rule should be last, got %+v", last)
	}
}

func TestMine_SupportThresholdIsStrict(t *testing.T) {
	// N = 4, minSupport = 0.5 -> items need count > 2.
	txs := []Transaction{
		{Items: []string{"A", "B"}},
		{Items: []string{"A", "B"}},
		{Items: []string{"A", "C"}},
		{Items: []string{"C"}},
	}
	res, err := Mine(context.Background(), txs, 0.5, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.FrequentItems != 1 {
		t.Errorf("FrequentItems = %d, want 1 (only A has count 3 > 2)", res.FrequentItems)
	}
	if len(res.Rules) != 0 {
		t.Errorf("pairs with an infrequent member must be pruned, got %+v", res.Rules)
	}
}

func TestMine_DuplicatesCountOnce(t *testing.T) {
	txs := []Transaction{
		{Items: []string{"A", "A", "B", "B"}},
		{Items: []string{"A"}},
	}
	res, err := Mine(context.Background(), txs, 0, Options{})
	if err != nil {
		t.Fatal(err)
	}
	ab, ok := findRule(res.Rules, "A", "B")
	if !ok {
		t.Fatal("A -> B missing")
	}
	if ab.Confidence != 0.5 || ab.Support != 0.5 {
		t.Errorf("A->B = %+v, want confidence 0.5 support 0.5", ab)
	}
}

func TestMine_SingleItemTransactionsYieldNoRules(t *testing.T) {
	txs := []Transaction{{Items: []string{"A"}}, {Items: []string{"B"}}, {Items: nil}}
	res, err := Mine(context.Background(), txs, 0, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rules) != 0 {
		t.Errorf("got %d rules, want 0", len(res.Rules))
	}
}

func TestMine_Errors(t *testing.T) {
	tests := []struct {
		name    string
		txs     []Transaction
		support float64
		want    error
	}{
		{"no transactions", nil, 0.01, ErrNoTransactions},
		{"negative support", []Transaction{{Items: []string{"A"}}}, -0.1, ErrInvalidSupport},
		{"support above one", []Transaction{{Items: []string{"A"}}}, 1.5, ErrInvalidSupport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Mine(context.Background(), tt.txs, tt.support, Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Mine() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Mine(ctx, []Transaction{{Items: []string{"A", "B"}}}, 0, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Mine() error = %v, want context.Canceled", err)
	}
}

func randomTransactions(seed int64, n, vocab, maxLen int) []Transaction {
	rng := rand.New(rand.NewSource(seed))
	txs := make([]Transaction, n)
	for i := range txs {
		items := make([]string, 1+rng.Intn(maxLen))
		for j := range items {
			items[j] = fmt.Sprintf("t%03d", rng.Intn(vocab))
		}
		txs[i] = Transaction{CollectionID: fmt.Sprintf("p%d", i), Items: items}
	}
	return txs
}

func TestMine_Properties(t *testing.T) {
	txs := randomTransactions(7, 400, 60, 12)

	res, err := Mine(context.Background(), txs, 0.02, Options{CreatedAt: fixedTime, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rules) == 0 {
		t.Fatal("expected some rules from random data")
	}
	for _, r := range res.Rules {
		if r.Support < 0 || r.Support > 1 || r.Confidence < 0 || r.Confidence > 1 {
			t.Fatalf("rule out of range: %+v", r)
		}
		if r.Source == r.Target {
			t.Fatalf("self rule: %+v", r)
		}
	}

	// Re-mining with a different shard layout yields the identical rule set.
	for _, workers := range []int{2, 3, 8} {
		again, err := Mine(context.Background(), txs, 0.02, Options{CreatedAt: fixedTime, Workers: workers})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(res.Rules, again.Rules) {
			t.Fatalf("workers=%d produced a different rule set", workers)
		}
	}
}

func TestVocabulary(t *testing.T) {
	v := NewVocabulary(map[string]int{"b": 3, "a": 1, "c": 2}, 1.5)

	if id, ok := v.ID("a"); !ok || id != 0 {
		t.Errorf("ID(a) = %d, %v; want 0 (sorted interning)", id, ok)
	}
	if v.IsFrequent("a") {
		t.Error("a (count 1) should not be frequent at threshold 1.5")
	}
	if got := v.FrequentItems(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("FrequentItems() = %v", got)
	}
	if v.FrequentCount() != 2 {
		t.Errorf("FrequentCount() = %d", v.FrequentCount())
	}
}

func TestAccumulatorMerge(t *testing.T) {
	a := NewAccumulator()
	b := NewAccumulator()
	ctx := context.Background()

	if err := CountItems(ctx, []Transaction{{Items: []string{"x", "y"}}}, a); err != nil {
		t.Fatal(err)
	}
	if err := CountItems(ctx, []Transaction{{Items: []string{"x"}}}, b); err != nil {
		t.Fatal(err)
	}
	a.Merge(b)

	if a.Transactions != 2 || a.ItemCounts["x"] != 2 || a.ItemCounts["y"] != 1 {
		t.Errorf("merged accumulator = %+v", a)
	}
}

func TestSplit(t *testing.T) {
	txs := make([]Transaction, 10)
	for _, parts := range []int{1, 3, 4, 10, 20} {
		shards := split(txs, parts)
		total := 0
		for _, s := range shards {
			total += len(s)
		}
		if total != 10 {
			t.Errorf("split(10, %d) covers %d transactions", parts, total)
		}
		if len(shards) > parts {
			t.Errorf("split(10, %d) produced %d shards", parts, len(shards))
		}
	}
}
