// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/models"
)

// newTestRedisStore connects to REDIS_ADDR under a unique key prefix.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	prefix := fmt.Sprintf("setlist-test-%d", time.Now().UnixNano())
	r, err := NewRedisStore(ctx, &config.RedisConfig{Addr: addr, KeyPrefix: prefix})
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() {
		keys, _ := r.client.Keys(ctx, r.prefix+"*").Result()
		if len(keys) > 0 {
			_ = r.client.Del(ctx, keys...).Err()
		}
		_ = r.Close()
	})
	return r
}

func TestKeyPrefix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"setlist", "setlist:"},
		{"setlist:", "setlist:"},
	}
	for _, tt := range tests {
		if got := keyPrefix(tt.in); got != tt.want {
			t.Errorf("keyPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	r := &RedisStore{prefix: "setlist:"}
	if got := r.sourceKey("rules", 7, "abc"); got != "setlist:rules:7:s:abc" {
		t.Errorf("sourceKey() = %q", got)
	}
}

func TestRedisStore_RulesSwap(t *testing.T) {
	r := newTestRedisStore(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if _, err := r.RulesFromSources(ctx, []string{"A"}); !errors.Is(err, ErrNotPublished) {
		t.Fatalf("unpublished store error = %v, want ErrNotPublished", err)
	}
	if _, err := r.EdgesFromSources(ctx, []string{"A"}); !errors.Is(err, ErrNotPublished) {
		t.Fatalf("unpublished store error = %v, want ErrNotPublished", err)
	}

	first := []models.Rule{
		{Source: "A", Target: "B", Confidence: 0.5, Support: 0.25},
		{Source: "A", Target: "C", Confidence: 0.75, Support: 0.5},
	}
	if err := r.PublishRules(ctx, first, at); err != nil {
		t.Fatalf("PublishRules() error = %v", err)
	}
	got, err := r.RulesFromSources(ctx, []string{"A", "Z"})
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(got, func(i, j int) bool { return got[i].Target < got[j].Target })
	if len(got) != 2 || got[1].Confidence != 0.75 || !got[0].CreatedAt.Equal(at) {
		t.Errorf("RulesFromSources() = %+v", got)
	}

	second := []models.Rule{{Source: "X", Target: "Y", Confidence: 1, Support: 1}}
	if err := r.PublishRules(ctx, second, at.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, err = r.RulesFromSources(ctx, []string{"A", "X"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Source != "X" {
		t.Errorf("after swap RulesFromSources() = %+v, want only the new set", got)
	}
}

func TestRedisStore_Edges(t *testing.T) {
	r := newTestRedisStore(t)
	ctx := context.Background()

	edges := []models.SimilarityEdge{
		{Source: "A", Target: "B", Similarity: 0.2},
		{Source: "A", Target: "C", Similarity: 0.9},
	}
	if err := r.PublishEdges(ctx, edges, time.Now()); err != nil {
		t.Fatalf("PublishEdges() error = %v", err)
	}
	got, err := r.EdgesFromSources(ctx, []string{"A"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Target != "C" || got[0].Similarity != 0.9 {
		t.Errorf("EdgesFromSources() = %+v, want C first", got)
	}
}

func TestRedisStore_FailedPublishWithdraws(t *testing.T) {
	tests := []struct {
		name    string
		failAt  int
		flushed bool
	}{
		// Each record queues an HSET and an SADD, so a batch flushes every 500.
		{name: "fails before the first flush", failAt: 10},
		{name: "fails after a flushed batch", failAt: 1200, flushed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRedisStore(t)
			ctx := context.Background()

			served := []models.Rule{{Source: "keep", Target: "me", Confidence: 1, Support: 1}}
			if err := r.PublishRules(ctx, served, time.Now()); err != nil {
				t.Fatal(err)
			}

			rules := make([]models.Rule, 1500)
			for i := range rules {
				rules[i] = models.Rule{Source: fmt.Sprintf("S%04d", i), Target: "T", Confidence: 0.5, Support: 0.5}
			}
			rules[tt.failAt].Confidence = math.NaN()
			if err := r.PublishRules(ctx, rules, time.Now()); err == nil {
				t.Fatal("PublishRules() with an unencodable record should fail")
			}

			failedGen, err := r.client.Get(ctx, r.key(KindRules, "seq")).Int64()
			if err != nil {
				t.Fatal(err)
			}
			failedKeys, err := r.client.Keys(ctx, fmt.Sprintf("%s%s:%d:*", r.prefix, KindRules, failedGen)).Result()
			if err != nil {
				t.Fatal(err)
			}
			if tt.flushed && len(failedKeys) == 0 {
				t.Fatal("expected keys from the flushed batch")
			}

			keys, err := r.client.Keys(ctx, r.prefix+KindRules+":*").Result()
			if err != nil {
				t.Fatal(err)
			}
			for _, k := range keys {
				if k == r.key(KindRules, "seq") {
					continue
				}
				if k == r.key(KindRules, "current") {
					t.Errorf("current pointer %s survived a failed publish", k)
					continue
				}
				ttl, err := r.client.TTL(ctx, k).Result()
				if err != nil {
					t.Fatal(err)
				}
				if ttl <= 0 {
					t.Errorf("key %s TTL = %v, want an expiry", k, ttl)
				}
			}

			if _, err := r.RulesFromSources(ctx, []string{"keep", "S0000"}); !errors.Is(err, ErrNotPublished) {
				t.Errorf("RulesFromSources() error = %v, want ErrNotPublished so reads fall back", err)
			}
		})
	}
}

func TestRedisStore_SeedAndFallback(t *testing.T) {
	r := newTestRedisStore(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	db := &fakeReader{
		rules: []models.Rule{{CreatedAt: at, Source: "A", Target: "db", Confidence: 0.3, Support: 0.3}},
		edges: []models.SimilarityEdge{{CreatedAt: at, Source: "A", Target: "db", Similarity: 0.3}},
	}
	f := NewFallback(r, db, zerolog.Nop())

	rules, err := f.RulesFromSources(ctx, []string{"A"})
	if err != nil || len(rules) != 1 || rules[0].Target != "db" {
		t.Fatalf("before seeding RulesFromSources() = %+v, %v, want the fallback set", rules, err)
	}

	seeded, err := Seed(ctx, r, &fakeSource{rules: db.rules, edges: db.edges})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if len(seeded) != 2 {
		t.Fatalf("Seed() = %v, want both kinds", seeded)
	}
	for _, kind := range []string{KindRules, KindEdges} {
		if ok, err := r.Published(ctx, kind); err != nil || !ok {
			t.Errorf("Published(%s) = %v, %v", kind, ok, err)
		}
	}

	calls := db.calls
	edges, err := f.EdgesFromSources(ctx, []string{"A"})
	if err != nil || len(edges) != 1 || !edges[0].CreatedAt.Equal(at) {
		t.Errorf("after seeding EdgesFromSources() = %+v, %v", edges, err)
	}
	if db.calls != calls {
		t.Error("seeded store should serve without the fallback")
	}

	again, err := Seed(ctx, r, &fakeSource{rules: db.rules, edges: db.edges})
	if err != nil || len(again) != 0 {
		t.Errorf("second Seed() = %v, %v, want no kinds", again, err)
	}
}
