// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package sync

import (
	"testing"
	"time"
)

func TestOpenPageCache(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		ttl     time.Duration
		wantNil bool
	}{
		{"in memory", func(*testing.T) string { return "" }, time.Hour, false},
		{"on disk", func(t *testing.T) string { return t.TempDir() }, time.Hour, false},
		{"disabled", func(*testing.T) string { return CacheDisabled }, time.Hour, true},
		{"zero ttl", func(*testing.T) string { return "" }, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := OpenPageCache(tt.path(t), tt.ttl)
			if err != nil {
				t.Fatalf("OpenPageCache() error = %v", err)
			}
			t.Cleanup(func() { _ = c.Close() })
			if (c == nil) != tt.wantNil {
				t.Errorf("cache = %v, wantNil %v", c, tt.wantNil)
			}
		})
	}
}

func TestPageCache_SetGetDelete(t *testing.T) {
	c, err := OpenPageCache("", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	if _, ok := c.Get("k"); ok {
		t.Error("empty cache should miss")
	}
	if err := c.Set("k", []byte(`{"page":{}}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	body, ok := c.Get("k")
	if !ok || string(body) != `{"page":{}}` {
		t.Errorf("Get() = %q, %v", body, ok)
	}
	if err := c.Delete("k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("deleted key should miss")
	}
}

func TestPageCache_NilIsNoop(t *testing.T) {
	var c *PageCache
	if err := c.Set("k", []byte("v")); err != nil {
		t.Error(err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("nil cache should never hit")
	}
	if err := c.Delete("k"); err != nil {
		t.Error(err)
	}
	if err := c.Close(); err != nil {
		t.Error(err)
	}
}

func TestCacheKey(t *testing.T) {
	a := cacheKey("https://app.ticketmaster.com/discovery/v2/events.json?apikey=one&keyword=x&page=0")
	b := cacheKey("https://app.ticketmaster.com/discovery/v2/events.json?page=0&keyword=x&apikey=two")
	if a != b {
		t.Errorf("keys differ by api key: %q vs %q", a, b)
	}
	if a != "https://app.ticketmaster.com/discovery/v2/events.json?keyword=x&page=0" {
		t.Errorf("cacheKey() = %q", a)
	}
}
