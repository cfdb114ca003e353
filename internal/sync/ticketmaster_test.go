// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/setlist/internal/config"
)

func testTicketmasterConfig(baseURL string) *config.TicketmasterConfig {
	return &config.TicketmasterConfig{
		APIKey:            "secret",
		BaseURL:           baseURL,
		Latitude:          39.9526,
		Longitude:         -75.1652,
		GeohashPrecision:  7,
		Radius:            30,
		PageSize:          20,
		SegmentID:         "KZFzniwnSyZfZ7v7nJ",
		RequestsPerSecond: 1000,
		MaxRetries:        3,
		BaseBackoff:       time.Millisecond,
		Timeout:           5 * time.Second,
	}
}

func newTestClient(t *testing.T, handler http.Handler, cache *PageCache) *TicketmasterClient {
	t.Helper()
	return newTestClientWithConfig(t, handler, cache, nil)
}

func newTestClientWithConfig(t *testing.T, handler http.Handler, cache *PageCache, tune func(*config.TicketmasterConfig)) *TicketmasterClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := testTicketmasterConfig(server.URL)
	if tune != nil {
		tune(cfg)
	}
	c, err := NewTicketmasterClient(cfg, time.UTC, cache, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTicketmasterClient() error = %v", err)
	}
	return c
}

// requestLog records when each upstream request arrived.
type requestLog struct {
	mu    gosync.Mutex
	times []time.Time
}

func (l *requestLog) add() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.times = append(l.times, time.Now())
	return len(l.times)
}

func (l *requestLog) gaps() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]time.Duration, 0, len(l.times))
	for i := 1; i < len(l.times); i++ {
		out = append(out, l.times[i].Sub(l.times[i-1]))
	}
	return out
}

func eventJSON(id, artist string) string {
	return fmt.Sprintf(`{"id":%q,"name":"%s live","dates":{"start":{"localDate":"2026-12-01"}},`+
		`"_embedded":{"venues":[{"name":"Venue"}],"attractions":[{"name":%q,"type":"attraction"}]}}`, id, artist, artist)
}

func pageJSON(total int, next string, events ...string) string {
	links := `{}`
	if next != "" {
		links = fmt.Sprintf(`{"next":{"href":%q,"templated":true}}`, next)
	}
	return fmt.Sprintf(`{"_embedded":{"events":[%s]},"_links":%s,"page":{"size":20,"totalElements":%d,"totalPages":2,"number":0}}`,
		strings.Join(events, ","), links, total)
}

func TestNewTicketmasterClient_InvalidBaseURL(t *testing.T) {
	for _, base := range []string{"", "app.ticketmaster.com", "://bad"} {
		if _, err := NewTicketmasterClient(testTicketmasterConfig(base), nil, nil, zerolog.Nop()); err == nil {
			t.Errorf("NewTicketmasterClient(%q) should fail", base)
		}
	}
}

func TestSearchEvents_QueryParameters(t *testing.T) {
	var got atomic.Value
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Query())
		fmt.Fprint(w, pageJSON(0, ""))
	}), nil)

	res := c.SearchEvents(context.Background(), "Japanese Breakfast")
	if res.Partial || res.Err != nil || len(res.Events) != 0 || res.Pages != 1 {
		t.Fatalf("SearchEvents() = %+v", res)
	}

	q := got.Load().(url.Values)
	want := map[string]string{
		"apikey":    "secret",
		"geoPoint":  geohash.EncodeWithPrecision(39.9526, -75.1652, 7),
		"radius":    "30",
		"unit":      "miles",
		"page":      "0",
		"size":      "20",
		"keyword":   "Japanese Breakfast",
		"segmentId": "KZFzniwnSyZfZ7v7nJ",
	}
	for k, v := range want {
		if len(q[k]) != 1 || q[k][0] != v {
			t.Errorf("query %s = %v, want %q", k, q[k], v)
		}
	}
	if len(want["geoPoint"]) != 7 {
		t.Errorf("geoPoint %q should have 7 characters", want["geoPoint"])
	}
}

func TestSearchEvents_FollowsNextLinks(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != eventsPath {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("apikey") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("page") {
		case "0":
			fmt.Fprint(w, pageJSON(3, eventsPath+"?page=1&size=20&keyword=x{&sort}", eventJSON("e1", "A"), eventJSON("e2", "B")))
		case "1":
			fmt.Fprint(w, pageJSON(3, "", eventJSON("e3", "C")))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}), nil)

	res := c.SearchEvents(context.Background(), "x")
	if res.Partial || res.Err != nil {
		t.Fatalf("unexpected partial result: %v", res.Err)
	}
	if res.Pages != 2 || len(res.Events) != 3 || requests.Load() != 2 {
		t.Errorf("pages = %d, events = %d, requests = %d", res.Pages, len(res.Events), requests.Load())
	}
	if res.Events[2].ID != "e3" {
		t.Errorf("last event = %+v", res.Events[2])
	}
}

func TestSearchEvents_SkipsBadEventsOnly(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageJSON(3, "",
			eventJSON("ok", "A"),
			`{"id":"tour","_embedded":{"attractions":[{"name":"Tour","type":"venue"}]}}`,
			`{"id":"bad","images":"oops"}`,
		))
	}), nil)

	res := c.SearchEvents(context.Background(), "x")
	if res.Partial || len(res.Events) != 1 || res.Events[0].ID != "ok" {
		t.Errorf("SearchEvents() = %+v", res)
	}
}

func TestSearchEvents_Retries(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		status   int
		body     string
		want     int // events
		partial  bool
		requests int32
	}{
		{name: "rate limited then ok", failures: 2, status: http.StatusTooManyRequests, want: 1, requests: 3},
		{name: "server error then ok", failures: 1, status: http.StatusBadGateway, want: 1, requests: 2},
		{name: "garbage body then ok", failures: 1, status: http.StatusOK, body: "<html>", want: 1, requests: 2},
		{name: "rate limit exhausted", failures: 10, status: http.StatusTooManyRequests, partial: true, requests: 4},
		{name: "unauthorized is terminal", failures: 10, status: http.StatusUnauthorized, partial: true, requests: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests atomic.Int32
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if int(requests.Add(1)) <= tt.failures {
					w.WriteHeader(tt.status)
					fmt.Fprint(w, tt.body)
					return
				}
				fmt.Fprint(w, pageJSON(1, "", eventJSON("e1", "A")))
			}), nil)

			res := c.SearchEvents(context.Background(), "x")
			if res.Partial != tt.partial || len(res.Events) != tt.want {
				t.Errorf("SearchEvents() partial = %v events = %d, want %v %d (err %v)", res.Partial, len(res.Events), tt.partial, tt.want, res.Err)
			}
			if tt.partial && res.Err == nil {
				t.Error("partial result must carry the cause")
			}
			if got := requests.Load(); got != tt.requests {
				t.Errorf("requests = %d, want %d", got, tt.requests)
			}
		})
	}
}

func TestSearchEvents_PartialKeepsEarlierPages(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, pageJSON(2, eventsPath+"?page=1", eventJSON("e1", "A")))
	}), nil)

	res := c.SearchEvents(context.Background(), "x")
	if !res.Partial || len(res.Events) != 1 || res.Pages != 1 {
		t.Errorf("SearchEvents() = %+v", res)
	}
	var statusErr *StatusError
	if !errors.As(res.Err, &statusErr) || statusErr.Code != http.StatusServiceUnavailable {
		t.Errorf("Err = %v, want 503 StatusError", res.Err)
	}
}

func TestSearchEvents_ContextCancelled(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}), nil)
	c.baseBackoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := c.SearchEvents(ctx, "x")
	if !res.Partial || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("SearchEvents() = %+v", res)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff must stop when the context ends")
	}
}

func TestSearchEvents_Cache(t *testing.T) {
	cache, err := OpenPageCache("", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	var requests atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, pageJSON(1, "", eventJSON("e1", "A")))
	}), cache)

	for i := 0; i < 3; i++ {
		if res := c.SearchEvents(context.Background(), "x"); len(res.Events) != 1 {
			t.Fatalf("search %d = %+v", i, res)
		}
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1 (later searches served from cache)", requests.Load())
	}
	if res := c.SearchEvents(context.Background(), "y"); len(res.Events) != 1 || requests.Load() != 2 {
		t.Errorf("a different keyword must miss the cache: requests = %d", requests.Load())
	}
}

func TestSearchByLocation_SinglePage(t *testing.T) {
	var requests atomic.Int32
	var geoPoint, radius atomic.Value
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		geoPoint.Store(r.URL.Query().Get("geoPoint"))
		radius.Store(r.URL.Query().Get("radius"))
		fmt.Fprint(w, pageJSON(40, eventsPath+"?page=1", eventJSON("e1", "A")))
	}), nil)

	res := c.SearchByLocation(context.Background(), 40.7128, -74.0060, 50, "")
	if res.Partial || res.Pages != 1 || len(res.Events) != 1 || requests.Load() != 1 {
		t.Errorf("SearchByLocation() = %+v, requests = %d", res, requests.Load())
	}
	if got := geoPoint.Load().(string); got != geohash.EncodeWithPrecision(40.7128, -74.0060, 7) {
		t.Errorf("geoPoint = %q", got)
	}
	if radius.Load().(string) != "50" {
		t.Errorf("radius = %v", radius.Load())
	}
}

func TestSearchEvents_OpenCircuitReturnsImmediately(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}), nil)

	for i := 0; i < 11; i++ {
		c.SearchEvents(context.Background(), "x")
	}
	if c.breaker.state() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", c.breaker.state())
	}

	before := requests.Load()
	res := c.SearchEvents(context.Background(), "x")
	if !res.Partial || !errors.Is(res.Err, gobreaker.ErrOpenState) {
		t.Errorf("SearchEvents() = %+v, want open-circuit partial", res)
	}
	if requests.Load() != before {
		t.Error("an open circuit must not reach the upstream")
	}
}

func TestResolveNext(t *testing.T) {
	c, err := NewTicketmasterClient(testTicketmasterConfig("https://app.ticketmaster.com"), nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.resolveNext("/discovery/v2/events?keyword=x&page=2&size=20{&sort}")
	if err != nil {
		t.Fatal(err)
	}
	want := "https://app.ticketmaster.com/discovery/v2/events?apikey=secret&keyword=x&page=2&size=20"
	if got != want {
		t.Errorf("resolveNext() = %q, want %q", got, want)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > time.Minute {
		t.Errorf("parseRetryAfter(date) = %v", got)
	}
}

func TestSearchEvents_BackoffDoublesPerRetry(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	const base = 40 * time.Millisecond

	var log requestLog
	c := newTestClientWithConfig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if log.add() <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, pageJSON(1, "", eventJSON("e1", "A")))
	}), nil, func(cfg *config.TicketmasterConfig) {
		cfg.BaseBackoff = base
	})

	res := c.SearchEvents(context.Background(), "x")
	if res.Partial || len(res.Events) != 1 {
		t.Fatalf("SearchEvents() = %+v", res)
	}

	gaps := log.gaps()
	if len(gaps) != 3 {
		t.Fatalf("got %d retries, want 3", len(gaps))
	}
	for i, gap := range gaps {
		if want := base << i; gap < want {
			t.Errorf("retry %d waited %v, want at least %v", i+1, gap, want)
		}
	}
}

func TestSearchEvents_RetryAfterWinsOverBackoff(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	var log requestLog
	c := newTestClientWithConfig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if log.add() == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, pageJSON(0, ""))
	}), nil, nil)

	if res := c.SearchEvents(context.Background(), "x"); res.Partial {
		t.Fatalf("SearchEvents() = %+v", res)
	}
	if gaps := log.gaps(); len(gaps) != 1 || gaps[0] < time.Second {
		t.Errorf("gaps = %v, want one wait of at least 1s", gaps)
	}
}

func TestSearchByLocation_RateLimited(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	const calls = 6

	var log requestLog
	c := newTestClientWithConfig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add()
		fmt.Fprint(w, pageJSON(0, ""))
	}), nil, func(cfg *config.TicketmasterConfig) {
		cfg.RequestsPerSecond = 5
	})

	start := time.Now()
	for i := 0; i < calls; i++ {
		if res := c.SearchByLocation(context.Background(), 40.0, -75.0, 10, fmt.Sprintf("k%d", i)); res.Partial {
			t.Fatalf("SearchByLocation() = %+v", res)
		}
	}
	elapsed := time.Since(start)

	// Burst 1 at 5/s: the first request is immediate, each later one waits 200ms.
	if min := time.Duration(calls-1) * 200 * time.Millisecond; elapsed < min-20*time.Millisecond {
		t.Errorf("%d requests took %v, want at least %v", calls, elapsed, min)
	}
	for i, gap := range log.gaps() {
		if gap < 180*time.Millisecond {
			t.Errorf("request %d followed the previous one after %v", i+2, gap)
		}
	}
}
