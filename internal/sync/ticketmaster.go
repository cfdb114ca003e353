// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mmcloughlin/geohash"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/metrics"
)

const (
	upstreamTicketmaster = "ticketmaster"
	eventsPath           = "/discovery/v2/events.json"
	maxErrorBody         = 512
	maxPageBody          = 8 << 20
)

// SearchResult is the outcome of one upstream search. Partial is set, and
// Err holds the cause, when the search stopped before the last page; Events
// still carries everything fetched up to that point.
type SearchResult struct {
	Events  []UpstreamEvent
	Pages   int
	Partial bool
	Err     error
}

// StatusError is a non-retryable HTTP status from the upstream API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Code, e.Body)
}

// retryableError marks an attempt that may succeed when repeated.
type retryableError struct {
	reason     string // metrics label: rate_limited, network, server_error, decode
	retryAfter time.Duration
	err        error
}

func (e *retryableError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// TicketmasterClient searches the Ticketmaster Discovery API for music
// events near a fixed point.
//
// Every request waits on a shared rate limiter. Pages that fail with 429,
// 5xx, a network error or an undecodable body are retried with exponential
// backoff; a search that cannot finish returns what it has with Partial set.
type TicketmasterClient struct {
	baseURL     *url.URL
	apiKey      string
	geoPoint    string
	precision   uint
	radius      int
	pageSize    int
	segmentID   string
	maxRetries  int
	baseBackoff time.Duration
	location    *time.Location

	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *PageCache
	breaker    *circuitBreaker[*discoveryPage]
	logger     zerolog.Logger
}

// NewTicketmasterClient creates a client. cache may be nil. loc is the
// location local event dates are interpreted in.
func NewTicketmasterClient(cfg *config.TicketmasterConfig, loc *time.Location, cache *PageCache, logger zerolog.Logger) (*TicketmasterClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ticketmaster base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ticketmaster base url %q must be absolute", cfg.BaseURL)
	}
	if loc == nil {
		loc = time.UTC
	}

	precision := uint(7)
	if cfg.GeohashPrecision > 0 {
		precision = uint(cfg.GeohashPrecision)
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	logger = logger.With().Str("component", "ticketmaster").Logger()
	return &TicketmasterClient{
		baseURL:     base,
		apiKey:      cfg.APIKey,
		geoPoint:    geohash.EncodeWithPrecision(cfg.Latitude, cfg.Longitude, precision),
		precision:   precision,
		radius:      cfg.Radius,
		pageSize:    cfg.PageSize,
		segmentID:   cfg.SegmentID,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		location:    loc,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		cache:       cache,
		breaker:     newCircuitBreaker[*discoveryPage]("ticketmaster-api", logger),
		logger:      logger,
	}, nil
}

// SearchEvents returns every music event matching keyword around the
// configured point, following pagination until the last page.
func (c *TicketmasterClient) SearchEvents(ctx context.Context, keyword string) *SearchResult {
	q := c.query(c.geoPoint, c.radius, keyword)
	return c.search(ctx, c.eventsURL(q), true)
}

// SearchByLocation returns the first page of music events around an
// arbitrary point.
func (c *TicketmasterClient) SearchByLocation(ctx context.Context, lat, lon float64, radius int, keyword string) *SearchResult {
	if radius <= 0 {
		radius = c.radius
	}
	q := c.query(geohash.EncodeWithPrecision(lat, lon, c.precision), radius, keyword)
	return c.search(ctx, c.eventsURL(q), false)
}

// CircuitState reports the upstream circuit breaker state: closed,
// half-open or open.
func (c *TicketmasterClient) CircuitState() string {
	return stateToString(c.breaker.state())
}

func (c *TicketmasterClient) query(geoPoint string, radius int, keyword string) url.Values {
	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("geoPoint", geoPoint)
	q.Set("radius", strconv.Itoa(radius))
	q.Set("unit", "miles")
	q.Set("page", "0")
	q.Set("size", strconv.Itoa(c.pageSize))
	if keyword != "" {
		q.Set("keyword", keyword)
	}
	if c.segmentID != "" {
		q.Set("segmentId", c.segmentID)
	}
	return q
}

func (c *TicketmasterClient) eventsURL(q url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + eventsPath
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *TicketmasterClient) search(ctx context.Context, first string, follow bool) *SearchResult {
	res := &SearchResult{}
	next := first
	for next != "" {
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			res.Partial = true
			res.Err = err
			metrics.UpstreamPartialResults.WithLabelValues(upstreamTicketmaster).Inc()
			c.logger.Warn().Err(err).Int("pages", res.Pages).Int("events", len(res.Events)).Msg("Ticketmaster search incomplete, returning partial results")
			return res
		}
		res.Pages++

		if page.Page.TotalElements == 0 {
			c.logger.Debug().Msg("No Ticketmaster results")
			return res
		}
		res.Events = append(res.Events, c.parsePage(page)...)

		if !follow || page.Links.Next == nil {
			return res
		}
		next, err = c.resolveNext(page.Links.Next.Href)
		if err != nil {
			res.Partial = true
			res.Err = err
			return res
		}
	}
	return res
}

// parsePage parses each event independently so one bad record never costs
// the rest of the page.
func (c *TicketmasterClient) parsePage(page *discoveryPage) []UpstreamEvent {
	events := make([]UpstreamEvent, 0, len(page.Embedded.Events))
	for _, raw := range page.Embedded.Events {
		ev, err := ParseEvent(raw, c.location)
		if err != nil {
			reason := "malformed"
			if errors.Is(err, ErrNoAttraction) {
				reason = "no_attraction"
			}
			metrics.EventsSkipped.WithLabelValues(reason).Inc()
			c.logger.Debug().Err(err).Str("reason", reason).Msg("Skipping upstream event")
			continue
		}
		events = append(events, *ev)
	}
	return events
}

// resolveNext turns a _links.next href into an absolute request URL. The
// href is relative, may carry a URI template suffix such as "{&sort}" and
// never includes the api key.
func (c *TicketmasterClient) resolveNext(href string) (string, error) {
	if i := strings.IndexByte(href, '{'); i >= 0 {
		href = href[:i]
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse next page link %q: %w", href, err)
	}
	u := c.baseURL.ResolveReference(ref)
	q := u.Query()
	q.Set("apikey", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// fetchPage serves a page from cache or fetches it through the breaker.
func (c *TicketmasterClient) fetchPage(ctx context.Context, pageURL string) (*discoveryPage, error) {
	key := cacheKey(pageURL)
	if body, ok := c.cache.Get(key); ok {
		var page discoveryPage
		if err := json.Unmarshal(body, &page); err == nil {
			metrics.UpstreamCacheHits.Inc()
			return &page, nil
		}
		_ = c.cache.Delete(key)
	}

	var body []byte
	page, err := c.breaker.execute(func() (*discoveryPage, error) {
		p, b, err := c.getWithRetry(ctx, pageURL)
		body = b
		return p, err
	})
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(key, body); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache upstream page")
	}
	return page, nil
}

// getWithRetry performs one page request, retrying transient failures with
// base × 2^retry backoff. A Retry-After header wins when it asks for longer.
func (c *TicketmasterClient) getWithRetry(ctx context.Context, pageURL string) (*discoveryPage, []byte, error) {
	for attempt := 0; ; attempt++ {
		page, body, err := c.get(ctx, pageURL)
		if err == nil {
			return page, body, nil
		}

		var retryable *retryableError
		if !errors.As(err, &retryable) {
			return nil, nil, err
		}
		if attempt >= c.maxRetries {
			return nil, nil, fmt.Errorf("giving up after %d retries: %w", c.maxRetries, err)
		}

		retryDelay := c.baseBackoff * (1 << attempt)
		if retryable.retryAfter > retryDelay {
			retryDelay = retryable.retryAfter
		}
		metrics.UpstreamRetries.WithLabelValues(upstreamTicketmaster, retryable.reason).Inc()
		c.logger.Warn().Err(retryable.err).Str("reason", retryable.reason).Dur("retry_delay", retryDelay).Int("attempt", attempt+1).Int("max_retries", c.maxRetries).Msg("Ticketmaster request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// get performs a single rate-limited request and classifies the outcome.
func (c *TicketmasterClient) get(ctx context.Context, pageURL string) (*discoveryPage, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest(upstreamTicketmaster, 0)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, &retryableError{reason: "network", err: err}
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamRequest(upstreamTicketmaster, resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, nil, &retryableError{
			reason:     "rate_limited",
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			err:        &StatusError{Code: resp.StatusCode},
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, nil, &retryableError{reason: "server_error", err: &StatusError{Code: resp.StatusCode, Body: readSnippet(resp.Body)}}
	default:
		return nil, nil, &StatusError{Code: resp.StatusCode, Body: readSnippet(resp.Body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		return nil, nil, &retryableError{reason: "network", err: fmt.Errorf("read response: %w", err)}
	}
	var page discoveryPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, nil, &retryableError{reason: "decode", err: fmt.Errorf("decode response: %w", err)}
	}
	return &page, body, nil
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}
