// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package sync fetches upcoming music events from the Ticketmaster Discovery API.

Key Components:

  - TicketmasterClient: paginated event search around a geohash point
  - Circuit Breaker: failure detection and recovery around every page fetch
  - Rate Limiting: a shared 5 req/s limiter plus HTTP 429 backoff
  - PageCache: BadgerDB cache of raw response pages with a TTL
  - ParseEvent: reduces a raw event to artists, venue, date, price, image and genres

Failure Model:

A search never fails outright. Rate limiting (429), server errors (5xx),
network errors and undecodable bodies are retried with exponential backoff
(base × 2^retry, at most MaxRetries times). When retries run out, a non-retryable
status arrives or the circuit is open, the search stops and returns the events
collected so far with SearchResult.Partial set and SearchResult.Err holding
the cause. One malformed event is skipped without affecting its page.

Usage Example:

	cache, err := sync.OpenPageCache(cfg.Ticketmaster.CachePath, cfg.Ticketmaster.CacheTTL)
	client, err := sync.NewTicketmasterClient(&cfg.Ticketmaster, loc, cache, logger)

	res := client.SearchEvents(ctx, "Japanese Breakfast")
	if res.Partial {
	    logger.Warn().Err(res.Err).Msg("partial results")
	}
	for _, ev := range res.Events {
	    fmt.Println(ev.Date(), ev.ArtistLabel(), ev.Venue)
	}

Thread Safety:

TicketmasterClient is safe for concurrent use. Concurrent searches share the
rate limiter, the breaker and the cache.
*/
package sync
