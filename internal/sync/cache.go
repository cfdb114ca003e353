// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package sync

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// CacheDisabled is the cache path value that turns the page cache off.
const CacheDisabled = "off"

const pageKeyPrefix = "page:"

// PageCache stores raw upstream response pages in BadgerDB with a TTL so
// repeated searches inside one refresh window do not spend the daily quota.
//
// A nil *PageCache is valid and caches nothing.
type PageCache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenPageCache opens the cache at path. An empty path keeps the cache in
// memory; CacheDisabled returns a nil cache.
func OpenPageCache(path string, ttl time.Duration) (*PageCache, error) {
	if path == CacheDisabled || ttl <= 0 {
		return nil, nil
	}

	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger page cache: %w", err)
	}
	return &PageCache{db: db, ttl: ttl}, nil
}

// Get returns the cached page body for key.
func (c *PageCache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	var body []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(pageKeyPrefix + key))
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}
	return body, true
}

// Set stores body under key until the TTL expires.
func (c *PageCache) Set(key string, body []byte) error {
	if c == nil {
		return nil
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(pageKeyPrefix+key), body).WithTTL(c.ttl)
		return txn.SetEntry(e)
	})
}

// Delete drops key from the cache.
func (c *PageCache) Delete(key string) error {
	if c == nil {
		return nil
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(pageKeyPrefix + key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Close closes the underlying BadgerDB.
func (c *PageCache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// cacheKey is the request URL without the api key.
func cacheKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Del("apikey")
	u.RawQuery = q.Encode()
	return u.String()
}
