// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package summarizer

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// cacheKeyPrefix versions the BadgerDB key layout, matching the teacher's
// routing/emb/v1/ convention in router_cache.go.
const cacheKeyPrefix = "summarizer/v1/"

var errCacheMiss = errors.New("summarizer cache: miss")

// Cache persists summarisation results keyed by sha256(model ‖ 0x00 ‖
// content) with a TTL-bounded lifetime (spec §4.8), grounded on the
// teacher's BadgerRouterCacheStore.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions are
// per-goroutine.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenCache opens (or creates) a BadgerDB cache at dir with the given
// entry TTL.
func OpenCache(dir string, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("summarizer cache: open %s: %w", dir, err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Close releases the underlying BadgerDB handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key computes sha256(model ‖ 0x00 ‖ content) hex-encoded (spec §4.8).
func Key(model, content string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0x00})
	h.Write([]byte(content))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the cached Summary for key, and whether it was found.
func (c *Cache) Get(key string) (Summary, bool) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheDBKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return Summary{}, false
	}

	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return Summary{}, false
	}
	return s, true
}

// Put stores s under key with the cache's configured TTL.
func (c *Cache) Put(key string, s Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("summarizer cache: encode: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheDBKey(key), raw).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

func cacheDBKey(key string) []byte {
	return []byte(cacheKeyPrefix + key)
}
