// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hybridsearch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// defaultCacheTTL bounds how long a cached result set is trusted before a
// query is re-run against live storage. This tool is a single-shot CLI, not
// a long-lived server, so the cache must survive across process
// invocations — an in-memory LRU would never get a second hit.
const defaultCacheTTL = 10 * time.Minute

const cacheKeyPrefix = "hybridsearch/results/v1/"

var errCacheMiss = errors.New("cache miss")

// ResultCache persists fused search results across CLI invocations, keyed by
// a digest of the query and search options (spec §4.7).
type ResultCache interface {
	Load(ctx context.Context, query string, opts SearchOptions) ([]Result, error)
	Save(ctx context.Context, query string, opts SearchOptions, results []Result) error
}

// NoopCache disables result caching entirely.
type NoopCache struct{}

func (NoopCache) Load(context.Context, string, SearchOptions) ([]Result, error) { return nil, nil }
func (NoopCache) Save(context.Context, string, SearchOptions, []Result) error   { return nil }

// badgerTxn is the subset of *badger.DB this package needs, so tests can
// supply a fake without standing up a real BadgerDB instance.
type badgerTxn interface {
	View(fn func(txn *dgbadger.Txn) error) error
	Update(fn func(txn *dgbadger.Txn) error) error
}

// BadgerResultCache implements ResultCache over a BadgerDB instance, the
// same storage choice and TTL mechanism the teacher uses for its tool
// embedding cache: native per-key TTL, gob encoding, and a versioned key
// prefix so the format can change without collisions.
type BadgerResultCache struct {
	db  badgerTxn
	ttl time.Duration
	log *slog.Logger
}

// NewBadgerResultCache wraps an opened BadgerDB handle. ttl<=0 uses
// defaultCacheTTL.
func NewBadgerResultCache(db badgerTxn, ttl time.Duration, log *slog.Logger) *BadgerResultCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &BadgerResultCache{db: db, ttl: ttl, log: log}
}

func (c *BadgerResultCache) Load(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	key := cacheKey(query, opts)

	var raw []byte
	err := c.db.View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, errCacheMiss) {
		c.log.Debug("hybridsearch cache: miss", slog.String("key", string(key)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hybridsearch: cache load: %w", err)
	}

	var results []Result
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&results); err != nil {
		return nil, fmt.Errorf("hybridsearch: cache decode: %w", err)
	}
	c.log.Debug("hybridsearch cache: hit", slog.String("key", string(key)), slog.Int("results", len(results)))
	return results, nil
}

func (c *BadgerResultCache) Save(ctx context.Context, query string, opts SearchOptions, results []Result) error {
	if len(results) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(results); err != nil {
		return fmt.Errorf("hybridsearch: cache encode: %w", err)
	}

	key := cacheKey(query, opts)
	err := c.db.Update(func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry(key, buf.Bytes()).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("hybridsearch: cache save: %w", err)
	}
	return nil
}

// cacheKey builds a digest of the query plus every option that affects
// results, so a change to strategy/fusion/limit never reuses a stale entry.
func cacheKey(query string, opts SearchOptions) []byte {
	h := sha256.New()
	fmt.Fprintf(h, "q=%s\nstrategy=%s\nfusion=%s\nwk=%f\nws=%f\nlimit=%d\nrerankN=%d\n",
		query, opts.Strategy, opts.Fusion.Method, opts.Fusion.WeightKeyword, opts.Fusion.WeightSemantic,
		opts.Limit, opts.RerankN)
	return []byte(cacheKeyPrefix + hex.EncodeToString(h.Sum(nil)))
}
