// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

// Package cache memoizes immutable response bodies for the life of the
// process. Entries are never evicted or invalidated.
package cache

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// Lookup results.
const (
	ResultHit  = "hit"
	ResultMiss = "miss"
)

// Lookups counts cache lookups.
var Lookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ooi_cache_lookups_total",
		Help: "Total number of cache lookups, by cache and result",
	},
	[]string{"cache", "result"},
)

// RegisterMetrics registers the cache metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Lookups)
}

// Store is a named, concurrency-safe, insert-only byte cache.
type Store struct {
	name    string
	mu      sync.RWMutex
	entries map[string][]byte
	group   singleflight.Group
}

// New creates an empty Store. name labels its metrics.
func New(name string) *Store {
	return &Store{
		name:    name,
		entries: make(map[string][]byte),
	}
}

// Name returns the store's metric label.
func (s *Store) Name() string {
	return s.name
}

// Get returns the cached bytes for key.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	body, ok := s.entries[key]
	s.mu.RUnlock()

	result := ResultMiss
	if ok {
		result = ResultHit
	}
	Lookups.WithLabelValues(s.name, result).Inc()
	return body, ok
}

// Put stores body under key. Storing the same key again keeps the first
// value; entries are immutable once populated.
func (s *Store) Put(key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return
	}
	s.entries[key] = body
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// LoadFunc fetches the value for a missing key. The context it receives is
// never cancelled by a caller, so a LoadFunc must bound its own duration.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Load returns the cached bytes for key, calling load on a miss. Concurrent
// misses for the same key share a single load. Failed loads are not cached.
//
// A caller whose ctx is done stops waiting and gets ctx's error. The shared
// load keeps running for the remaining callers and still populates the
// store.
func (s *Store) Load(ctx context.Context, key string, load LoadFunc) ([]byte, error) {
	if body, ok := s.Get(key); ok {
		return body, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // caller's own cancellation
	}

	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		s.mu.RLock()
		body, ok := s.entries[key]
		s.mu.RUnlock()
		if ok {
			return body, nil
		}

		body, err := load(shared)
		if err != nil {
			return nil, err
		}
		s.Put(key, body)
		return body, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err() //nolint:wrapcheck // caller's own cancellation
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err //nolint:wrapcheck // load errors are returned as-is
		}
		return res.Val.([]byte), nil
	}
}
