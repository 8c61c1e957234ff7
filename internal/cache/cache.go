// Package cache provides the keyed, time-boxed result cache that guards the
// ingestion pipeline. Entries are valid while their age is under the caller's
// TTL; expired entries behave exactly like absent ones. Concurrent misses for
// the same key are coalesced into a single refresh, and a failed refresh
// leaves any previous entry untouched.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Clock supplies the current time. Injected so freshness boundaries are
// testable without sleeping.
type Clock func() time.Time

// Status describes how a read was served.
type Status int

const (
	// StatusHit means a fresh entry was returned with no refresh.
	StatusHit Status = iota

	// StatusMiss means no entry existed and a refresh ran (or was joined).
	StatusMiss

	// StatusStale means an entry existed but had expired, and a refresh ran
	// (or was joined).
	StatusStale
)

// String returns the status label used in metrics and logs.
func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusMiss:
		return "miss"
	case StatusStale:
		return "stale"
	default:
		return "unknown"
	}
}

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// Store is a keyed TTL cache for values of type V. It is safe for concurrent
// use. Staleness by TTL is the only automatic invalidation; entries are never
// evicted by size.
type Store[V any] struct {
	mu       sync.RWMutex
	entries  map[string]entry[V]
	inflight map[string]struct{}
	group    singleflight.Group
	now      Clock
}

// New creates a Store using the given clock. A nil clock means time.Now.
func New[V any](now Clock) *Store[V] {
	if now == nil {
		now = time.Now
	}
	return &Store[V]{
		entries:  make(map[string]entry[V]),
		inflight: make(map[string]struct{}),
		now:      now,
	}
}

// GetOrFill returns the cached value for key if its age is under ttl,
// otherwise runs fill and stores the result. Concurrent callers for the same
// key share one fill invocation and all receive its result.
//
// On fill failure the error is returned and the store is left untouched:
// a previous (stale) entry is never overwritten with partial data.
func (s *Store[V]) GetOrFill(ctx context.Context, key string, ttl time.Duration, fill func(ctx context.Context) (V, error)) (V, Status, error) {
	if v, ok := s.fresh(key, ttl); ok {
		return v, StatusHit, nil
	}

	status := StatusMiss
	if _, exists := s.peek(key); exists {
		status = StatusStale
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// A concurrent flight may have refreshed the entry between the
		// freshness check and joining the group.
		if v, ok := s.fresh(key, ttl); ok {
			return v, nil
		}

		s.setInflight(key, true)
		defer s.setInflight(key, false)

		value, err := fill(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.entries[key] = entry[V]{value: value, fetchedAt: s.now()}
		s.mu.Unlock()
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, status, err
	}
	return v.(V), status, nil
}

// Invalidate removes the entry for key ahead of its TTL expiry.
// Returns true if an entry existed.
func (s *Store[V]) Invalidate(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// InFlight reports whether a refresh for key is currently running.
func (s *Store[V]) InFlight(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.inflight[key]
	return ok
}

// Len returns the number of stored entries, fresh or stale.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// fresh returns the value for key if its age is strictly under ttl.
func (s *Store[V]) fresh(key string, ttl time.Duration) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || s.now().Sub(e.fetchedAt) >= ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// peek reports whether any entry exists for key, fresh or not.
func (s *Store[V]) peek(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e.value, ok
}

func (s *Store[V]) setInflight(key string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.inflight[key] = struct{}{}
	} else {
		delete(s.inflight, key)
	}
}
