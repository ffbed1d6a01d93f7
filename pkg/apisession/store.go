// Package apisession keeps per-client state for HTTP handlers. Clients name
// their session with an opaque id; idle sessions expire.
package apisession

import (
	"sync"
	"time"
)

// sweepEvery is how many Get calls pass between lazy expiry sweeps.
const sweepEvery = 64

type entry[T any] struct {
	value      *T
	lastAccess time.Time
}

// Store maps session ids to lazily created values of T.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	ttl     time.Duration
	newFn   func() *T
	now     func() time.Time
	gets    int
}

// New creates a Store whose sessions expire after ttl without a Get.
func New[T any](ttl time.Duration, newFn func() *T) *Store[T] {
	return &Store[T]{
		entries: make(map[string]*entry[T]),
		ttl:     ttl,
		newFn:   newFn,
		now:     time.Now,
	}
}

// Get returns the session's value, creating it on first use, and marks the
// session active.
func (s *Store[T]) Get(id string) *T {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gets++
	if s.gets%sweepEvery == 0 {
		s.sweepLocked()
	}

	e, ok := s.entries[id]
	if !ok {
		e = &entry[T]{value: s.newFn()}
		s.entries[id] = e
	}
	e.lastAccess = s.now()
	return e.value
}

// Range calls fn for every live session without refreshing it. fn must not
// call back into the store.
func (s *Store[T]) Range(fn func(id string, v *T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	for id, e := range s.entries {
		fn(id, e.value)
	}
}

// Delete ends a session.
func (s *Store[T]) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Cleanup evicts expired sessions now.
func (s *Store[T]) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
}

func (s *Store[T]) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, e := range s.entries {
		if e.lastAccess.Before(cutoff) {
			delete(s.entries, id)
		}
	}
}

// Len returns the number of sessions, expired ones included until the next
// sweep.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
