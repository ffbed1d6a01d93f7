// Package tracker counts bridge activity: events received per kind and the
// outcome of connection attempts.
package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks event and connection statistics.
type Tracker struct {
	mu     sync.RWMutex
	events map[string]*int64

	connectAttempts  int64
	connectSuccesses int64
	connectFailures  int64
	disconnects      int64
	publishSkipped   int64
	publishSent      int64
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Events           map[string]int64 `json:"events"`
	ConnectAttempts  int64            `json:"connect_attempts"`
	ConnectSuccesses int64            `json:"connect_successes"`
	ConnectFailures  int64            `json:"connect_failures"`
	Disconnects      int64            `json:"disconnects"`
	PublishSent      int64            `json:"publish_sent"`
	PublishSkipped   int64            `json:"publish_skipped"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		events: make(map[string]*int64),
	}
}

// counter returns the counter for an event kind, creating it if needed.
func (t *Tracker) counter(kind string) *int64 {
	t.mu.RLock()
	c, ok := t.events[kind]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if c, ok = t.events[kind]; ok {
		return c
	}
	c = new(int64)
	t.events[kind] = c
	return c
}

// TrackEvent increments the counter for an event kind.
func (t *Tracker) TrackEvent(kind string) {
	atomic.AddInt64(t.counter(kind), 1)
}

// TrackConnect records the outcome of one connection attempt.
func (t *Tracker) TrackConnect(ok bool) {
	atomic.AddInt64(&t.connectAttempts, 1)
	if ok {
		atomic.AddInt64(&t.connectSuccesses, 1)
	} else {
		atomic.AddInt64(&t.connectFailures, 1)
	}
}

func (t *Tracker) TrackDisconnect() {
	atomic.AddInt64(&t.disconnects, 1)
}

// TrackPublish records whether a frame was handed to the compositor.
func (t *Tracker) TrackPublish(sent bool) {
	if sent {
		atomic.AddInt64(&t.publishSent, 1)
	} else {
		atomic.AddInt64(&t.publishSkipped, 1)
	}
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() Stats {
	t.mu.RLock()
	events := make(map[string]int64, len(t.events))
	for k, v := range t.events {
		events[k] = atomic.LoadInt64(v)
	}
	t.mu.RUnlock()

	return Stats{
		Events:           events,
		ConnectAttempts:  atomic.LoadInt64(&t.connectAttempts),
		ConnectSuccesses: atomic.LoadInt64(&t.connectSuccesses),
		ConnectFailures:  atomic.LoadInt64(&t.connectFailures),
		Disconnects:      atomic.LoadInt64(&t.disconnects),
		PublishSent:      atomic.LoadInt64(&t.publishSent),
		PublishSkipped:   atomic.LoadInt64(&t.publishSkipped),
	}
}
