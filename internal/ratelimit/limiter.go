// Package ratelimit provides a sliding-window admission gate keyed by
// client identity.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most quota requests per client within any window of
// the configured size. Admission timestamps are pruned on each call, so
// the quota decays continuously rather than resetting at fixed boundaries.
type Limiter struct {
	quota  int
	window time.Duration

	mu      sync.Mutex
	clients map[string][]time.Time

	now func() time.Time // overridable in tests
}

// New creates a limiter with the given per-client quota and window
func New(quota int, window time.Duration) *Limiter {
	return &Limiter{
		quota:   quota,
		window:  window,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records and admits a request for clientID, or rejects it when the
// quota inside the current window is exhausted
func (l *Limiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	stamps := l.clients[clientID]
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= l.quota {
		l.clients[clientID] = live
		return false
	}

	l.clients[clientID] = append(live, now)
	return true
}

// ClientCount returns the number of tracked clients
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Prune drops clients whose whole history fell out of the window. Called
// periodically so idle clients do not accumulate forever.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for id, stamps := range l.clients {
		idle := true
		for _, ts := range stamps {
			if ts.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(l.clients, id)
		}
	}
}
