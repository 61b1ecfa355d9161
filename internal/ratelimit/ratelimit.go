// Package ratelimit implements per-user sliding-window admission control
// for inbound user messages. Staff replies and commands are never limited.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultWindow is the trailing window inbound messages are counted over.
	DefaultWindow = 60 * time.Second
	// DefaultBurst is the number of messages admitted per window.
	DefaultBurst = 2
)

// Limiter admits or rejects inbound messages per user. Rejection is soft:
// the caller responds with a "please wait" notice and nothing else changes.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	burst  int
	recent map[string][]time.Time // user id → admitted timestamps, pruned to window
}

// New creates a limiter. Non-positive window or burst fall back to the defaults.
func New(window time.Duration, burst int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Limiter{
		window: window,
		burst:  burst,
		recent: make(map[string][]time.Time),
	}
}

// Admit reports whether a message from userID at time now may proceed.
// Timestamps older than the window are pruned first; if the remaining count
// has reached the burst limit the message is rejected and now is not
// recorded, otherwise now is recorded and the message is admitted.
func (l *Limiter) Admit(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop timestamps strictly older than the window.
	cutoff := now.Add(-l.window)
	kept := l.recent[userID][:0]
	for _, ts := range l.recent[userID] {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.burst {
		l.recent[userID] = kept
		return false
	}

	l.recent[userID] = append(kept, now)
	return true
}
