// Package logbuf keeps a bounded in-memory window of recent log entries so
// the admin API can serve them without a log aggregation stack.
package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is a single captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Buffer is a fixed-size ring of log entries. Once full, each new entry
// overwrites the oldest one.
type Buffer struct {
	mu    sync.Mutex
	ring  []Entry
	next  int
	count int
}

// New creates a buffer holding up to size entries.
func New(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{ring: make([]Entry, size)}
}

// Add records an entry, evicting the oldest if the ring is full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	b.ring[b.next] = e
	b.next = (b.next + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
	b.mu.Unlock()
}

// Len reports how many entries the buffer currently holds.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Query returns entries at or above minLevel recorded at or after since,
// oldest first. A zero since matches everything; limit <= 0 means no cap,
// otherwise the newest limit matches are returned.
func (b *Buffer) Query(since time.Time, minLevel slog.Level, limit int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldest := 0
	if b.count == len(b.ring) {
		oldest = b.next
	}

	var out []Entry
	for i := 0; i < b.count; i++ {
		e := b.ring[(oldest+i)%len(b.ring)]
		if !since.IsZero() && e.Time.Before(since) {
			continue
		}
		if levelOf(e.Level) < minLevel {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func levelOf(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
