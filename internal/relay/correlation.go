package relay

import (
	"sync"

	"github.com/AntonysrmNafi/blockveil-support-bot/internal/connector"
)

// Correlation maps the handle of a delivered relay copy back to its ticket.
// The staff side is a shared multiplexed channel with no per-user session,
// so "which earlier message is this one replying to" is the only reliable
// anchor — this table turns that anchor into a ticket id.
//
// Entries are never deleted: a closed ticket must stay resolvable so late
// replies can be rejected with the right reason instead of vanishing.
type Correlation struct {
	mu      sync.RWMutex
	entries map[connector.Handle]string
}

// NewCorrelation creates an empty table.
func NewCorrelation() *Correlation {
	return &Correlation{entries: make(map[connector.Handle]string)}
}

// Record associates a delivered message handle with a ticket. Handles are
// never reused by the transport, so the first write wins and later writes
// for the same handle are ignored.
func (c *Correlation) Record(h connector.Handle, ticketID string) {
	if h == "" || ticketID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[h]; exists {
		return
	}
	c.entries[h] = ticketID
}

// Resolve returns the ticket a delivered message belongs to.
func (c *Correlation) Resolve(h connector.Handle) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.entries[h]
	return id, ok
}

// Len returns the number of recorded handles.
func (c *Correlation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
