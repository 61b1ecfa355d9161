package ticket

import (
	"errors"

	"github.com/AntonysrmNafi/blockveil-support-bot/pkg/protocol"
)

// Lifecycle rejections. Each maps to a distinct user- or staff-visible
// message in the router; none indicates a partial mutation.
var (
	// ErrNotFound means no ticket with that id exists.
	ErrNotFound = errors.New("ticket not found")
	// ErrAlreadyClosed means a close or relay hit a ticket that is already closed.
	ErrAlreadyClosed = errors.New("ticket already closed")
	// ErrNotClosed means a reopen hit a ticket that is not closed.
	ErrNotClosed = errors.New("ticket is not closed")
)

// Filter constrains ticket list queries.
type Filter struct {
	Statuses []protocol.Status // empty = any
	OwnerID  string
	Limit    int // 0 = no limit
}

// OpenStatuses is the "open" listing bucket: every non-terminal state.
var OpenStatuses = []protocol.Status{protocol.StatusPending, protocol.StatusProcessing}

// Store owns ticket records, their transcripts and the lifecycle state
// machine. Implementations serialize their own reads and writes; the
// check-then-act sequences that span store and directory are serialized
// by the router's per-user locks.
type Store interface {
	// Create inserts a new pending ticket.
	Create(t *protocol.Ticket) error
	// Get retrieves a ticket by id.
	Get(id string) (*protocol.Ticket, error)
	// Exists reports whether a ticket id is taken (id generator collision check).
	Exists(id string) (bool, error)
	// List returns tickets matching the filter, newest first.
	List(f Filter) ([]*protocol.Ticket, error)
	// MarkProcessing applies the first-relay transition pending → processing.
	// It is idempotent on processing tickets and fails with ErrAlreadyClosed
	// on closed ones.
	MarkProcessing(id string) error
	// Close transitions pending|processing → closed. ErrAlreadyClosed if closed.
	Close(id string) error
	// Reopen transitions closed → processing. ErrNotClosed otherwise.
	Reopen(id string) error
	// AppendTranscript records a relayed message on the ticket.
	AppendTranscript(id string, e protocol.TranscriptEntry) error
	// Transcript returns a ticket's entries in insertion order.
	Transcript(id string) ([]protocol.TranscriptEntry, error)
}
