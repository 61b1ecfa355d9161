package protocol

import "time"

// Status represents the lifecycle state of a support ticket.
type Status string

const (
	// StatusPending means the ticket exists but nothing has been relayed yet.
	StatusPending Status = "pending"
	// StatusProcessing means at least one message has been relayed in either direction.
	StatusProcessing Status = "processing"
	// StatusClosed is terminal, though a closed ticket may be reopened back into processing.
	StatusClosed Status = "closed"
)

// Ticket is an isolated support conversation between one end-user and the staff team.
// OwnerID and CreatedAt never change after creation.
type Ticket struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	OwnerHandle string     `json:"owner_handle,omitempty"` // handle at creation time; the current handle lives on the user record
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// Open reports whether the ticket is in a non-terminal state.
func (t *Ticket) Open() bool {
	return t.Status == StatusPending || t.Status == StatusProcessing
}

// Transcript sender labels.
const (
	SenderUser   = "user"
	SenderStaff  = "staff"
	SenderSystem = "system"
)

// TranscriptEntry is one relayed message recorded on a ticket.
// Entries are append-only and keep insertion order.
type TranscriptEntry struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
