package ticket

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/AntonysrmNafi/blockveil-support-bot/pkg/protocol"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(MemoryPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.DB().Close() })
	return s
}

func newTicket(id, owner string) *protocol.Ticket {
	return &protocol.Ticket{
		ID:          id,
		OwnerID:     owner,
		OwnerHandle: "alice",
		Status:      protocol.StatusPending,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	if err := s.Create(newTicket("BV-0001", "100")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get("BV-0001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OwnerID != "100" {
		t.Errorf("owner = %q", got.OwnerID)
	}
	if got.OwnerHandle != "alice" {
		t.Errorf("owner handle = %q", got.OwnerHandle)
	}
	if got.Status != protocol.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if got.ClosedAt != nil {
		t.Error("new ticket has closed_at set")
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("BV-nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExists(t *testing.T) {
	s := newTestStore(t)
	s.Create(newTicket("BV-0001", "100"))

	if ok, _ := s.Exists("BV-0001"); !ok {
		t.Error("Exists(BV-0001) = false")
	}
	if ok, _ := s.Exists("BV-0002"); ok {
		t.Error("Exists(BV-0002) = true")
	}
}

func TestLifecycle(t *testing.T) {
	s := newTestStore(t)
	s.Create(newTicket("BV-0001", "100"))

	// First relay: pending → processing, idempotent.
	if err := s.MarkProcessing("BV-0001"); err != nil {
		t.Fatalf("first relay: %v", err)
	}
	if err := s.MarkProcessing("BV-0001"); err != nil {
		t.Fatalf("second relay should be a no-op: %v", err)
	}
	got, _ := s.Get("BV-0001")
	if got.Status != protocol.StatusProcessing {
		t.Fatalf("status = %q, want processing", got.Status)
	}

	// Close, then closing again is a distinguishable rejection.
	if err := s.Close("BV-0001"); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, _ = s.Get("BV-0001")
	if got.Status != protocol.StatusClosed || got.ClosedAt == nil {
		t.Fatalf("after close: status=%q closed_at=%v", got.Status, got.ClosedAt)
	}
	if err := s.Close("BV-0001"); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("double close err = %v, want ErrAlreadyClosed", err)
	}

	// Relay into a closed ticket is rejected.
	if err := s.MarkProcessing("BV-0001"); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("relay on closed err = %v, want ErrAlreadyClosed", err)
	}

	// Reopen: closed → processing, closed_at cleared.
	if err := s.Reopen("BV-0001"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, _ = s.Get("BV-0001")
	if got.Status != protocol.StatusProcessing {
		t.Fatalf("after reopen: status = %q", got.Status)
	}
	if got.ClosedAt != nil {
		t.Error("after reopen: closed_at still set")
	}

	// Reopening a non-closed ticket is rejected.
	if err := s.Reopen("BV-0001"); !errors.Is(err, ErrNotClosed) {
		t.Fatalf("reopen on open err = %v, want ErrNotClosed", err)
	}
}

func TestCloseFromPending(t *testing.T) {
	s := newTestStore(t)
	s.Create(newTicket("BV-0001", "100"))
	if err := s.Close("BV-0001"); err != nil {
		t.Fatalf("close pending: %v", err)
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		tk := newTicket(fmt.Sprintf("BV-%04d", i), "100")
		tk.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if i%2 == 0 {
			tk.OwnerID = "200"
		}
		s.Create(tk)
	}
	s.Close("BV-0001")

	open, err := s.List(Filter{Statuses: OpenStatuses})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 3 {
		t.Fatalf("open count = %d, want 3", len(open))
	}
	// Newest first.
	if open[0].ID != "BV-0003" {
		t.Errorf("first open = %q, want BV-0003", open[0].ID)
	}

	closed, _ := s.List(Filter{Statuses: []protocol.Status{protocol.StatusClosed}})
	if len(closed) != 1 || closed[0].ID != "BV-0001" {
		t.Errorf("closed = %v", closed)
	}

	byOwner, _ := s.List(Filter{OwnerID: "200"})
	if len(byOwner) != 2 {
		t.Errorf("owner 200 count = %d, want 2", len(byOwner))
	}

	limited, _ := s.List(Filter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("limited count = %d, want 2", len(limited))
	}
}

func TestTranscriptOrder(t *testing.T) {
	s := newTestStore(t)
	s.Create(newTicket("BV-0001", "100"))

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := protocol.TranscriptEntry{
			ID:        fmt.Sprintf("m-%d", i),
			Sender:    protocol.SenderUser,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: ts, // identical timestamps: order must still be insertion order
		}
		if err := s.AppendTranscript("BV-0001", e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := s.Transcript("BV-0001")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}
	for i, e := range entries {
		if e.ID != fmt.Sprintf("m-%d", i) {
			t.Errorf("entry %d = %q, insertion order broken", i, e.ID)
		}
	}
}

func TestAppendTranscriptUnknownTicket(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendTranscript("BV-nope", protocol.TranscriptEntry{ID: "m-1", Sender: "user", Content: "x", Timestamp: time.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
