package ticket

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AntonysrmNafi/blockveil-support-bot/pkg/protocol"
)

// MemoryPath keeps the store process-lifetime only: a restart starts empty.
const MemoryPath = ":memory:"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
// Pass MemoryPath for an in-memory store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}

	if path == MemoryPath {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("ticket store: wal: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id           TEXT PRIMARY KEY,
			owner_id     TEXT NOT NULL,
			owner_handle TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT 'pending',
			created_at   TEXT NOT NULL,
			closed_at    TEXT
		);

		CREATE TABLE IF NOT EXISTS transcript (
			id        TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL REFERENCES tickets(id),
			seq       INTEGER NOT NULL,
			sender    TEXT NOT NULL,
			content   TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_transcript_ticket ON transcript(ticket_id, seq);
		CREATE INDEX IF NOT EXISTS idx_tickets_owner ON tickets(owner_id);
		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(t *protocol.Ticket) error {
	_, err := s.db.Exec(`
		INSERT INTO tickets (id, owner_id, owner_handle, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.OwnerID, t.OwnerHandle, string(t.Status), t.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("ticket store: create: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (*protocol.Ticket, error) {
	row := s.db.QueryRow(`SELECT id, owner_id, owner_handle, status, created_at, closed_at FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ticket %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Exists(id string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tickets WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("ticket store: exists: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) List(f Filter) ([]*protocol.Ticket, error) {
	query := "SELECT id, owner_id, owner_handle, status, created_at, closed_at FROM tickets WHERE 1=1"
	var args []any

	if len(f.Statuses) > 0 {
		placeholders := strings.Repeat("?,", len(f.Statuses))
		query += " AND status IN (" + placeholders[:len(placeholders)-1] + ")"
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	if f.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, f.OwnerID)
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	var tickets []*protocol.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) MarkProcessing(id string) error {
	return s.transition(id, func(current protocol.Status) (protocol.Status, error) {
		switch current {
		case protocol.StatusPending:
			return protocol.StatusProcessing, nil
		case protocol.StatusProcessing:
			return protocol.StatusProcessing, nil // idempotent
		default:
			return "", ErrAlreadyClosed
		}
	}, nil)
}

func (s *SQLiteStore) Close(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return s.transition(id, func(current protocol.Status) (protocol.Status, error) {
		if current == protocol.StatusClosed {
			return "", ErrAlreadyClosed
		}
		return protocol.StatusClosed, nil
	}, &now)
}

func (s *SQLiteStore) Reopen(id string) error {
	return s.transition(id, func(current protocol.Status) (protocol.Status, error) {
		if current != protocol.StatusClosed {
			return "", ErrNotClosed
		}
		return protocol.StatusProcessing, nil
	}, nil)
}

// transition reads the current status and applies next under one
// transaction, so a concurrent transition cannot interleave.
func (s *SQLiteStore) transition(id string, next func(protocol.Status) (protocol.Status, error), closedAt *string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("ticket store: transition: %w", err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRow(`SELECT status FROM tickets WHERE id = ?`, id).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("ticket %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("ticket store: transition: %w", err)
	}

	to, err := next(protocol.Status(current))
	if err != nil {
		return fmt.Errorf("ticket %q: %w", id, err)
	}

	if closedAt != nil {
		_, err = tx.Exec(`UPDATE tickets SET status = ?, closed_at = ? WHERE id = ?`, string(to), *closedAt, id)
	} else {
		_, err = tx.Exec(`UPDATE tickets SET status = ?, closed_at = NULL WHERE id = ?`, string(to), id)
	}
	if err != nil {
		return fmt.Errorf("ticket store: transition: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) AppendTranscript(id string, e protocol.TranscriptEntry) error {
	ok, err := s.Exists(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ticket %q: %w", id, ErrNotFound)
	}
	_, err = s.db.Exec(`
		INSERT INTO transcript (id, ticket_id, seq, sender, content, timestamp)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM transcript WHERE ticket_id = ?), ?, ?, ?)
	`, e.ID, id, id, e.Sender, e.Content, e.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("ticket store: append transcript: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Transcript(id string) ([]protocol.TranscriptEntry, error) {
	rows, err := s.db.Query(`SELECT id, sender, content, timestamp FROM transcript WHERE ticket_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("ticket store: transcript: %w", err)
	}
	defer rows.Close()

	var entries []protocol.TranscriptEntry
	for rows.Next() {
		var e protocol.TranscriptEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.Sender, &e.Content, &ts); err != nil {
			return nil, fmt.Errorf("ticket store: transcript scan: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(row scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var status, createdAt string
	var closedAt *string

	if err := row.Scan(&t.ID, &t.OwnerID, &t.OwnerHandle, &status, &createdAt, &closedAt); err != nil {
		return nil, err
	}

	t.Status = protocol.Status(status)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if closedAt != nil {
		ct, _ := time.Parse(time.RFC3339, *closedAt)
		t.ClosedAt = &ct
	}
	return &t, nil
}
