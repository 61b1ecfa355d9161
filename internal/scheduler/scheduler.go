package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/AntonysrmNafi/blockveil-support-bot/internal/ticket"
	"github.com/AntonysrmNafi/blockveil-support-bot/pkg/protocol"
)

// TicketLister is the slice of the store the digest needs.
type TicketLister interface {
	List(f ticket.Filter) ([]*protocol.Ticket, error)
}

// NotifyFunc posts a digest to the staff destination.
type NotifyFunc func(ctx context.Context, text string)

// Scheduler runs the periodic open-ticket digest for the support team.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   []cron.EntryID
	store  TicketLister
	notify NotifyFunc
	logger *slog.Logger
}

// New creates a new scheduler.
func New(store TicketLister, notify NotifyFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		store:  store,
		notify: notify,
		logger: logger,
	}
}

// Start begins the cron scheduler. Blocks until context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started")

	<-ctx.Done()
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// AddDigest schedules the open-ticket digest. The schedule is a standard cron
// expression (5 fields) or a predefined one like @every 4h.
func (s *Scheduler) AddDigest(ctx context.Context, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(schedule, func() {
		s.runDigest(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}

	s.jobs = append(s.jobs, id)
	s.logger.Info("digest scheduled", "schedule", schedule)
	return nil
}

// JobCount returns the number of scheduled jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) runDigest(ctx context.Context) {
	text, err := s.Digest()
	if err != nil {
		s.logger.Error("digest failed", "error", err)
		return
	}
	s.notify(ctx, text)
}

// Digest renders the current open-ticket summary.
func (s *Scheduler) Digest() (string, error) {
	open, err := s.store.List(ticket.Filter{Statuses: ticket.OpenStatuses})
	if err != nil {
		return "", fmt.Errorf("scheduler: list open tickets: %w", err)
	}
	if len(open) == 0 {
		return "Ticket digest: no open tickets. 🎉", nil
	}

	var pending, processing int
	lines := make([]string, 0, len(open)+1)
	lines = append(lines, fmt.Sprintf("Ticket digest: %d open", len(open)))
	for _, t := range open {
		if t.Status == protocol.StatusPending {
			pending++
		} else {
			processing++
		}
		lines = append(lines, fmt.Sprintf("• %s  %s  (user %s, opened %s)",
			t.ID, t.Status, t.OwnerID, t.CreatedAt.UTC().Format("Jan 2 15:04")))
	}
	lines[0] = fmt.Sprintf("Ticket digest: %d open (%d pending, %d processing)", len(open), pending, processing)
	return strings.Join(lines, "\n"), nil
}
