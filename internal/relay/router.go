// Package relay implements the ticket router: the orchestrator that turns
// inbound transport events into ticket state transitions and outbound
// deliveries. Users talk to the bot privately; their messages are relayed
// into one shared staff destination, and staff answer by replying to the
// relayed copy. The correlation table maps those reply handles back to
// tickets.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AntonysrmNafi/blockveil-support-bot/internal/connector"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/directory"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/ratelimit"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/ticket"
	"github.com/AntonysrmNafi/blockveil-support-bot/pkg/protocol"
)

// Options configures a Router.
type Options struct {
	Staff     connector.Connector // connector carrying the staff destination
	StaffDest string              // chat/channel id of the staff destination
	Store     ticket.Store
	Directory *directory.Directory
	Limiter   *ratelimit.Limiter
	Generator ticket.Generator
	Logger    *slog.Logger
}

// Router routes inbound events between end-users and the staff destination.
type Router struct {
	staff     connector.Connector
	staffDest string
	store     ticket.Store
	dir       *directory.Directory
	corr      *Correlation
	limiter   *ratelimit.Limiter
	gen       ticket.Generator
	logger    *slog.Logger

	connMu sync.RWMutex
	conns  map[string]connector.Connector // connector name → connector, for user-side delivery

	locks *keyedMutex

	now func() time.Time
}

// New creates a Router. The staff connector is registered for user-side
// delivery too, since on Telegram one bot serves both sides.
func New(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		staff:     opts.Staff,
		staffDest: opts.StaffDest,
		store:     opts.Store,
		dir:       opts.Directory,
		corr:      NewCorrelation(),
		limiter:   opts.Limiter,
		gen:       opts.Generator,
		logger:    logger,
		conns:     make(map[string]connector.Connector),
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
	if opts.Staff != nil {
		r.conns[opts.Staff.Name()] = opts.Staff
	}
	return r
}

// RegisterConnector adds a connector for user-side delivery.
func (r *Router) RegisterConnector(c connector.Connector) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	r.conns[c.Name()] = c
}

// Correlation exposes the correlation table (admin API, tests).
func (r *Router) Correlation() *Correlation {
	return r.corr
}

// HandleInbound is the single entry point for every inbound transport event.
// Events from the staff destination are staff replies or commands; everything
// else is an end-user event.
func (r *Router) HandleInbound(ctx context.Context, msg connector.InboundMessage) error {
	if r.fromStaff(msg) {
		return r.handleStaffEvent(ctx, msg)
	}
	return r.handleUserEvent(ctx, msg)
}

func (r *Router) fromStaff(msg connector.InboundMessage) bool {
	return msg.Channel == r.staff.Name() && msg.ChatID == r.staffDest
}

// --- user side ---

func (r *Router) handleUserEvent(ctx context.Context, msg connector.InboundMessage) error {
	// A user event must come from a one-on-one chat. Anything a user posts
	// in a shared chat is not support traffic, and letting it through would
	// overwrite the delivery destination with that chat, so later staff
	// replies would land where bystanders can read them.
	if !msg.Direct {
		r.logger.Debug("ignoring non-direct user event", "user", msg.SenderID, "chat", msg.ChatID)
		return nil
	}

	// Directory update happens on every inbound event, decoupled from
	// ticket creation, so the latest handle always wins.
	r.dir.Observe(msg.SenderID, msg.SenderHandle, msg.SenderName, msg.Channel, msg.ChatID)

	if msg.Command != "" {
		return r.handleUserCommand(ctx, msg)
	}
	return r.relayUserMessage(ctx, msg)
}

func (r *Router) relayUserMessage(ctx context.Context, msg connector.InboundMessage) error {
	if msg.Content == "" && msg.Attachment == nil {
		return nil
	}

	userID := msg.SenderID

	// Admission control: user content only, commands and staff flow bypass it.
	if !r.limiter.Admit(userID, r.now()) {
		r.logger.Debug("rate limited", "user", userID)
		return r.replyTo(ctx, msg, "⏳ Please wait a moment before sending another message.")
	}

	// Decide phase under the per-user lock; no delivery while holding it.
	unlock := r.locks.lock(userID)
	ticketID, ok := r.dir.ActiveTicket(userID)
	var tk *protocol.Ticket
	if ok {
		var err error
		tk, err = r.store.Get(ticketID)
		if err == nil {
			// First relay transitions pending → processing; idempotent after that.
			if err = r.store.MarkProcessing(ticketID); err == nil {
				tk.Status = protocol.StatusProcessing
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, ticket.ErrAlreadyClosed) || errors.Is(err, ticket.ErrNotFound):
			// A stale pointer to a closed or missing ticket is treated as no
			// active ticket rather than surfacing store internals to the user.
			r.logger.Warn("active ticket unusable", "user", userID, "ticket", ticketID, "error", err)
			r.dir.ClearActive(userID)
			ok = false
		default:
			// A transient store failure says nothing about the ticket itself.
			// Keep the pointer, or the still-open ticket would be orphaned
			// and the user's next /new would open a second one.
			unlock()
			r.logger.Error("ticket lookup failed", "user", userID, "ticket", ticketID, "error", err)
			return r.replyTo(ctx, msg, "Sorry, something went wrong. Please try again in a moment.")
		}
	}
	unlock()

	if !ok {
		return r.replyTo(ctx, msg, "You don't have an open support ticket. Send /new to create one, then resend your message.")
	}

	user, _ := r.dir.Get(userID)
	out := connector.OutboundMessage{
		Destination: r.staffDest,
		Content:     staffHeader(tk, user) + msg.Content,
		Attachment:  msg.Attachment,
	}
	handle, err := r.staff.Send(ctx, out)
	if err != nil {
		r.logger.Error("relay to staff failed", "ticket", ticketID, "error", err)
		r.notify(ctx, msg.Channel, msg.ChatID, "Sorry, your message could not be delivered. Please try again.")
		return fmt.Errorf("relay: deliver to staff: %w", err)
	}

	r.corr.Record(handle, ticketID)
	r.appendTranscript(ticketID, protocol.SenderUser, contentSummary(msg))
	r.logger.Info("relayed to staff", "ticket", ticketID, "user", userID)
	return nil
}

// --- staff side ---

func (r *Router) handleStaffEvent(ctx context.Context, msg connector.InboundMessage) error {
	if msg.Command != "" {
		return r.handleStaffCommand(ctx, msg)
	}
	return r.relayStaffReply(ctx, msg)
}

func (r *Router) relayStaffReply(ctx context.Context, msg connector.InboundMessage) error {
	// Not every staff-channel message is an answer to a user; without a
	// reply anchor (or with one we never relayed) there is nothing to route.
	if msg.ReplyTo == "" {
		return nil
	}
	ticketID, ok := r.corr.Resolve(msg.ReplyTo)
	if !ok {
		return nil
	}
	if msg.Content == "" && msg.Attachment == nil {
		return nil
	}

	tk, err := r.store.Get(ticketID)
	if err != nil {
		return fmt.Errorf("relay: staff reply: %w", err)
	}

	// Check-not-closed and the first-relay transition are one critical
	// section against the owner's other events.
	unlock := r.locks.lock(tk.OwnerID)
	err = r.store.MarkProcessing(ticketID)
	unlock()
	if errors.Is(err, ticket.ErrAlreadyClosed) {
		return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s is closed. Use /open %s to reopen it before replying.", ticketID, ticketID))
	}
	if err != nil {
		return fmt.Errorf("relay: staff reply: %w", err)
	}

	owner, ok := r.dir.Get(tk.OwnerID)
	if !ok || owner.ChatID == "" {
		return r.replyTo(ctx, msg, fmt.Sprintf("Cannot reach the owner of ticket %s.", ticketID))
	}

	handle, err := r.deliverToUser(ctx, owner, connector.OutboundMessage{
		Destination: owner.ChatID,
		Content:     msg.Content,
		Attachment:  msg.Attachment,
	})
	if err != nil {
		r.logger.Error("relay to user failed", "ticket", ticketID, "user", owner.ID, "error", err)
		r.replyTo(ctx, msg, fmt.Sprintf("⚠️ Delivery to the user failed for ticket %s: %v", ticketID, err))
		return fmt.Errorf("relay: deliver to user: %w", err)
	}

	r.corr.Record(handle, ticketID)
	r.appendTranscript(ticketID, protocol.SenderStaff, contentSummary(msg))
	r.logger.Info("relayed to user", "ticket", ticketID, "user", owner.ID)
	return nil
}

// --- delivery helpers ---

func (r *Router) connectorFor(channel string) (connector.Connector, bool) {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	c, ok := r.conns[channel]
	return c, ok
}

func (r *Router) deliverToUser(ctx context.Context, u protocol.User, out connector.OutboundMessage) (connector.Handle, error) {
	conn, ok := r.connectorFor(u.Channel)
	if !ok {
		return "", fmt.Errorf("relay: no connector %q for user %s", u.Channel, u.ID)
	}
	return conn.Send(ctx, out)
}

// replyTo answers an inbound event in the chat it arrived in.
func (r *Router) replyTo(ctx context.Context, msg connector.InboundMessage, text string) error {
	return r.notify(ctx, msg.Channel, msg.ChatID, text)
}

// notify sends a best-effort text message; failures are logged, not returned
// as routing errors.
func (r *Router) notify(ctx context.Context, channel, chatID, text string) error {
	conn, ok := r.connectorFor(channel)
	if !ok {
		r.logger.Warn("no connector for notification", "channel", channel)
		return nil
	}
	if _, err := conn.Send(ctx, connector.OutboundMessage{Destination: chatID, Content: text}); err != nil {
		r.logger.Warn("notification failed", "channel", channel, "chat", chatID, "error", err)
	}
	return nil
}

// notifyStaff sends a best-effort message to the staff destination.
func (r *Router) notifyStaff(ctx context.Context, text string) {
	if _, err := r.staff.Send(ctx, connector.OutboundMessage{Destination: r.staffDest, Content: text}); err != nil {
		r.logger.Warn("staff notification failed", "error", err)
	}
}

func (r *Router) appendTranscript(ticketID, sender, content string) {
	e := protocol.TranscriptEntry{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Timestamp: r.now(),
	}
	if err := r.store.AppendTranscript(ticketID, e); err != nil {
		r.logger.Error("transcript append failed", "ticket", ticketID, "error", err)
	}
}

// --- admin API surface ---

// ListTickets returns tickets matching the filter.
func (r *Router) ListTickets(f ticket.Filter) ([]*protocol.Ticket, error) {
	return r.store.List(f)
}

// GetTicket retrieves a ticket by id.
func (r *Router) GetTicket(id string) (*protocol.Ticket, error) {
	return r.store.Get(id)
}

// ExportTicket renders the flat transcript document for a ticket.
func (r *Router) ExportTicket(id string) (string, error) {
	tk, err := r.store.Get(id)
	if err != nil {
		return "", err
	}
	entries, err := r.store.Transcript(id)
	if err != nil {
		return "", err
	}
	owner, _ := r.dir.Get(tk.OwnerID)
	return renderExport(tk, owner, entries), nil
}

// ListUsers returns a snapshot of the user directory.
func (r *Router) ListUsers() []protocol.User {
	return r.dir.Snapshot()
}

// GetUser resolves a user by id or @handle.
func (r *Router) GetUser(ref string) (protocol.User, bool) {
	return r.dir.Resolve(ref)
}

// --- per-user serialization ---

// keyedMutex serializes events per user so check-then-act sequences against
// one user's ticket state cannot interleave. Locks are never removed; the
// population is bounded by the number of users ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
