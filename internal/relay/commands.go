package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AntonysrmNafi/blockveil-support-bot/internal/connector"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/ticket"
	"github.com/AntonysrmNafi/blockveil-support-bot/pkg/protocol"
)

const listLimit = 50

// --- user commands ---

func (r *Router) handleUserCommand(ctx context.Context, msg connector.InboundMessage) error {
	switch msg.Command {
	case "start":
		return r.replyTo(ctx, msg, welcomeText)
	case "help":
		return r.replyTo(ctx, msg, userHelpText)
	case "new", "create":
		return r.cmdUserNew(ctx, msg)
	case "status":
		return r.cmdUserStatus(ctx, msg)
	case "reopen":
		return r.cmdUserReopen(ctx, msg)
	case "requestclose":
		return r.cmdUserRequestClose(ctx, msg)
	default:
		return r.replyTo(ctx, msg, "Unknown command. Send /help for the list of commands.")
	}
}

func (r *Router) cmdUserNew(ctx context.Context, msg connector.InboundMessage) error {
	userID := msg.SenderID

	unlock := r.locks.lock(userID)
	if active, ok := r.dir.ActiveTicket(userID); ok {
		unlock()
		return r.replyTo(ctx, msg, fmt.Sprintf("You already have an open ticket (%s). Just send your message.", active))
	}

	id, err := r.gen.Next(r.store.Exists)
	if err != nil {
		unlock()
		r.logger.Error("id generation failed", "user", userID, "error", err)
		return r.replyTo(ctx, msg, "Sorry, something went wrong. Please try again.")
	}
	tk := &protocol.Ticket{
		ID:          id,
		OwnerID:     userID,
		OwnerHandle: msg.SenderHandle,
		Status:      protocol.StatusPending,
		CreatedAt:   r.now(),
	}
	if err := r.store.Create(tk); err != nil {
		unlock()
		r.logger.Error("ticket create failed", "user", userID, "error", err)
		return r.replyTo(ctx, msg, "Sorry, something went wrong. Please try again.")
	}
	r.dir.RecordTicket(userID, id)
	unlock()

	r.logger.Info("ticket created", "ticket", id, "user", userID)
	return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s created. Send your message and our team will respond as soon as possible.", id))
}

func (r *Router) cmdUserStatus(ctx context.Context, msg connector.InboundMessage) error {
	userID := msg.SenderID

	if active, ok := r.dir.ActiveTicket(userID); ok {
		tk, err := r.store.Get(active)
		if err == nil {
			return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s is %s (opened %s).", tk.ID, tk.Status, tk.CreatedAt.UTC().Format("2006-01-02 15:04 MST")))
		}
	}

	// No active ticket: report the most recent one, if any.
	user, ok := r.dir.Get(userID)
	if !ok || len(user.Tickets) == 0 {
		return r.replyTo(ctx, msg, "You have no tickets yet. Send /new to open one.")
	}
	last := user.Tickets[len(user.Tickets)-1]
	tk, err := r.store.Get(last)
	if err != nil {
		return r.replyTo(ctx, msg, "You have no open ticket. Send /new to open one.")
	}
	return r.replyTo(ctx, msg, fmt.Sprintf("Your last ticket %s is %s. Send /new to open a new one.", tk.ID, tk.Status))
}

func (r *Router) cmdUserReopen(ctx context.Context, msg connector.InboundMessage) error {
	userID := msg.SenderID
	target := strings.TrimSpace(msg.Args)

	user, ok := r.dir.Get(userID)
	if !ok || len(user.Tickets) == 0 {
		return r.replyTo(ctx, msg, "You have no tickets to reopen.")
	}
	if target == "" {
		target = user.Tickets[len(user.Tickets)-1]
	}

	// Users may only reopen their own tickets; an unknown or foreign id gets
	// the same generic answer.
	tk, err := r.store.Get(target)
	if err != nil || tk.OwnerID != userID {
		return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s not found.", target))
	}

	unlock := r.locks.lock(userID)
	if active, ok := r.dir.ActiveTicket(userID); ok {
		unlock()
		return r.replyTo(ctx, msg, fmt.Sprintf("You already have an open ticket (%s); close it before reopening another.", active))
	}
	err = r.store.Reopen(target)
	if err == nil {
		r.dir.SetActive(userID, target)
	}
	unlock()

	if errors.Is(err, ticket.ErrNotClosed) {
		return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s is not closed.", target))
	}
	if err != nil {
		r.logger.Error("reopen failed", "ticket", target, "error", err)
		return r.replyTo(ctx, msg, "Sorry, something went wrong. Please try again.")
	}

	r.logger.Info("ticket reopened", "ticket", target, "user", userID, "by", "user")
	r.notifyStaff(ctx, fmt.Sprintf("Ticket %s was reopened by its owner (%s).", target, describeUser(user)))
	return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s reopened. Send your message.", target))
}

func (r *Router) cmdUserRequestClose(ctx context.Context, msg connector.InboundMessage) error {
	userID := msg.SenderID
	target := strings.TrimSpace(msg.Args)
	if target == "" {
		active, ok := r.dir.ActiveTicket(userID)
		if !ok {
			return r.replyTo(ctx, msg, "You have no open ticket.")
		}
		target = active
	}

	tk, err := r.store.Get(target)
	if err != nil || tk.OwnerID != userID {
		return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s not found.", target))
	}
	if tk.Status == protocol.StatusClosed {
		return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s is already closed.", target))
	}

	user, _ := r.dir.Get(userID)
	r.notifyStaff(ctx, fmt.Sprintf("%s requests closing ticket %s. Use /close %s to confirm.", describeUser(user), target, target))
	return r.replyTo(ctx, msg, fmt.Sprintf("Close request for ticket %s sent to the team.", target))
}

// --- staff commands ---

func (r *Router) handleStaffCommand(ctx context.Context, msg connector.InboundMessage) error {
	switch msg.Command {
	case "help":
		return r.replyTo(ctx, msg, staffHelpText)
	case "close":
		return r.cmdStaffClose(ctx, msg)
	case "open", "reopen":
		return r.cmdStaffOpen(ctx, msg)
	case "status":
		return r.cmdStaffStatus(ctx, msg)
	case "list":
		return r.cmdStaffList(ctx, msg)
	case "send":
		return r.cmdStaffSend(ctx, msg)
	case "export":
		return r.cmdStaffExport(ctx, msg)
	case "history":
		return r.cmdStaffHistory(ctx, msg)
	case "lookup":
		return r.cmdStaffLookup(ctx, msg)
	default:
		return r.replyTo(ctx, msg, "Unknown command. Send /help for staff commands.")
	}
}

// targetTicket resolves a staff command's ticket argument: an explicit id,
// or the ticket of the relayed message the command replies to.
func (r *Router) targetTicket(msg connector.InboundMessage) (string, bool) {
	if arg := strings.TrimSpace(msg.Args); arg != "" {
		return strings.Fields(arg)[0], true
	}
	if msg.ReplyTo != "" {
		if id, ok := r.corr.Resolve(msg.ReplyTo); ok {
			return id, true
		}
	}
	return "", false
}

func (r *Router) cmdStaffClose(ctx context.Context, msg connector.InboundMessage) error {
	id, ok := r.targetTicket(msg)
	if !ok {
		return r.replyTo(ctx, msg, "Usage: /close <ticket_id> (or reply to a relayed message)")
	}

	tk, err := r.store.Get(id)
	if err != nil {
		return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s not found.", id))
	}

	unlock := r.locks.lock(tk.OwnerID)
	err = r.store.Close(id)
	if err == nil {
		if active, ok := r.dir.ActiveTicket(tk.OwnerID); ok && active == id {
			r.dir.ClearActive(tk.OwnerID)
		}
	}
	unlock()

	if errors.Is(err, ticket.ErrAlreadyClosed) {
		return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s is already closed.", id))
	}
	if err != nil {
		return fmt.Errorf("relay: close: %w", err)
	}

	r.logger.Info("ticket closed", "ticket", id, "by", "staff")

	// The transition is committed; owner notification is best-effort.
	if owner, ok := r.dir.Get(tk.OwnerID); ok && owner.ChatID != "" {
		if _, err := r.deliverToUser(ctx, owner, connector.OutboundMessage{
			Destination: owner.ChatID,
			Content:     fmt.Sprintf("Your support ticket %s has been closed by our team. Send /new if you need anything else.", id),
		}); err != nil {
			r.logger.Warn("close notification failed", "ticket", id, "error", err)
			return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s closed, but the user could not be notified: %v", id, err))
		}
	}
	return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s closed.", id))
}

func (r *Router) cmdStaffOpen(ctx context.Context, msg connector.InboundMessage) error {
	id, ok := r.targetTicket(msg)
	if !ok {
		return r.replyTo(ctx, msg, "Usage: /open <ticket_id>")
	}

	tk, err := r.store.Get(id)
	if err != nil {
		return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s not found.", id))
	}

	unlock := r.locks.lock(tk.OwnerID)
	if active, ok := r.dir.ActiveTicket(tk.OwnerID); ok {
		unlock()
		return r.replyTo(ctx, msg, fmt.Sprintf("The user already has an active ticket (%s).", active))
	}
	err = r.store.Reopen(id)
	if err == nil {
		r.dir.SetActive(tk.OwnerID, id)
	}
	unlock()

	if errors.Is(err, ticket.ErrNotClosed) {
		return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s is not closed.", id))
	}
	if err != nil {
		return fmt.Errorf("relay: reopen: %w", err)
	}

	r.logger.Info("ticket reopened", "ticket", id, "by", "staff")

	if owner, ok := r.dir.Get(tk.OwnerID); ok && owner.ChatID != "" {
		if _, err := r.deliverToUser(ctx, owner, connector.OutboundMessage{
			Destination: owner.ChatID,
			Content:     fmt.Sprintf("Your support ticket %s has been reopened by our team.", id),
		}); err != nil {
			r.logger.Warn("reopen notification failed", "ticket", id, "error", err)
			return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s reopened, but the user could not be notified: %v", id, err))
		}
	}
	return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s reopened.", id))
}

func (r *Router) cmdStaffStatus(ctx context.Context, msg connector.InboundMessage) error {
	id, ok := r.targetTicket(msg)
	if !ok {
		return r.replyTo(ctx, msg, "Usage: /status <ticket_id>")
	}
	tk, err := r.store.Get(id)
	if err != nil {
		return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s not found.", id))
	}

	ownerLabel := tk.OwnerID
	if owner, ok := r.dir.Get(tk.OwnerID); ok {
		ownerLabel = describeUser(owner)
	}
	text := fmt.Sprintf("Ticket %s\nStatus : %s\nOwner  : %s\nOpened : %s", tk.ID, tk.Status, ownerLabel, tk.CreatedAt.UTC().Format(time.RFC3339))
	if tk.ClosedAt != nil {
		text += fmt.Sprintf("\nClosed : %s", tk.ClosedAt.UTC().Format(time.RFC3339))
	}
	return r.replyTo(ctx, msg, text)
}

func (r *Router) cmdStaffList(ctx context.Context, msg connector.InboundMessage) error {
	var f ticket.Filter
	switch strings.TrimSpace(msg.Args) {
	case "open":
		f.Statuses = ticket.OpenStatuses
	case "closed":
		f.Statuses = []protocol.Status{protocol.StatusClosed}
	default:
		return r.replyTo(ctx, msg, "Usage: /list open|closed")
	}
	f.Limit = listLimit

	tickets, err := r.store.List(f)
	if err != nil {
		return fmt.Errorf("relay: list: %w", err)
	}
	if len(tickets) == 0 {
		return r.replyTo(ctx, msg, "No tickets in that bucket.")
	}
	lines := make([]string, 0, len(tickets))
	for _, t := range tickets {
		lines = append(lines, formatTicketLine(t))
	}
	return r.replyTo(ctx, msg, strings.Join(lines, "\n"))
}

func (r *Router) cmdStaffSend(ctx context.Context, msg connector.InboundMessage) error {
	target, text, ok := strings.Cut(strings.TrimSpace(msg.Args), " ")
	text = strings.TrimSpace(text)
	if !ok || text == "" {
		return r.replyTo(ctx, msg, "Usage: /send <@all|ticket_id|@handle|user_id> <text>")
	}

	if target == "@all" {
		return r.broadcast(ctx, msg, text)
	}

	// A ticket id addresses its owner and is recorded on the transcript;
	// direct sends to a user are off the record.
	if tk, err := r.store.Get(target); err == nil {
		owner, ok := r.dir.Get(tk.OwnerID)
		if !ok || owner.ChatID == "" {
			return r.replyTo(ctx, msg, fmt.Sprintf("Cannot reach the owner of ticket %s.", tk.ID))
		}
		handle, err := r.deliverToUser(ctx, owner, connector.OutboundMessage{Destination: owner.ChatID, Content: text})
		if err != nil {
			return r.replyTo(ctx, msg, fmt.Sprintf("⚠️ Delivery failed: %v", err))
		}
		r.corr.Record(handle, tk.ID)
		r.appendTranscript(tk.ID, protocol.SenderStaff, text)
		return r.replyTo(ctx, msg, fmt.Sprintf("Sent to the owner of ticket %s.", tk.ID))
	}

	user, found := r.dir.Resolve(target)
	if !found || user.ChatID == "" {
		return r.replyTo(ctx, msg, fmt.Sprintf("%s not found.", target))
	}
	if _, err := r.deliverToUser(ctx, user, connector.OutboundMessage{Destination: user.ChatID, Content: text}); err != nil {
		return r.replyTo(ctx, msg, fmt.Sprintf("⚠️ Delivery failed: %v", err))
	}
	return r.replyTo(ctx, msg, fmt.Sprintf("Sent to %s.", describeUser(user)))
}

// broadcast delivers text to every known user. Each delivery is independent:
// one failure never aborts the rest, and the aggregate is reported to staff.
func (r *Router) broadcast(ctx context.Context, msg connector.InboundMessage, text string) error {
	users := r.dir.Snapshot()
	var sent, failed int
	for _, u := range users {
		if u.ChatID == "" {
			failed++
			continue
		}
		if _, err := r.deliverToUser(ctx, u, connector.OutboundMessage{Destination: u.ChatID, Content: text}); err != nil {
			r.logger.Warn("broadcast delivery failed", "user", u.ID, "error", err)
			failed++
			continue
		}
		sent++
	}
	r.logger.Info("broadcast complete", "sent", sent, "failed", failed, "total", len(users))
	return r.replyTo(ctx, msg, fmt.Sprintf("Broadcast complete: sent %d, failed %d, total %d.", sent, failed, len(users)))
}

func (r *Router) cmdStaffExport(ctx context.Context, msg connector.InboundMessage) error {
	id, ok := r.targetTicket(msg)
	if !ok {
		return r.replyTo(ctx, msg, "Usage: /export <ticket_id>")
	}
	doc, err := r.ExportTicket(id)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return r.replyTo(ctx, msg, fmt.Sprintf("Ticket %s not found.", id))
		}
		return fmt.Errorf("relay: export: %w", err)
	}
	return r.replyTo(ctx, msg, doc)
}

func (r *Router) cmdStaffHistory(ctx context.Context, msg connector.InboundMessage) error {
	ref := strings.TrimSpace(msg.Args)
	if ref == "" {
		return r.replyTo(ctx, msg, "Usage: /history <@handle|user_id>")
	}
	user, ok := r.dir.Resolve(ref)
	if !ok {
		return r.replyTo(ctx, msg, fmt.Sprintf("%s not found.", ref))
	}
	if len(user.Tickets) == 0 {
		return r.replyTo(ctx, msg, fmt.Sprintf("%s has no tickets.", describeUser(user)))
	}

	lines := make([]string, 0, len(user.Tickets)+1)
	lines = append(lines, fmt.Sprintf("Tickets of %s:", describeUser(user)))
	for _, id := range user.Tickets {
		tk, err := r.store.Get(id)
		if err != nil {
			continue
		}
		lines = append(lines, formatTicketLine(tk))
	}
	return r.replyTo(ctx, msg, strings.Join(lines, "\n"))
}

func (r *Router) cmdStaffLookup(ctx context.Context, msg connector.InboundMessage) error {
	ref := strings.TrimSpace(msg.Args)
	if ref == "" {
		return r.replyTo(ctx, msg, "Usage: /lookup <@handle|user_id>")
	}
	user, ok := r.dir.Resolve(ref)
	if !ok {
		return r.replyTo(ctx, msg, fmt.Sprintf("%s not found.", ref))
	}

	active := "none"
	if user.Active != "" {
		active = user.Active
	}
	text := fmt.Sprintf("User %s\nHandle  : %s\nName    : %s\nChannel : %s\nTickets : %d\nActive  : %s",
		user.ID, orNA(atHandle(user.Handle)), orNA(user.DisplayName), user.Channel, len(user.Tickets), active)
	return r.replyTo(ctx, msg, text)
}

func describeUser(u protocol.User) string {
	if u.Handle != "" {
		return fmt.Sprintf("@%s (%s)", u.Handle, u.ID)
	}
	if u.DisplayName != "" {
		return fmt.Sprintf("%s (%s)", u.DisplayName, u.ID)
	}
	return u.ID
}

func atHandle(h string) string {
	if h == "" {
		return ""
	}
	return "@" + h
}
