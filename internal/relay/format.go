package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/AntonysrmNafi/blockveil-support-bot/internal/connector"
	"github.com/AntonysrmNafi/blockveil-support-bot/pkg/protocol"
)

const rule = "───────────────────────────"

// welcomeText is the /start greeting, carried over from the original bot.
const welcomeText = `Hello Sir/Mam 👋

Welcome to BlockVeil Support.
You can use this bot to contact the BlockVeil team for support, questions, or assistance. Simply send your message here and our team will respond as soon as possible.

Send /new to open a support ticket, then just type your message.

🔐 Privacy Notice
Your information is kept strictly confidential. We do not share or disclose user data with any third party. All details are used only for support and communication purposes.

📧 Alternative Contact
If needed, you may also contact us via email for further assistance:
support.blockveil@protonmail.com

———

BlockVeil Support Team`

const userHelpText = `Available commands:
/start — Welcome and contact information
/new — Open a support ticket
/status — Show your ticket status
/reopen [ticket_id] — Reopen a closed ticket
/requestclose — Ask the team to close your ticket
/help — Show this help message

With an open ticket, just send your message and the team will reply.`

const staffHelpText = `Staff commands:
/close <ticket_id> (or reply to a relayed message)
/open <ticket_id>
/status <ticket_id>
/list open|closed
/send <@all|ticket_id|@handle|user_id> <text>
/export <ticket_id>
/history <@handle|user_id>
/lookup <@handle|user_id>

Reply to a relayed message to answer the user directly.`

// staffHeader renders the identification block prepended to every message
// relayed into the staff channel. Format carried over from the original
// bot, extended with the ticket line.
func staffHeader(t *protocol.Ticket, u protocol.User) string {
	username := "N/A"
	if u.Handle != "" {
		username = "@" + u.Handle
	}
	var b strings.Builder
	b.WriteString("NEW SUPPORT MESSAGE RECEIVED\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "Ticket\n• ID        : %s\n• Status    : %s\n\n", t.ID, t.Status)
	b.WriteString("User Information\n")
	fmt.Fprintf(&b, "• User ID   : %s\n", u.ID)
	fmt.Fprintf(&b, "• Username  : %s\n", username)
	fmt.Fprintf(&b, "• Full Name : %s\n\n", orNA(u.DisplayName))
	b.WriteString(rule + "\n")
	b.WriteString("Message Content\n")
	b.WriteString(rule + "\n")
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// attachmentLabel is the placeholder recorded for relayed media.
func attachmentLabel(a *connector.Attachment) string {
	switch a.Kind {
	case connector.AttachmentPhoto:
		return "[Photo]"
	case connector.AttachmentVideo:
		return "[Video]"
	case connector.AttachmentDocument:
		return "[File]"
	case connector.AttachmentVoice:
		return "[Voice Message]"
	default:
		return "[Attachment]"
	}
}

// contentSummary flattens a message into the transcript representation:
// the text itself, or the media label plus caption.
func contentSummary(msg connector.InboundMessage) string {
	if msg.Attachment == nil {
		return msg.Content
	}
	label := attachmentLabel(msg.Attachment)
	if msg.Content == "" {
		return label
	}
	return label + " " + msg.Content
}

// renderExport produces the flat transcript document for /export.
func renderExport(t *protocol.Ticket, owner protocol.User, entries []protocol.TranscriptEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket %s\n", t.ID)
	b.WriteString(rule + "\n")
	handle := owner.Handle
	if handle == "" {
		handle = t.OwnerHandle
	}
	if handle != "" {
		fmt.Fprintf(&b, "Owner   : %s (@%s)\n", t.OwnerID, handle)
	} else {
		fmt.Fprintf(&b, "Owner   : %s\n", t.OwnerID)
	}
	fmt.Fprintf(&b, "Status  : %s\n", t.Status)
	fmt.Fprintf(&b, "Opened  : %s\n", t.CreatedAt.UTC().Format(time.RFC3339))
	if t.ClosedAt != nil {
		fmt.Fprintf(&b, "Closed  : %s\n", t.ClosedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString(rule + "\n")
	if len(entries) == 0 {
		b.WriteString("(no messages)\n")
		return b.String()
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s: %s\n", e.Timestamp.UTC().Format("2006-01-02 15:04:05"), e.Sender, e.Content)
	}
	return b.String()
}

// formatTicketLine is one row of a /list or /history response.
func formatTicketLine(t *protocol.Ticket) string {
	return fmt.Sprintf("%s  %-10s  %s  %s", t.ID, t.Status, t.OwnerID, t.CreatedAt.UTC().Format("2006-01-02 15:04"))
}
