package connector

import "context"

// Handle is an opaque identifier for one specific delivered message.
// A later inbound event that replies to that message carries the same handle,
// which is the only routing anchor a shared multi-party channel offers.
// Connectors choose the encoding (Telegram uses chat and message id, Slack
// uses channel and ts); nothing outside the connector may parse it.
type Handle string

// AttachmentKind classifies relayed media.
type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentDocument AttachmentKind = "document"
	AttachmentVoice    AttachmentKind = "voice"
)

// Attachment is a media item passed through by platform file reference.
// The reference is only meaningful to the connector that produced it.
type Attachment struct {
	Kind AttachmentKind
	Ref  string
}

// OutboundMessage is a message sent to an external platform.
type OutboundMessage struct {
	Destination string // platform-specific chat/channel identifier
	Content     string // message text, or caption when an attachment is set
	ReplyTo     Handle // optional: deliver as a reply to this earlier message
	Attachment  *Attachment
}

// InboundMessage is a message received from an external platform.
type InboundMessage struct {
	Channel      string // connector name (e.g. "telegram")
	SenderID     string // platform-specific stable sender identity
	SenderHandle string // sender's handle without the @ prefix, may be empty
	SenderName   string // sender's display name, may be empty
	ChatID       string // chat the message arrived in
	Direct       bool   // true when the chat is a one-on-one conversation with the sender
	Content      string // text, or caption when an attachment is set
	Attachment   *Attachment
	ReplyTo      Handle // handle of the message this one replies to, if any
	Command      string // bot command without the leading slash, empty otherwise
	Args         string // raw argument string following the command
}

// InboundHandler processes messages received from external platforms.
type InboundHandler func(ctx context.Context, msg InboundMessage) error

// Connector is the interface for external messaging platforms.
type Connector interface {
	// Name returns the connector type (e.g. "telegram", "slack").
	Name() string
	// Start begins listening for inbound messages. Blocks until context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
	// Send delivers an outbound message and returns the handle of the
	// delivered copy, so the caller can correlate later replies to it.
	Send(ctx context.Context, msg OutboundMessage) (Handle, error)
}
