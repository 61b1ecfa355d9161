package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/AntonysrmNafi/blockveil-support-bot/internal/connector"
)

// Config holds Telegram connector configuration.
type Config struct {
	Token       string  // Bot token from @BotFather
	StaffChatID int64   // support group chat id; the only non-private chat served
	AllowFrom   []int64 // Allowed Telegram user IDs (empty = allow all)
}

// Connector implements the connector.Connector interface for Telegram. One
// instance serves both private user chats and the staff group; routing between
// the two is the router's job.
type Connector struct {
	bot     *tgbotapi.BotAPI
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// New creates a new Telegram connector.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("telegram bot authorized", "username", bot.Self.UserName)

	return &Connector{
		bot:     bot,
		config:  cfg,
		handler: handler,
		logger:  logger,
	}, nil
}

func (c *Connector) Name() string { return "telegram" }

// Start begins long-polling for updates. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := c.bot.GetUpdatesChan(u)

	c.logger.Info("telegram connector started", "bot", c.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			c.handleUpdate(ctx, update.Message)

		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info("telegram connector stopped")
			return ctx.Err()
		}
	}
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send delivers a message to a Telegram chat and returns the handle of the
// delivered copy.
func (c *Connector) Send(_ context.Context, msg connector.OutboundMessage) (connector.Handle, error) {
	chatID, err := strconv.ParseInt(msg.Destination, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram: invalid destination %q: %w", msg.Destination, err)
	}

	if msg.Attachment == nil && strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("telegram: empty message to %s", msg.Destination)
	}

	var chattable tgbotapi.Chattable
	if msg.Attachment != nil {
		chattable = mediaFor(chatID, msg)
	} else {
		m := tgbotapi.NewMessage(chatID, msg.Content)
		m.DisableWebPagePreview = true
		if replyChat, replyMsg, ok := ParseHandle(msg.ReplyTo); ok && replyChat == chatID {
			m.ReplyToMessageID = replyMsg
		}
		chattable = m
	}

	sent, err := c.bot.Send(chattable)
	if err != nil {
		return "", fmt.Errorf("telegram: send to %s: %w", msg.Destination, err)
	}
	return EncodeHandle(chatID, sent.MessageID), nil
}

// mediaFor builds the media message for an attachment passthrough. Telegram
// lets a bot re-send any file it has seen by file id, so relaying media never
// touches the file bytes.
func mediaFor(chatID int64, msg connector.OutboundMessage) tgbotapi.Chattable {
	file := tgbotapi.FileID(msg.Attachment.Ref)
	switch msg.Attachment.Kind {
	case connector.AttachmentPhoto:
		m := tgbotapi.NewPhoto(chatID, file)
		m.Caption = msg.Content
		return m
	case connector.AttachmentVideo:
		m := tgbotapi.NewVideo(chatID, file)
		m.Caption = msg.Content
		return m
	case connector.AttachmentVoice:
		m := tgbotapi.NewVoice(chatID, file)
		m.Caption = msg.Content
		return m
	default:
		m := tgbotapi.NewDocument(chatID, file)
		m.Caption = msg.Content
		return m
	}
}

func (c *Connector) handleUpdate(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	// Users talk to the bot in private chats only. The sole group chat the
	// bot serves is the staff group; messages from any other group are
	// ignored so they can never become user events or redirect deliveries.
	if !msg.Chat.IsPrivate() && chatID != c.config.StaffChatID {
		c.logger.Debug("ignoring non-private chat", "chat_id", chatID)
		return
	}

	// Access control
	if len(c.config.AllowFrom) > 0 && !contains(c.config.AllowFrom, userID) {
		c.logger.Warn("unauthorized user", "user_id", userID, "username", msg.From.UserName)
		return
	}

	inbound := connector.InboundMessage{
		Channel:      "telegram",
		SenderID:     strconv.FormatInt(userID, 10),
		SenderHandle: msg.From.UserName,
		SenderName:   displayName(msg.From),
		ChatID:       strconv.FormatInt(chatID, 10),
		Direct:       msg.Chat.IsPrivate(),
	}

	if msg.ReplyToMessage != nil {
		inbound.ReplyTo = EncodeHandle(chatID, msg.ReplyToMessage.MessageID)
	}

	if msg.IsCommand() {
		inbound.Command = msg.Command()
		inbound.Args = msg.CommandArguments()
	} else {
		inbound.Content = msg.Text
		if inbound.Content == "" {
			inbound.Content = msg.Caption
		}
		inbound.Attachment = attachmentOf(msg)
		if inbound.Content == "" && inbound.Attachment == nil {
			return
		}
	}

	if err := c.handler(ctx, inbound); err != nil {
		c.logger.Error("inbound handler error",
			"chat_id", chatID,
			"error", err,
		)
	}
}

// attachmentOf extracts the relayable attachment from a message, if any.
// Photos arrive as a size ladder; the last entry is the largest.
func attachmentOf(msg *tgbotapi.Message) *connector.Attachment {
	switch {
	case len(msg.Photo) > 0:
		return &connector.Attachment{Kind: connector.AttachmentPhoto, Ref: msg.Photo[len(msg.Photo)-1].FileID}
	case msg.Video != nil:
		return &connector.Attachment{Kind: connector.AttachmentVideo, Ref: msg.Video.FileID}
	case msg.Document != nil:
		return &connector.Attachment{Kind: connector.AttachmentDocument, Ref: msg.Document.FileID}
	case msg.Voice != nil:
		return &connector.Attachment{Kind: connector.AttachmentVoice, Ref: msg.Voice.FileID}
	}
	return nil
}

func displayName(u *tgbotapi.User) string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// EncodeHandle builds the opaque handle for a delivered Telegram message.
func EncodeHandle(chatID int64, messageID int) connector.Handle {
	return connector.Handle(fmt.Sprintf("telegram:%d:%d", chatID, messageID))
}

// ParseHandle reverses EncodeHandle. Handles from other channels return ok=false.
func ParseHandle(h connector.Handle) (chatID int64, messageID int, ok bool) {
	parts := strings.Split(string(h), ":")
	if len(parts) != 3 || parts[0] != "telegram" {
		return 0, 0, false
	}
	chatID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	messageID, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, false
	}
	return chatID, messageID, true
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
