package slackconn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/AntonysrmNafi/blockveil-support-bot/internal/connector"
)

// Config holds Slack connector configuration.
type Config struct {
	BotToken     string // xoxb-... Bot User OAuth Token
	AppToken     string // xapp-... App-Level Token (for Socket Mode)
	StaffChannel string // channel id the support team works in
}

// Connector implements connector.Connector for Slack via Socket Mode. It is a
// staff-side connector: the only conversation it carries is the staff channel,
// where thread replies to relayed copies drive the reply routing.
type Connector struct {
	api     *slack.Client
	socket  *socketmode.Client
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
	botID   string
}

// New creates a new Slack connector.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: app_token is required (Socket Mode)")
	}
	if cfg.StaffChannel == "" {
		return nil, fmt.Errorf("slack: staff_channel is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))

	// Test auth and get bot user ID
	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}

	logger.Info("slack bot authorized", "user", authResp.User, "team", authResp.Team)

	socket := socketmode.New(api)

	return &Connector{
		api:     api,
		socket:  socket,
		config:  cfg,
		handler: handler,
		logger:  logger,
		botID:   authResp.UserID,
	}, nil
}

func (c *Connector) Name() string { return "slack" }

// Start begins listening for events via Socket Mode. Blocks until context is
// cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go c.handleEvents(ctx)

	c.logger.Info("slack connector started (socket mode)")
	return c.socket.RunContext(ctx)
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send posts a message to a Slack channel and returns the handle of the
// posted copy. When ReplyTo points at a message in the same channel the post
// goes into that message's thread.
func (c *Connector) Send(_ context.Context, msg connector.OutboundMessage) (connector.Handle, error) {
	text := msg.Content
	if msg.Attachment != nil {
		// Media arrives from other channels by opaque file reference; Slack
		// cannot fetch those bytes, so the copy carries a marker instead.
		label := fmt.Sprintf("[%s attachment]", msg.Attachment.Kind)
		if text == "" {
			text = label
		} else {
			text = label + "\n" + text
		}
	}

	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
	}
	if replyChannel, replyTS, ok := ParseHandle(msg.ReplyTo); ok && replyChannel == msg.Destination {
		opts = append(opts, slack.MsgOptionTS(replyTS))
	}

	channel, ts, err := c.api.PostMessage(msg.Destination, opts...)
	if err != nil {
		return "", fmt.Errorf("slack: send message: %w", err)
	}
	return EncodeHandle(channel, ts), nil
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.socket.Events:
			switch event.Type {
			case socketmode.EventTypeEventsAPI:
				c.handleEventsAPI(ctx, event)
			case socketmode.EventTypeSlashCommand:
				c.handleSlashCommand(ctx, event)
			}
		}
	}
}

func (c *Connector) handleEventsAPI(ctx context.Context, event socketmode.Event) {
	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}

	c.socket.Ack(*event.Request)

	if ev, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
		c.handleMessage(ctx, ev)
	}
}

func (c *Connector) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	// Ignore bot messages (including our own)
	if ev.BotID != "" || ev.User == "" || ev.User == c.botID {
		return
	}
	// Ignore message subtypes (edits, deletes, etc.)
	if ev.SubType != "" {
		return
	}
	if ev.Channel != c.config.StaffChannel {
		return
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}

	inbound := connector.InboundMessage{
		Channel:  "slack",
		SenderID: ev.User,
		ChatID:   ev.Channel,
	}
	if ev.ThreadTimeStamp != "" && ev.ThreadTimeStamp != ev.TimeStamp {
		inbound.ReplyTo = EncodeHandle(ev.Channel, ev.ThreadTimeStamp)
	}

	// Slack has no native bot commands in-channel; a leading slash works the
	// same as it does on Telegram.
	if cmd, args, ok := parseCommand(text); ok {
		inbound.Command = cmd
		inbound.Args = args
	} else {
		inbound.Content = text
	}

	if err := c.handler(ctx, inbound); err != nil {
		c.logger.Error("slack inbound handler error",
			"channel", ev.Channel,
			"user", ev.User,
			"error", err,
		)
	}
}

func (c *Connector) handleSlashCommand(ctx context.Context, event socketmode.Event) {
	cmd, ok := event.Data.(slack.SlashCommand)
	if !ok {
		return
	}

	c.socket.Ack(*event.Request)

	if cmd.ChannelID != c.config.StaffChannel {
		return
	}

	name, args, _ := strings.Cut(strings.TrimSpace(cmd.Text), " ")
	inbound := connector.InboundMessage{
		Channel:  "slack",
		SenderID: cmd.UserID,
		ChatID:   cmd.ChannelID,
		Command:  strings.TrimPrefix(cmd.Command, "/"),
		Args:     strings.TrimSpace(cmd.Text),
	}
	// A generic catch-all slash command carries the real command in its text.
	if inbound.Command == "support" && name != "" {
		inbound.Command = strings.TrimPrefix(name, "/")
		inbound.Args = strings.TrimSpace(args)
	}

	if err := c.handler(ctx, inbound); err != nil {
		c.logger.Error("slack slash command error",
			"command", cmd.Command,
			"user", cmd.UserID,
			"error", err,
		)
	}
}

// parseCommand splits "/close BV-x" style text into a command and arguments.
func parseCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	name, rest, _ := strings.Cut(text[1:], " ")
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(rest), true
}

// EncodeHandle builds the opaque handle for a posted Slack message.
func EncodeHandle(channel, ts string) connector.Handle {
	return connector.Handle("slack:" + channel + ":" + ts)
}

// ParseHandle reverses EncodeHandle. Handles from other channels return ok=false.
func ParseHandle(h connector.Handle) (channel, ts string, ok bool) {
	parts := strings.SplitN(string(h), ":", 3)
	if len(parts) != 3 || parts[0] != "slack" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
