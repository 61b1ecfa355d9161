package telegram

import (
	"context"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/AntonysrmNafi/blockveil-support-bot/internal/connector"
)

// Verify Connector implements connector.Connector at compile time.
var _ connector.Connector = (*Connector)(nil)

const staffGroup = int64(-1000)

// testConnector returns a connector without a live bot session, enough to
// exercise handleUpdate, and a pointer to the messages the handler received.
func testConnector(cfg Config) (*Connector, *[]connector.InboundMessage) {
	var got []connector.InboundMessage
	c := &Connector{
		config: cfg,
		handler: func(_ context.Context, msg connector.InboundMessage) error {
			got = append(got, msg)
			return nil
		},
		logger: slog.New(slog.DiscardHandler),
	}
	return c, &got
}

func tgMessage(userID, chatID int64, chatType, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, UserName: "alice", FirstName: "Alice"},
		Chat: &tgbotapi.Chat{ID: chatID, Type: chatType},
		Text: text,
	}
}

func TestHandleUpdatePrivateChat(t *testing.T) {
	c, got := testConnector(Config{StaffChatID: staffGroup})

	c.handleUpdate(context.Background(), tgMessage(7, 7, "private", "hello"))

	if len(*got) != 1 {
		t.Fatalf("handler calls = %d, want 1", len(*got))
	}
	msg := (*got)[0]
	if !msg.Direct {
		t.Error("private chat message not marked direct")
	}
	if msg.ChatID != "7" || msg.SenderID != "7" {
		t.Errorf("chat/sender = %q/%q", msg.ChatID, msg.SenderID)
	}
}

func TestHandleUpdateStaffGroup(t *testing.T) {
	c, got := testConnector(Config{StaffChatID: staffGroup})

	c.handleUpdate(context.Background(), tgMessage(7, staffGroup, "supergroup", "on it"))

	if len(*got) != 1 {
		t.Fatalf("handler calls = %d, want 1", len(*got))
	}
	if (*got)[0].Direct {
		t.Error("staff group message marked direct")
	}
}

// A group chat other than the staff group never reaches the handler, so a
// user posting there cannot redirect where their ticket replies land.
func TestHandleUpdateIgnoresForeignGroups(t *testing.T) {
	c, got := testConnector(Config{StaffChatID: staffGroup})

	c.handleUpdate(context.Background(), tgMessage(7, -555, "supergroup", "hi all"))
	c.handleUpdate(context.Background(), tgMessage(7, -556, "group", "/new"))

	if len(*got) != 0 {
		t.Fatalf("handler calls = %d, want 0", len(*got))
	}
}

func TestHandleRoundTrip(t *testing.T) {
	h := EncodeHandle(-1001234567890, 42)
	if h != "telegram:-1001234567890:42" {
		t.Errorf("handle = %q", h)
	}

	chat, msg, ok := ParseHandle(h)
	if !ok || chat != -1001234567890 || msg != 42 {
		t.Errorf("parse = %d, %d, %v", chat, msg, ok)
	}
}

func TestParseHandleRejectsForeign(t *testing.T) {
	cases := []connector.Handle{
		"",
		"slack:C123:1726000000.000100",
		"telegram:abc:42",
		"telegram:100",
		"telegram:100:42:extra",
	}
	for _, h := range cases {
		if _, _, ok := ParseHandle(h); ok {
			t.Errorf("ParseHandle(%q) accepted", h)
		}
	}
}

func TestContains(t *testing.T) {
	ids := []int64{100, 200, 300}

	if !contains(ids, 200) {
		t.Error("expected 200 to be found")
	}
	if contains(ids, 999) {
		t.Error("expected 999 to not be found")
	}
	if contains(nil, 100) {
		t.Error("expected nil slice to return false")
	}
}
