package logbuf

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestRingEviction(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Add(Entry{Message: fmt.Sprintf("m%d", i), Level: "INFO"})
	}
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}

	got := b.Query(time.Time{}, slog.LevelDebug, 0)
	if len(got) != 3 {
		t.Fatalf("Query returned %d entries", len(got))
	}
	for i, want := range []string{"m2", "m3", "m4"} {
		if got[i].Message != want {
			t.Errorf("entry %d = %q, want %q", i, got[i].Message, want)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	b := New(10)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.Add(Entry{Time: base, Level: "DEBUG", Message: "d"})
	b.Add(Entry{Time: base.Add(time.Minute), Level: "INFO", Message: "i"})
	b.Add(Entry{Time: base.Add(2 * time.Minute), Level: "WARN", Message: "w"})
	b.Add(Entry{Time: base.Add(3 * time.Minute), Level: "ERROR", Message: "e"})

	got := b.Query(time.Time{}, slog.LevelWarn, 0)
	if len(got) != 2 || got[0].Message != "w" || got[1].Message != "e" {
		t.Errorf("level filter = %+v", got)
	}

	got = b.Query(base.Add(90*time.Second), slog.LevelDebug, 0)
	if len(got) != 2 || got[0].Message != "w" {
		t.Errorf("since filter = %+v", got)
	}

	got = b.Query(time.Time{}, slog.LevelDebug, 2)
	if len(got) != 2 || got[0].Message != "w" || got[1].Message != "e" {
		t.Errorf("limit keeps newest = %+v", got)
	}
}

func TestHandlerCapture(t *testing.T) {
	buf := New(16)
	inner := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(NewHandler(inner, buf))

	logger.Info("relayed", "ticket", "BV-abc123")
	logger.With("user", "100").Error("delivery failed", "error", fmt.Errorf("boom"))

	// The buffer captures below the inner handler's level filter.
	got := buf.Query(time.Time{}, slog.LevelDebug, 0)
	if len(got) != 2 {
		t.Fatalf("captured %d entries, want 2", len(got))
	}
	if got[0].Attrs["ticket"] != "BV-abc123" {
		t.Errorf("attrs = %+v", got[0].Attrs)
	}
	if got[1].Attrs["user"] != "100" {
		t.Errorf("With attrs not captured: %+v", got[1].Attrs)
	}
	if got[1].Attrs["error"] != "boom" {
		t.Errorf("error attr = %v", got[1].Attrs["error"])
	}
}
