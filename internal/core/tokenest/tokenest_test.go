package tokenest

import (
	"testing"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
)

func TestCountTextDeterministic(t *testing.T) {
	e := New()
	a, _ := e.CountText("hello world, this is a test")
	b, _ := e.CountText("hello world, this is a test")
	if a != b {
		t.Fatalf("expected deterministic count, got %d and %d", a, b)
	}
	if a <= 0 {
		t.Fatalf("expected positive token count, got %d", a)
	}
}

func TestCountTextEmpty(t *testing.T) {
	e := New()
	n, fellBack := e.CountText("")
	if n != 0 || fellBack {
		t.Fatalf("expected 0 tokens no fallback for empty text, got %d fellBack=%v", n, fellBack)
	}
}

func TestFallbackRatio(t *testing.T) {
	text := "0123456789"
	if got, want := fallbackCount(text), 4; got != want {
		t.Fatalf("fallbackCount(%q) = %d, want %d", text, got, want)
	}
}

func TestCountMessagesIncludesOverheadAndToolCalls(t *testing.T) {
	e := New()
	msgs := []message.Message{
		message.NewUserMessage(message.NewText("hi there")),
		message.NewModelMessage(nil, []message.ToolCall{{Name: "ema_reply", Args: map[string]any{"k": "v"}}}),
	}
	total, _ := e.CountMessages(msgs)
	if total <= 2*PerMessageOverhead {
		t.Fatalf("expected total to exceed bare per-message overhead, got %d", total)
	}
}
