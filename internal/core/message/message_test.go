package message

import "testing"

func TestNewUserMessage(t *testing.T) {
	m := NewUserMessage(NewText("hi"))
	if m.Kind != KindUser {
		t.Fatalf("expected KindUser, got %v", m.Kind)
	}
	if m.Text() != "hi" {
		t.Fatalf("expected text %q, got %q", "hi", m.Text())
	}
}

func TestModelMessageHasToolCalls(t *testing.T) {
	noCalls := NewModelMessage([]Content{NewText("done")}, nil)
	if noCalls.HasToolCalls() {
		t.Fatalf("expected no tool calls")
	}

	withCalls := NewModelMessage(nil, []ToolCall{{Name: "foo"}})
	if !withCalls.HasToolCalls() {
		t.Fatalf("expected tool calls")
	}
}

func TestToolMessageInvariant(t *testing.T) {
	ok := ToolResult{Success: true, Content: "result"}
	if ok.Success && ok.Content == "" {
		t.Fatalf("success result must carry content")
	}

	fail := ToolResult{Success: false, Error: "boom"}
	if fail.Success || fail.Error == "" {
		t.Fatalf("failed result must carry error")
	}

	tm := NewToolMessage("foo", "call-1", ok)
	if tm.Kind != KindTool || tm.ToolCallID != "call-1" {
		t.Fatalf("unexpected tool message: %+v", tm)
	}
}

func TestMultiContentTextJoins(t *testing.T) {
	m := NewUserMessage(NewText("a"), NewText("b"))
	if got, want := m.Text(), "a\nb"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}
