package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/contextmgr"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/eventbus"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/events"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
)

type scriptedClient struct {
	responses []message.LLMResponse
	idx       int
}

func (c *scriptedClient) Generate(ctx context.Context, messages []message.Message, tools []tool.Definition, systemPrompt string) (message.LLMResponse, error) {
	if c.idx >= len(c.responses) {
		return message.LLMResponse{}, context.DeadlineExceeded
	}
	resp := c.responses[c.idx]
	c.idx++
	return resp, nil
}

type replyTool struct{}

func (replyTool) Name() string        { return message.ReplyToolName }
func (replyTool) Description() string { return "reply" }
func (replyTool) Parameters() tool.Parameters {
	return tool.Parameters{Properties: []tool.Property{
		{Name: "think", Schema: map[string]any{"type": "string"}},
		{Name: "expression", Schema: map[string]any{"type": "string"}},
		{Name: "action", Schema: map[string]any{"type": "string"}},
		{Name: "response", Schema: map[string]any{"type": "string"}},
	}}
}
func (replyTool) Execute(ctx context.Context, args map[string]any) (message.ToolResult, error) {
	raw, _ := json.Marshal(message.Reply{
		Think:      args["think"].(string),
		Expression: args["expression"].(string),
		Action:     args["action"].(string),
		Response:   args["response"].(string),
	})
	return message.ToolResult{Success: true, Content: string(raw)}, nil
}

func newRegistry(tools ...tool.Tool) tool.Registry {
	r := tool.NewInMemoryRegistry()
	for _, t := range tools {
		_ = r.Register(t)
	}
	return r
}

func recordEvents(bus *eventbus.Bus) *[]string {
	var order []string
	for _, t := range []string{
		events.TypeStepStarted, events.TypeLlmResponseReceived, events.TypeToolCallStarted,
		events.TypeEmaReplyReceived, events.TypeToolCallFinished, events.TypeRunFinished,
	} {
		t := t
		bus.Subscribe(t, func(e eventbus.Event) { order = append(order, t) })
	}
	return &order
}

// TestSingleTurnReply is scenario S1 from spec §8.
func TestSingleTurnReply(t *testing.T) {
	replyArgs := map[string]any{"think": "t", "expression": "e", "action": "a", "response": "hi"}
	client := &scriptedClient{responses: []message.LLMResponse{
		{
			Message: message.NewModelMessage(nil, []message.ToolCall{
				{ID: "1", Name: message.ReplyToolName, Args: replyArgs},
			}),
			FinishReason: "tool_calls",
		},
		{
			Message:      message.NewModelMessage([]message.Content{message.NewText("done")}, nil),
			FinishReason: "stop",
		},
	}}

	bus := eventbus.New(nil)
	order := recordEvents(bus)

	var capturedReply message.Reply
	bus.Subscribe(events.TypeEmaReplyReceived, func(e eventbus.Event) {
		capturedReply = e.(events.EmaReplyReceived).Reply
	})

	ctxMgr := contextmgr.New(nil, 10_000, nil, nil, bus)
	registry := newRegistry(replyTool{})
	a := New(Config{MaxSteps: 5, TokenLimit: 10_000}, client, "sys", ctxMgr, registry, bus)

	result := a.Run(context.Background())

	if !result.OK {
		t.Fatalf("expected ok result, got %+v", result)
	}
	if capturedReply.Response != "hi" {
		t.Fatalf("expected reply response %q, got %q", "hi", capturedReply.Response)
	}

	want := []string{
		events.TypeStepStarted, events.TypeLlmResponseReceived, events.TypeToolCallStarted,
		events.TypeEmaReplyReceived, events.TypeToolCallFinished, events.TypeStepStarted,
		events.TypeLlmResponseReceived, events.TypeRunFinished,
	}
	if len(*order) != len(want) {
		t.Fatalf("event order = %v, want %v", *order, want)
	}
	for i, w := range want {
		if (*order)[i] != w {
			t.Fatalf("event %d = %s, want %s (full: %v)", i, (*order)[i], w, *order)
		}
	}

	// Reply tool content must be cleared before it reaches context.
	for _, msg := range ctxMgr.Messages() {
		if msg.Kind == message.KindTool && msg.ToolName == message.ReplyToolName {
			if msg.Result.Content != "" {
				t.Fatalf("expected reply tool content cleared in context, got %q", msg.Result.Content)
			}
		}
	}
}

// TestUnknownTool is scenario S5 from spec §8.
func TestUnknownTool(t *testing.T) {
	client := &scriptedClient{responses: []message.LLMResponse{
		{
			Message: message.NewModelMessage(nil, []message.ToolCall{
				{ID: "1", Name: "does_not_exist", Args: nil},
			}),
		},
		{
			Message: message.NewModelMessage([]message.Content{message.NewText("done")}, nil),
		},
	}}

	ctxMgr := contextmgr.New(nil, 10_000, nil, nil, nil)
	registry := newRegistry()
	a := New(Config{MaxSteps: 5, TokenLimit: 10_000}, client, "sys", ctxMgr, registry, nil)

	result := a.Run(context.Background())
	if !result.OK {
		t.Fatalf("expected loop to continue past unknown tool, got %+v", result)
	}

	found := false
	for _, msg := range ctxMgr.Messages() {
		if msg.Kind == message.KindTool && msg.ToolName == "does_not_exist" {
			found = true
			if msg.Result.Success || msg.Result.Error != "Unknown tool: does_not_exist" {
				t.Fatalf("unexpected result for unknown tool: %+v", msg.Result)
			}
		}
	}
	if !found {
		t.Fatalf("expected a ToolMessage for the unknown tool call")
	}
}

func TestMaxStepsZeroYieldsImmediateFailure(t *testing.T) {
	client := &scriptedClient{}
	ctxMgr := contextmgr.New(nil, 10_000, nil, nil, nil)
	a := New(Config{MaxSteps: 0, TokenLimit: 10_000}, client, "sys", ctxMgr, newRegistry(), nil)

	result := a.Run(context.Background())
	if result.OK {
		t.Fatalf("expected failure result for maxSteps=0")
	}
	if client.idx != 0 {
		t.Fatalf("expected no LLM call, Generate was called %d times", client.idx)
	}
}

func TestNormalTerminationLeavesFinalModelMessageWithoutToolCalls(t *testing.T) {
	client := &scriptedClient{responses: []message.LLMResponse{
		{Message: message.NewModelMessage([]message.Content{message.NewText("done")}, nil)},
	}}
	ctxMgr := contextmgr.New(nil, 10_000, nil, nil, nil)
	a := New(Config{MaxSteps: 5, TokenLimit: 10_000}, client, "sys", ctxMgr, newRegistry(), nil)

	result := a.Run(context.Background())
	if !result.OK {
		t.Fatalf("expected ok result, got %+v", result)
	}

	msgs := ctxMgr.Messages()
	last := msgs[len(msgs)-1]
	if last.Kind != message.KindModel || last.HasToolCalls() {
		t.Fatalf("expected final message to be a tool-call-free ModelMessage, got %+v", last)
	}
}
