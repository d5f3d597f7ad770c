package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
)

func TestReplyToolName(t *testing.T) {
	rt := NewReplyTool()
	if rt.Name() != message.ReplyToolName {
		t.Errorf("Name() = %q, want %q", rt.Name(), message.ReplyToolName)
	}
}

func TestReplyToolParametersRequireResponse(t *testing.T) {
	rt := NewReplyTool()
	params := rt.Parameters()
	if len(params.Required) != 1 || params.Required[0] != "response" {
		t.Errorf("Required = %v, want [response]", params.Required)
	}
}

func TestReplyToolExecuteEchoesPayload(t *testing.T) {
	rt := NewReplyTool()
	args := map[string]any{
		"think":      "the user wants help",
		"expression": "neutral",
		"action":     "answering",
		"response":   "hello there",
	}

	result, err := rt.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("Success = false, error = %q", result.Error)
	}

	var reply message.Reply
	if err := json.Unmarshal([]byte(result.Content), &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Response != "hello there" {
		t.Errorf("Response = %q, want %q", reply.Response, "hello there")
	}
	if reply.Think != "the user wants help" {
		t.Errorf("Think = %q, want %q", reply.Think, "the user wants help")
	}
}
