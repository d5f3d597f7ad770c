package tool

import (
	"context"
	"encoding/json"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	coretool "github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
)

// ReplyTool is the distinguished reply tool named message.ReplyToolName
// ("ema_reply"). Calling it is how the model delivers its user-facing
// reply (spec §4.1): the Agent intercepts its result, emits
// EmaReplyReceived, and clears the tool result content before it re-enters
// context.
type ReplyTool struct{}

// NewReplyTool builds the canonical reply tool.
func NewReplyTool() *ReplyTool { return &ReplyTool{} }

var _ coretool.Tool = (*ReplyTool)(nil)

func (t *ReplyTool) Name() string { return message.ReplyToolName }

func (t *ReplyTool) Description() string {
	return "Deliver your reply to the user. think is your private reasoning, expression is the " +
		"emotional tone, action is what you are doing, response is the text shown to the user."
}

func (t *ReplyTool) Parameters() coretool.Parameters {
	return coretool.Parameters{
		Properties: []coretool.Property{
			{Name: "think", Schema: map[string]any{"type": "string", "description": "private reasoning, not shown to the user"}},
			{Name: "expression", Schema: map[string]any{"type": "string", "description": "emotional tone of the reply"}},
			{Name: "action", Schema: map[string]any{"type": "string", "description": "what you are doing right now"}},
			{Name: "response", Schema: map[string]any{"type": "string", "description": "the text shown to the user"}},
		},
		Required: []string{"response"},
	}
}

// Execute validates and echoes the reply payload back as the tool result
// content; the Agent parses it into a message.Reply and clears it after
// publishing EmaReplyReceived.
func (t *ReplyTool) Execute(ctx context.Context, args map[string]any) (message.ToolResult, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return message.ToolResult{Success: false, Error: "failed to encode reply: " + err.Error()}, nil
	}
	return message.ToolResult{Success: true, Content: string(raw)}, nil
}
