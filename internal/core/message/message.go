// Package message defines the tagged message and content model shared by the
// Agent loop and ContextManager: user/model/tool messages, tool calls and
// results, LLM responses, and the attributed buffer records rendered into
// the system prompt.
package message

import "time"

// Kind tags a Content block. Only text is implemented today; the variant is
// kept open for future block kinds.
type Kind string

const KindText Kind = "text"

// Content is a single tagged content block.
type Content struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// NewText builds a text content block.
func NewText(text string) Content {
	return Content{Kind: KindText, Text: text}
}

// ToolCall records one tool invocation requested by the model.
type ToolCall struct {
	ID               string         `json:"id,omitempty"`
	Name             string         `json:"name"`
	Args             map[string]any `json:"args"`
	ThoughtSignature string         `json:"thoughtSignature,omitempty"`
}

// ToolResult is the outcome of executing one ToolCall.
//
// Invariant: Success==true implies Content is set and Error is empty;
// Success==false implies Error is set.
type ToolResult struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MessageKind tags which variant a Message carries.
type MessageKind string

const (
	KindUser  MessageKind = "user"
	KindModel MessageKind = "model"
	KindTool  MessageKind = "tool"
)

// Message is a tagged variant over UserMessage / ModelMessage / ToolMessage.
// Exactly one of the kind-specific field sets is meaningful, selected by Kind.
type Message struct {
	Kind MessageKind `json:"kind"`

	// UserMessage / ModelMessage
	Contents []Content `json:"contents,omitempty"`

	// ModelMessage only
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// ToolMessage only
	ToolName   string     `json:"name,omitempty"`
	ToolCallID string     `json:"id,omitempty"`
	Result     ToolResult `json:"result,omitempty"`
}

// NewUserMessage builds a UserMessage.
func NewUserMessage(contents ...Content) Message {
	return Message{Kind: KindUser, Contents: contents}
}

// NewModelMessage builds a ModelMessage.
func NewModelMessage(contents []Content, toolCalls []ToolCall) Message {
	return Message{Kind: KindModel, Contents: contents, ToolCalls: toolCalls}
}

// NewToolMessage builds a ToolMessage.
func NewToolMessage(name, id string, result ToolResult) Message {
	return Message{Kind: KindTool, ToolName: name, ToolCallID: id, Result: result}
}

// HasToolCalls reports whether a ModelMessage carries any tool calls.
func (m Message) HasToolCalls() bool {
	return m.Kind == KindModel && len(m.ToolCalls) > 0
}

// Text concatenates the text of every Content block, in order.
func (m Message) Text() string {
	var out string
	for i, c := range m.Contents {
		if i > 0 {
			out += "\n"
		}
		out += c.Text
	}
	return out
}

// LLMResponse is what an LLMClient.Generate call returns.
type LLMResponse struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finishReason"`
	TotalTokens  int     `json:"totalTokens"`
}

// BufferKind tags a BufferMessage's origin.
type BufferKind string

const (
	BufferUser  BufferKind = "user"
	BufferActor BufferKind = "actor"
)

// BufferMessage is an externalized, attributed record used to render a short
// history window into the system prompt via {MEMORY_BUFFER} substitution.
type BufferMessage struct {
	Kind     BufferKind
	ID       string
	Name     string
	Contents []Content
	Time     time.Time
}

// Text concatenates the text of every Content block, in order.
func (b BufferMessage) Text() string {
	var out string
	for i, c := range b.Contents {
		if i > 0 {
			out += "\n"
		}
		out += c.Text
	}
	return out
}

// Reply is the parsed payload of the distinguished reply tool (canonical
// name "ema_reply"). Its successful invocation is what the Agent turns into
// a ReplyReceived event.
type Reply struct {
	Think      string `json:"think"`
	Expression string `json:"expression"`
	Action     string `json:"action"`
	Response   string `json:"response"`
}

// ReplyToolName is the canonical, fixed name of the distinguished reply tool.
const ReplyToolName = "ema_reply"
