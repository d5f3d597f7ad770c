// Package events defines the concrete, typed event payloads emitted by the
// Agent and ContextManager, per spec §6's event table.
package events

import (
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
)

// Type string constants, one per row of spec §6's event table.
const (
	TypeStepStarted               = "stepStarted"
	TypeLlmResponseReceived       = "llmResponseReceived"
	TypeToolCallStarted           = "toolCallStarted"
	TypeToolCallFinished          = "toolCallFinished"
	TypeEmaReplyReceived          = "emaReplyReceived"
	TypeSummarizeMessagesStarted  = "summarizeMessagesStarted"
	TypeSummarizeMessagesFinished = "summarizeMessagesFinished"
	TypeCreateSummaryFinished     = "createSummaryFinished"
	TypeRunFinished               = "runFinished"
	TypeTokenEstimationFallbacked = "tokenEstimationFallbacked"
)

type StepStarted struct {
	Step     int
	MaxSteps int
}

func (StepStarted) Type() string { return TypeStepStarted }

type LlmResponseReceived struct {
	Response message.LLMResponse
}

func (LlmResponseReceived) Type() string { return TypeLlmResponseReceived }

type ToolCallStarted struct {
	ID   string
	Name string
	Args map[string]any
}

func (ToolCallStarted) Type() string { return TypeToolCallStarted }

type ToolCallFinished struct {
	OK     bool
	ID     string
	Name   string
	Result message.ToolResult
}

func (ToolCallFinished) Type() string { return TypeToolCallFinished }

type EmaReplyReceived struct {
	Reply message.Reply
}

func (EmaReplyReceived) Type() string { return TypeEmaReplyReceived }

type SummarizeMessagesStarted struct {
	LocalEstimatedTokens int
	APIReportedTokens    int
	TokenLimit           int
}

func (SummarizeMessagesStarted) Type() string { return TypeSummarizeMessagesStarted }

type SummarizeMessagesFinished struct {
	OK               bool
	OldTokens        int
	NewTokens        int
	UserMessageCount int
	SummaryCount     int
}

func (SummarizeMessagesFinished) Type() string { return TypeSummarizeMessagesFinished }

type CreateSummaryFinished struct {
	OK          bool
	RoundNum    int
	SummaryText string
	Error       string
}

func (CreateSummaryFinished) Type() string { return TypeCreateSummaryFinished }

type RunFinished struct {
	OK    bool
	Msg   string
	Error string
}

func (RunFinished) Type() string { return TypeRunFinished }

type TokenEstimationFallbacked struct {
	Error string
}

func (TokenEstimationFallbacked) Type() string { return TypeTokenEstimationFallbacked }
