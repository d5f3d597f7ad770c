// Package contextmgr implements the token-budgeted conversation store and
// its automatic, structure-preserving summarization protocol (spec §4.2).
package contextmgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/eventbus"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/events"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tokenest"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
)

// summaryMetaPrompt seeds the per-round LLM summarization call.
const summaryMetaPrompt = "summarize this agent execution process, focus on tasks and tool calls, keep it concise, <=1000 words, exclude user content"

// Summarizer produces a round summary. Implementations may call back into
// an llm.Client; the ContextManager falls back to a deterministic rendering
// on any Summarize error, so Summarizer failures are never fatal.
type Summarizer interface {
	Summarize(ctx context.Context, round []message.Message, roundNum int) (string, error)
}

// Manager owns one actor run's conversation state: the message list, the
// tool set available to it, and the token-gated summarization protocol.
type Manager struct {
	messages  []message.Message
	tools     []tool.Definition
	toolIndex map[string]tool.Definition

	tokenLimit         int
	apiTotalTokens     int
	skipNextTokenCheck bool

	estimator  *tokenest.Estimator
	summarizer Summarizer
	bus        *eventbus.Bus
}

// New builds a Manager. bus and summarizer may both be nil: events are then
// simply not published, and summarization always falls back to the
// deterministic rendering.
func New(tools []tool.Definition, tokenLimit int, estimator *tokenest.Estimator, summarizer Summarizer, bus *eventbus.Bus) *Manager {
	idx := make(map[string]tool.Definition, len(tools))
	for _, t := range tools {
		idx[t.Name] = t
	}
	if estimator == nil {
		estimator = tokenest.New()
	}
	return &Manager{
		tools:      tools,
		toolIndex:  idx,
		tokenLimit: tokenLimit,
		estimator:  estimator,
		summarizer: summarizer,
		bus:        bus,
	}
}

// Messages returns the current message list. Callers must not mutate it.
func (m *Manager) Messages() []message.Message { return m.messages }

// Tools returns the tool set available to this context.
func (m *Manager) Tools() []tool.Definition { return m.tools }

// ToolByName looks up a tool definition by name.
func (m *Manager) ToolByName(name string) (tool.Definition, bool) {
	d, ok := m.toolIndex[name]
	return d, ok
}

// AddUser appends a UserMessage.
func (m *Manager) AddUser(contents ...message.Content) {
	m.messages = append(m.messages, message.NewUserMessage(contents...))
}

// AddModel appends the ModelMessage half of an LLMResponse.
func (m *Manager) AddModel(response message.LLMResponse) {
	m.messages = append(m.messages, response.Message)
}

// AddTool appends a ToolMessage.
func (m *Manager) AddTool(result message.ToolResult, name, id string) {
	m.messages = append(m.messages, message.NewToolMessage(name, id, result))
}

// UpdateApiTokens overwrites apiTotalTokens if response reports a positive
// total.
func (m *Manager) UpdateApiTokens(response message.LLMResponse) {
	if response.TotalTokens > 0 {
		m.apiTotalTokens = response.TotalTokens
	}
}

// EstimateTokens estimates the token cost of the current message list. It
// publishes tokenEstimationFallbacked if the byte-pair tokenizer could not
// be used for any message.
func (m *Manager) EstimateTokens() int {
	total, fellBack := m.estimator.CountMessages(m.messages)
	if fellBack {
		m.publish(events.TokenEstimationFallbacked{Error: "byte-pair tokenization unavailable; used character-ratio fallback"})
	}
	return total
}

// SummarizeIfNeeded runs the summarization protocol described in spec §4.2.
func (m *Manager) SummarizeIfNeeded(ctx context.Context) error {
	// Step 1.
	if m.skipNextTokenCheck {
		m.skipNextTokenCheck = false
		return nil
	}

	// Step 2.
	local := m.EstimateTokens()
	if local <= m.tokenLimit && m.apiTotalTokens <= m.tokenLimit {
		return nil
	}

	// Step 3.
	userIdx := make([]int, 0)
	for i, msg := range m.messages {
		if msg.Kind == message.KindUser {
			userIdx = append(userIdx, i)
		}
	}
	if len(userIdx) == 0 {
		return nil
	}

	m.publish(events.SummarizeMessagesStarted{
		LocalEstimatedTokens: local,
		APIReportedTokens:    m.apiTotalTokens,
		TokenLimit:           m.tokenLimit,
	})

	// Step 4.
	newMessages := make([]message.Message, 0, len(userIdx)*2)
	if len(m.messages) > 0 && m.messages[0].Kind != message.KindUser {
		newMessages = append(newMessages, m.messages[0])
	}

	summaryCount := 0
	for ri, ui := range userIdx {
		newMessages = append(newMessages, m.messages[ui])

		end := len(m.messages)
		if ri+1 < len(userIdx) {
			end = userIdx[ri+1]
		}
		if end > ui+1 {
			round := m.messages[ui+1 : end]
			summaryText := m.summarizeRound(ctx, round, ri+1)
			newMessages = append(newMessages, message.NewUserMessage(
				message.NewText("[Model Execution Summary]\n\n"+summaryText),
			))
			summaryCount++
		}
	}

	// Step 6.
	m.messages = newMessages
	m.skipNextTokenCheck = true

	newTokens, _ := m.estimator.CountMessages(m.messages)
	m.publish(events.SummarizeMessagesFinished{
		OK:               true,
		OldTokens:        local,
		NewTokens:        newTokens,
		UserMessageCount: len(userIdx),
		SummaryCount:     summaryCount,
	})

	return nil
}

// summarizeRound produces step 5's roundSummary: an LLM-generated summary
// when a Summarizer is configured and succeeds, otherwise a deterministic
// textual rendering of the round.
func (m *Manager) summarizeRound(ctx context.Context, round []message.Message, roundNum int) string {
	if m.summarizer != nil {
		text, err := m.summarizer.Summarize(ctx, round, roundNum)
		if err == nil {
			m.publish(events.CreateSummaryFinished{OK: true, RoundNum: roundNum, SummaryText: text})
			return text
		}
		m.publish(events.CreateSummaryFinished{OK: false, RoundNum: roundNum, Error: err.Error()})
	}
	return renderRoundFallback(roundNum, round)
}

func (m *Manager) publish(e eventbus.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}

// renderRoundFallback renders a round deterministically when the
// summarizing LLM call is unavailable or fails.
func renderRoundFallback(roundNum int, round []message.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Round %d execution process:\n\n", roundNum)

	for _, msg := range round {
		switch msg.Kind {
		case message.KindModel:
			b.WriteString("Assistant: " + msg.Text() + "\n")
			if len(msg.ToolCalls) > 0 {
				names := make([]string, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					names[i] = tc.Name
				}
				b.WriteString("  -> Called tools: " + strings.Join(names, ", ") + "\n")
			}
		case message.KindTool:
			preview := msg.Result.Content
			if !msg.Result.Success {
				preview = msg.Result.Error
			}
			const maxPreview = 200
			if len(preview) > maxPreview {
				preview = preview[:maxPreview]
			}
			b.WriteString("  <- Tool returned: " + preview + "...\n")
		}
	}

	return b.String()
}
