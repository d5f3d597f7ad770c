package contextmgr

import (
	"context"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/llm"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
)

// LLMSummarizer produces a round summary via the same LLMClient the Agent
// uses for ordinary generation, seeded with the fixed meta-prompt. It is
// subject to the same retry policy as any other Generate call — spec §9's
// open question about whether retries apply to the summarizer is resolved
// by simply not special-casing it.
type LLMSummarizer struct {
	Client llm.Client
}

// NewLLMSummarizer builds a Summarizer backed by client.
func NewLLMSummarizer(client llm.Client) *LLMSummarizer {
	return &LLMSummarizer{Client: client}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, round []message.Message, roundNum int) (string, error) {
	resp, err := s.Client.Generate(ctx, round, nil, summaryMetaPrompt)
	if err != nil {
		return "", err
	}
	return resp.Message.Text(), nil
}
