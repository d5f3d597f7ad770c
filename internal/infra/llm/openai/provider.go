// Package openai is an OpenAI-chat-completions-compatible wire adapter for
// internal/infra/llm.Provider, reused as-is for any backend speaking the
// same format (Bailian/Qwen, DeepSeek, Ollama, vLLM, ...).
package openai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	corellm "github.com/Reynold-degenracy/EverMemoryArchive/internal/core/llm"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
	infrallm "github.com/Reynold-degenracy/EverMemoryArchive/internal/infra/llm"
)

func init() {
	infrallm.RegisterFactory("openai", func(cfg infrallm.ProviderConfig, logger *zap.Logger) infrallm.Provider {
		return New(cfg, logger)
	})
}

// Provider is a Go-native OpenAI-compatible HTTP client.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// New builds an OpenAI-compatible provider.
func New(cfg infrallm.ProviderConfig, logger *zap.Logger) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Provider{
		name:    cfg.Name,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Transport: transport},
		logger:  logger.With(zap.String("provider", cfg.Name), zap.String("type", "openai")),
	}
}

var _ infrallm.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return p.name }

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

// Generate implements infra/llm.Provider.
func (p *Provider) Generate(ctx context.Context, messages []message.Message, tools []tool.Definition, systemPrompt string) (message.LLMResponse, error) {
	apiReq := p.buildRequest(messages, tools, systemPrompt)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return message.LLMResponse{}, p.classify(err, 0)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return message.LLMResponse{}, p.classify(err, 0)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return message.LLMResponse{}, p.classify(err, 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return message.LLMResponse{}, p.classify(err, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return message.LLMResponse{}, p.classify(fmt.Errorf("%s", string(respBody)), resp.StatusCode)
	}

	return p.parseResponse(respBody)
}

func (p *Provider) buildRequest(messages []message.Message, tools []tool.Definition, systemPrompt string) *Request {
	req := &Request{Model: p.model}

	if systemPrompt != "" {
		req.Messages = append(req.Messages, Message{Role: "system", Content: systemPrompt})
	}

	for _, m := range messages {
		switch m.Kind {
		case message.KindUser:
			req.Messages = append(req.Messages, Message{Role: "user", Content: m.Text()})
		case message.KindModel:
			wm := Message{Role: "assistant", Content: m.Text()}
			for _, tc := range m.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				wm.ToolCalls = append(wm.ToolCalls, ToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: ToolCallFunc{Name: tc.Name, Arguments: string(argsJSON)},
				})
			}
			req.Messages = append(req.Messages, wm)
		case message.KindTool:
			content := m.Result.Content
			if !m.Result.Success {
				content = m.Result.Error
			}
			req.Messages = append(req.Messages, Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: m.ToolCallID,
				Name:       m.ToolName,
			})
		}
	}

	for _, td := range tools {
		req.Tools = append(req.Tools, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		})
	}

	return req
}

func (p *Provider) parseResponse(body []byte) (message.LLMResponse, error) {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return message.LLMResponse{}, p.classify(err, 0)
	}
	if len(apiResp.Choices) == 0 {
		return message.LLMResponse{}, p.classify(fmt.Errorf("empty response: no choices"), 0)
	}

	choice := apiResp.Choices[0]
	var toolCalls []message.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return message.LLMResponse{}, p.classify(fmt.Errorf("parse tool call arguments for %s: %w", tc.Function.Name, err), 0)
			}
		}
		toolCalls = append(toolCalls, message.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}

	var contents []message.Content
	if choice.Message.Content != "" {
		contents = []message.Content{message.NewText(choice.Message.Content)}
	}

	return message.LLMResponse{
		Message:      message.NewModelMessage(contents, toolCalls),
		FinishReason: choice.FinishReason,
		TotalTokens:  apiResp.Usage.Total(),
	}, nil
}

func (p *Provider) classify(err error, statusCode int) *corellm.CallError {
	kind := corellm.KindTransient
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind = corellm.KindAuth
	case statusCode == http.StatusBadRequest:
		kind = corellm.KindBadRequest
	case statusCode == http.StatusTooManyRequests || statusCode >= 500 || statusCode == 0:
		kind = corellm.KindTransient
	}
	return &corellm.CallError{
		Kind:       kind,
		Message:    err.Error(),
		StatusCode: statusCode,
		Provider:   p.name,
		Model:      p.model,
		Cause:      err,
	}
}
