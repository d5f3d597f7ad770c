// Package llm defines the provider-agnostic client contract the Agent and
// ContextManager call through: Generate(messages, tools, systemPrompt,
// cancelToken) -> LLMResponse, plus the error shapes a caller must handle.
package llm

import (
	"context"
	"fmt"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
)

// Client is the collaborator contract the Agent drives. Implementations
// must observe ctx cancellation and fail fast once it is done.
type Client interface {
	Generate(ctx context.Context, messages []message.Message, tools []tool.Definition, systemPrompt string) (message.LLMResponse, error)
}

// RetryExhaustedError is returned by a Client that gives up retrying a
// transient failure.
type RetryExhaustedError struct {
	Attempts  int
	LastError error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("llm call failed after %d attempts: %v", e.Attempts, e.LastError)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastError }

// CancellationError marks a Generate call that returned because its context
// was cancelled rather than because of a genuine failure. The Agent treats
// this as a non-fatal early termination.
type CancellationError struct {
	Cause error
}

func (e *CancellationError) Error() string {
	if e.Cause != nil {
		return "llm call cancelled: " + e.Cause.Error()
	}
	return "llm call cancelled"
}

func (e *CancellationError) Unwrap() error { return e.Cause }

// Kind classifies an LLM-call failure for retry/backoff decisions, grounded
// on the teacher's domain/service/llm_errors.go taxonomy.
type Kind string

const (
	KindTransient     Kind = "transient"
	KindAuth          Kind = "auth"
	KindBadRequest    Kind = "bad_request"
	KindContentFilter Kind = "content_filter"
	KindBudget        Kind = "budget"
	KindCancelled     Kind = "cancelled"
)

// IsRetryable reports whether a failure of this Kind is worth retrying.
// Only transient (network/ratelimit/5xx-shaped) failures are.
func (k Kind) IsRetryable() bool {
	return k == KindTransient
}

// CallError is a classified LLM provider failure.
type CallError struct {
	Kind       Kind
	Message    string
	StatusCode int
	Provider   string
	Model      string
	Cause      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("llm call error [%s/%s] %s: %s", e.Provider, e.Model, e.Kind, e.Message)
}

func (e *CallError) Unwrap() error { return e.Cause }

func (e *CallError) IsRetryable() bool { return e.Kind.IsRetryable() }
