// Package llm adapts the core llm.Client contract onto real HTTP providers:
// a factory registry (grounded on the teacher's provider.go), a
// per-provider circuit breaker, and a Router that picks the
// highest-priority available provider and retries transient failures with
// linear backoff.
package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	corellm "github.com/Reynold-degenracy/EverMemoryArchive/internal/core/llm"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
)

// ProviderConfig configures one wire-protocol provider adapter.
type ProviderConfig struct {
	Name     string
	BaseURL  string
	APIKey   string
	Model    string
	Priority int
}

// Provider is a single wire-protocol LLM backend (one per vendor/format).
type Provider interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	Generate(ctx context.Context, messages []message.Message, tools []tool.Definition, systemPrompt string) (message.LLMResponse, error)
}

// Factory builds a Provider from its configuration.
type Factory func(cfg ProviderConfig, logger *zap.Logger) Provider

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// RegisterFactory registers a provider constructor under a wire-type name
// (e.g. "openai"). Provider packages call this from an init func.
func RegisterFactory(kind string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = f
}

func buildProvider(kind string, cfg ProviderConfig, logger *zap.Logger) (Provider, bool) {
	factoriesMu.RLock()
	f, ok := factories[kind]
	factoriesMu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(cfg, logger), true
}

type routedProvider struct {
	provider Provider
	breaker  *CircuitBreaker
	priority int
}

// Router implements corellm.Client over a priority-ordered set of
// providers, each behind its own circuit breaker, with bounded retry on
// transient failures.
type Router struct {
	logger     *zap.Logger
	providers  []*routedProvider
	maxRetries int
	retryWait  time.Duration
}

// RouterConfig configures one entry in the router's provider list.
type RouterConfig struct {
	Kind     string // factory name, e.g. "openai"
	Provider ProviderConfig
}

// NewRouter builds a Router over the given provider configs, in priority
// order (first entry tried first). Unknown kinds are skipped with a log.
func NewRouter(configs []RouterConfig, maxRetries int, retryWait time.Duration, circuitFailures int, circuitRecover time.Duration, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryWait <= 0 {
		retryWait = 2 * time.Second
	}

	r := &Router{logger: logger, maxRetries: maxRetries, retryWait: retryWait}
	for _, c := range configs {
		p, ok := buildProvider(c.Kind, c.Provider, logger)
		if !ok {
			logger.Warn("no provider factory registered", zap.String("kind", c.Kind))
			continue
		}
		r.providers = append(r.providers, &routedProvider{
			provider: p,
			breaker:  NewCircuitBreaker(circuitFailures, circuitRecover),
			priority: c.Provider.Priority,
		})
	}
	return r
}

var _ corellm.Client = (*Router)(nil)

// Generate tries each available provider in priority order, retrying
// transient failures within a single provider before falling through to
// the next one.
func (r *Router) Generate(ctx context.Context, messages []message.Message, tools []tool.Definition, systemPrompt string) (message.LLMResponse, error) {
	var lastErr error
	attempts := 0

	for _, rp := range r.providers {
		if !rp.provider.IsAvailable(ctx) || !rp.breaker.Allow() {
			continue
		}

		for attempt := 0; attempt < r.maxRetries; attempt++ {
			if ctx.Err() != nil {
				return message.LLMResponse{}, &corellm.CancellationError{Cause: ctx.Err()}
			}

			attempts++
			resp, err := rp.provider.Generate(ctx, messages, tools, systemPrompt)
			if err == nil {
				rp.breaker.RecordSuccess()
				return resp, nil
			}

			if ctx.Err() != nil {
				return message.LLMResponse{}, &corellm.CancellationError{Cause: ctx.Err()}
			}

			lastErr = err
			rp.breaker.RecordFailure()

			callErr, ok := err.(*corellm.CallError)
			if !ok || !callErr.IsRetryable() {
				break
			}

			r.logger.Warn("llm call failed, retrying",
				zap.String("provider", rp.provider.Name()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)

			select {
			case <-ctx.Done():
				return message.LLMResponse{}, &corellm.CancellationError{Cause: ctx.Err()}
			case <-time.After(r.retryWait * time.Duration(attempt+1)):
			}
		}
	}

	if lastErr == nil {
		lastErr = &corellm.CallError{Kind: corellm.KindTransient, Message: "no available provider"}
	}
	return message.LLMResponse{}, &corellm.RetryExhaustedError{Attempts: attempts, LastError: lastErr}
}
