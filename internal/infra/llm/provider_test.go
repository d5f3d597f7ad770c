package llm

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	corellm "github.com/Reynold-degenracy/EverMemoryArchive/internal/core/llm"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
)

// fakeProvider is a hand-rolled Provider whose behavior per call is driven
// by a queue of canned responses/errors, used to exercise the Router's
// retry and failover logic without a real HTTP backend.
type fakeProvider struct {
	name      string
	available bool
	calls     int
	results   []fakeResult
}

type fakeResult struct {
	resp message.LLMResponse
	err  error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) IsAvailable(ctx context.Context) bool { return p.available }

func (p *fakeProvider) Generate(ctx context.Context, messages []message.Message, tools []tool.Definition, systemPrompt string) (message.LLMResponse, error) {
	idx := p.calls
	p.calls++
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	r := p.results[idx]
	return r.resp, r.err
}

func registerFake(t *testing.T, kind string, p *fakeProvider) {
	t.Helper()
	RegisterFactory(kind, func(cfg ProviderConfig, logger *zap.Logger) Provider {
		return p
	})
}

func TestRouterUsesFirstAvailableProvider(t *testing.T) {
	primary := &fakeProvider{
		name:      "primary",
		available: true,
		results:   []fakeResult{{resp: message.LLMResponse{FinishReason: "stop"}}},
	}
	registerFake(t, "fake-primary", primary)

	r := NewRouter([]RouterConfig{
		{Kind: "fake-primary", Provider: ProviderConfig{Name: "primary", Priority: 1}},
	}, 3, time.Millisecond, 5, time.Minute, zap.NewNop())

	resp, err := r.Generate(context.Background(), nil, nil, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if primary.calls != 1 {
		t.Errorf("primary.calls = %d, want 1", primary.calls)
	}
}

func TestRouterRetriesTransientFailure(t *testing.T) {
	p := &fakeProvider{
		name:      "flaky",
		available: true,
		results: []fakeResult{
			{err: &corellm.CallError{Kind: corellm.KindTransient, Message: "timeout"}},
			{err: &corellm.CallError{Kind: corellm.KindTransient, Message: "timeout"}},
			{resp: message.LLMResponse{FinishReason: "stop"}},
		},
	}
	registerFake(t, "fake-flaky", p)

	r := NewRouter([]RouterConfig{
		{Kind: "fake-flaky", Provider: ProviderConfig{Name: "flaky", Priority: 1}},
	}, 5, time.Millisecond, 5, time.Minute, zap.NewNop())

	resp, err := r.Generate(context.Background(), nil, nil, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3 (2 failures + 1 success)", p.calls)
	}
}

func TestRouterFallsThroughOnNonRetryableFailure(t *testing.T) {
	primary := &fakeProvider{
		name:      "primary",
		available: true,
		results:   []fakeResult{{err: &corellm.CallError{Kind: corellm.KindAuth, Message: "bad key"}}},
	}
	secondary := &fakeProvider{
		name:      "secondary",
		available: true,
		results:   []fakeResult{{resp: message.LLMResponse{FinishReason: "stop"}}},
	}
	registerFake(t, "fake-auth-fail", primary)
	registerFake(t, "fake-secondary", secondary)

	r := NewRouter([]RouterConfig{
		{Kind: "fake-auth-fail", Provider: ProviderConfig{Name: "primary", Priority: 1}},
		{Kind: "fake-secondary", Provider: ProviderConfig{Name: "secondary", Priority: 2}},
	}, 3, time.Millisecond, 5, time.Minute, zap.NewNop())

	resp, err := r.Generate(context.Background(), nil, nil, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop from secondary", resp.FinishReason)
	}
	if primary.calls != 1 {
		t.Errorf("primary.calls = %d, want 1 (non-retryable, no retry)", primary.calls)
	}
	if secondary.calls != 1 {
		t.Errorf("secondary.calls = %d, want 1", secondary.calls)
	}
}

func TestRouterSkipsUnavailableProvider(t *testing.T) {
	down := &fakeProvider{name: "down", available: false}
	up := &fakeProvider{
		name:      "up",
		available: true,
		results:   []fakeResult{{resp: message.LLMResponse{FinishReason: "stop"}}},
	}
	registerFake(t, "fake-down", down)
	registerFake(t, "fake-up", up)

	r := NewRouter([]RouterConfig{
		{Kind: "fake-down", Provider: ProviderConfig{Name: "down", Priority: 1}},
		{Kind: "fake-up", Provider: ProviderConfig{Name: "up", Priority: 2}},
	}, 3, time.Millisecond, 5, time.Minute, zap.NewNop())

	resp, err := r.Generate(context.Background(), nil, nil, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop from up", resp.FinishReason)
	}
	if down.calls != 0 {
		t.Errorf("down.calls = %d, want 0 (unavailable provider must never be called)", down.calls)
	}
}

func TestRouterReturnsRetryExhaustedWhenAllProvidersFail(t *testing.T) {
	p := &fakeProvider{
		name:      "always-down",
		available: true,
		results:   []fakeResult{{err: &corellm.CallError{Kind: corellm.KindTransient, Message: "timeout"}}},
	}
	registerFake(t, "fake-always-down", p)

	r := NewRouter([]RouterConfig{
		{Kind: "fake-always-down", Provider: ProviderConfig{Name: "always-down", Priority: 1}},
	}, 2, time.Millisecond, 5, time.Minute, zap.NewNop())

	_, err := r.Generate(context.Background(), nil, nil, "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if _, ok := err.(*corellm.RetryExhaustedError); !ok {
		t.Errorf("err = %T, want *corellm.RetryExhaustedError", err)
	}
}

func TestRouterSkipsUnknownProviderKind(t *testing.T) {
	r := NewRouter([]RouterConfig{
		{Kind: "nonexistent-kind", Provider: ProviderConfig{Name: "ghost", Priority: 1}},
	}, 3, time.Millisecond, 5, time.Minute, zap.NewNop())

	if len(r.providers) != 0 {
		t.Errorf("providers = %d, want 0 for an unregistered factory kind", len(r.providers))
	}
}

func TestRouterCancelledContext(t *testing.T) {
	p := &fakeProvider{name: "slow", available: true}
	registerFake(t, "fake-slow", p)

	r := NewRouter([]RouterConfig{
		{Kind: "fake-slow", Provider: ProviderConfig{Name: "slow", Priority: 1}},
	}, 3, time.Millisecond, 5, time.Minute, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Generate(ctx, nil, nil, "")
	if err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
	if _, ok := err.(*corellm.CancellationError); !ok {
		t.Errorf("err = %T, want *corellm.CancellationError", err)
	}
}
