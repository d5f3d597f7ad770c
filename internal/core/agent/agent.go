// Package agent implements the step-bounded LLM-call/tool-execution state
// machine described in spec §4.3: it drives one conversation to a normal
// finish, an error, step exhaustion, or cancellation, emitting typed events
// along the way.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/contextmgr"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/eventbus"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/events"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/llm"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
)

// Config bounds one Agent run.
type Config struct {
	MaxSteps   int
	TokenLimit int
}

// Agent drives one conversation's LLM-call/tool-execution loop.
type Agent struct {
	config       Config
	client       llm.Client
	systemPrompt string
	context      *contextmgr.Manager
	tools        tool.Registry
	bus          *eventbus.Bus
}

// New builds an Agent. bus may be nil, in which case events are simply not
// published (useful for tests that only care about the returned result).
func New(config Config, client llm.Client, systemPrompt string, ctxMgr *contextmgr.Manager, tools tool.Registry, bus *eventbus.Bus) *Agent {
	return &Agent{
		config:       config,
		client:       client,
		systemPrompt: systemPrompt,
		context:      ctxMgr,
		tools:        tools,
		bus:          bus,
	}
}

// Result is what Run returns once a run terminates.
type Result struct {
	OK    bool
	Msg   string
	Error error
}

// Run executes the bounded loop described in spec §4.3. It never returns an
// error itself: every terminal condition is reported both as a RunFinished
// event and in the returned Result, per the spec's "Agent never rethrows
// out of Run()" propagation policy.
func (a *Agent) Run(ctx context.Context) Result {
	for step := 1; step <= a.config.MaxSteps; step++ {
		// Step 1.
		if err := a.context.SummarizeIfNeeded(ctx); err != nil {
			return a.finish(false, "", err)
		}

		// Step 2.
		a.publish(events.StepStarted{Step: step, MaxSteps: a.config.MaxSteps})

		// Step 3.
		resp, err := a.client.Generate(ctx, a.context.Messages(), a.context.Tools(), a.systemPrompt)
		if err != nil {
			if ctx.Err() != nil {
				return a.finishCancelled()
			}
			return a.finish(false, "", err)
		}

		// Step 4.
		a.context.UpdateApiTokens(resp)
		a.context.AddModel(resp)

		// Step 5.
		a.publish(events.LlmResponseReceived{Response: resp})

		// Step 6.
		if !resp.Message.HasToolCalls() {
			return a.finish(true, resp.FinishReason, nil)
		}

		// Step 7.
		for _, call := range resp.Message.ToolCalls {
			a.runToolCall(ctx, call)
		}

		// Step 8: loop continues to step+1.
	}

	err := fmt.Errorf("Task couldn't be completed after %d steps", a.config.MaxSteps)
	return a.finish(false, "", err)
}

func (a *Agent) runToolCall(ctx context.Context, call message.ToolCall) {
	a.publish(events.ToolCallStarted{ID: call.ID, Name: call.Name, Args: call.Args})

	result := a.execute(ctx, call)

	if call.Name == message.ReplyToolName && result.Success {
		reply, err := parseReply(result.Content)
		if err == nil {
			a.publish(events.EmaReplyReceived{Reply: reply})
		}
		result.Content = ""
	}

	a.publish(events.ToolCallFinished{OK: result.Success, ID: call.ID, Name: call.Name, Result: result})
	a.context.AddTool(result, call.Name, call.ID)
}

func (a *Agent) execute(ctx context.Context, call message.ToolCall) message.ToolResult {
	t, ok := a.tools.Get(call.Name)
	if !ok {
		return message.ToolResult{Success: false, Error: "Unknown tool: " + call.Name}
	}

	args := orderArgs(t.Parameters(), call.Args)

	result, err := func() (result message.ToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				result = message.ToolResult{}
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.Execute(ctx, args)
	}()
	if err != nil {
		return message.ToolResult{Success: false, Error: fmt.Sprintf("%T: %v\n\nTraceback:\n<unavailable>", err, err)}
	}
	return result
}

// orderArgs maps args onto the tool's declared, ordered parameter names.
// The values themselves stay keyed by name (Go's Execute signature takes a
// map), but this establishes the positional-order fallback contract spec
// §4.3.c describes: when a provider's args cannot be matched against the
// declared order, args are passed through unordered (Go map iteration
// order), which is the same fallback spec.md names.
func orderArgs(params tool.Parameters, args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	ordered := make(map[string]any, len(args))
	for _, name := range params.Names() {
		if v, ok := args[name]; ok {
			ordered[name] = v
		}
	}
	for k, v := range args {
		if _, already := ordered[k]; !already {
			ordered[k] = v
		}
	}
	return ordered
}

func parseReply(content string) (message.Reply, error) {
	var reply message.Reply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return message.Reply{}, err
	}
	return reply, nil
}

// finishCancelled reports cancellation as a non-fatal early termination:
// RunFinished carries reason=cancelled with no error text surfaced, per
// spec §7's CancellationError handling.
func (a *Agent) finishCancelled() Result {
	a.publish(events.RunFinished{OK: false, Msg: "cancelled"})
	return Result{OK: false, Msg: "cancelled", Error: &llm.CancellationError{Cause: context.Canceled}}
}

func (a *Agent) finish(ok bool, msg string, err error) Result {
	var errStr string
	if err != nil {
		errStr = err.Error()
	}
	a.publish(events.RunFinished{OK: ok, Msg: msg, Error: errStr})
	return Result{OK: ok, Msg: msg, Error: err}
}

func (a *Agent) publish(e eventbus.Event) {
	if a.bus != nil {
		a.bus.Publish(e)
	}
}
