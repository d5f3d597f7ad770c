// Package actor implements the ActorWorker described in spec §4.4: an
// input-serialized, preemptable work loop that drains batched input into a
// single Agent run at a time, aborting and resuming across preemption.
package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/agent"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/contextmgr"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/eventbus"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/events"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/llm"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/store"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tokenest"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
)

// Status is the ActorStatus of spec §3, with the strict transitions
// idle -> preparing -> running -> idle (or running -> preparing on
// preemption).
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPreparing Status = "preparing"
	StatusRunning   Status = "running"
)

// InputValidationError is raised from Work for empty input or an
// unsupported content kind.
type InputValidationError struct {
	Reason string
}

func (e *InputValidationError) Error() string { return "invalid input: " + e.Reason }

// Config configures one actor's worker.
type Config struct {
	ActorID              string
	SystemPromptTemplate string
	BaseTools            []tool.Definition
	MaxSteps             int
	TokenLimit           int
	BufferWindow         int // how many recent buffer items buildSystemPrompt renders; spec default 10
}

// AgentState is the resumable state of one Agent run (spec §3).
type AgentState struct {
	SystemPrompt string
	Ctx          *contextmgr.Manager
}

// Worker is the ActorWorker: a per-actor input queue with preemption, run
// state, and the idle/preparing/running status machine.
type Worker struct {
	config Config
	client llm.Client
	tools  tool.Registry
	bus    *eventbus.Bus
	short  store.ShortTermMemoryDB
	logger *zap.Logger

	estimator *tokenest.Estimator

	chain *bufferChain

	mu               sync.Mutex
	status           Status
	queue            []message.BufferMessage
	agentState       *AgentState
	hasReplyThisRun  bool
	resumeAfterAbort bool
	processing       bool
	cancelCurrent    context.CancelFunc
	runDone          chan struct{}
}

// New builds a Worker. logger may be nil (defaults to a no-op logger).
func New(config Config, client llm.Client, tools tool.Registry, bus *eventbus.Bus, short store.ShortTermMemoryDB, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BufferWindow <= 0 {
		config.BufferWindow = 10
	}
	return &Worker{
		config:    config,
		client:    client,
		tools:     tools,
		bus:       bus,
		short:     short,
		logger:    logger,
		estimator: tokenest.New(),
		chain:     newBufferChain(short, logger),
		status:    StatusIdle,
	}
}

// Status reports the worker's current ActorStatus.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Work is the Work(inputs) contract of spec §4.4.
func (w *Worker) Work(ctx context.Context, userID string, inputs []message.Content) error {
	if len(inputs) == 0 {
		return &InputValidationError{Reason: "inputs must not be empty"}
	}
	for _, c := range inputs {
		if c.Kind != message.KindText {
			return &InputValidationError{Reason: fmt.Sprintf("unsupported content kind: %s", c.Kind)}
		}
	}

	buf := message.BufferMessage{
		Kind:     message.BufferUser,
		ID:       userID,
		Name:     "User",
		Contents: inputs,
		Time:     time.Now(),
	}

	w.mu.Lock()
	w.queue = append(w.queue, buf)
	w.chain.enqueue(w.config.ActorID, buf)
	if w.status != StatusIdle {
		w.resumeAfterAbort = !w.hasReplyThisRun
		cancel := w.cancelCurrent
		done := w.runDone
		w.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if done != nil {
			<-done
		}
		return nil
	}
	w.mu.Unlock()

	w.processQueue()
	return nil
}

// processQueue is the single-flight serial driver of spec §4.4. It is safe
// to call repeatedly: only one driver loop runs at a time, guarded by the
// processing flag.
func (w *Worker) processQueue() {
	w.mu.Lock()
	if w.processing {
		w.mu.Unlock()
		return
	}
	w.processing = true
	w.mu.Unlock()

	go w.driverLoop()
}

func (w *Worker) driverLoop() {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.processing = false
			w.mu.Unlock()
			return
		}

		w.status = StatusPreparing
		batch := w.queue
		w.queue = nil
		resumeAfterAbort := w.resumeAfterAbort
		existing := w.agentState
		w.mu.Unlock()

		state := w.buildOrExtendState(resumeAfterAbort, existing, batch)

		runCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		w.mu.Lock()
		w.resumeAfterAbort = false
		w.hasReplyThisRun = false
		w.status = StatusRunning
		w.cancelCurrent = cancel
		w.runDone = done
		w.agentState = state
		w.mu.Unlock()

		w.runOnce(runCtx, state)

		cancel()
		close(done)

		w.mu.Lock()
		w.cancelCurrent = nil
		w.runDone = nil
		stillResuming := w.resumeAfterAbort
		if !stillResuming {
			w.agentState = nil
		}
		if len(w.queue) == 0 && !stillResuming {
			w.status = StatusIdle
		}
		w.mu.Unlock()
	}
}

func (w *Worker) buildOrExtendState(resumeAfterAbort bool, existing *AgentState, batch []message.BufferMessage) *AgentState {
	if resumeAfterAbort && existing != nil {
		for _, bm := range batch {
			existing.Ctx.AddUser(bm.Contents...)
		}
		return existing
	}

	summarizer := contextmgr.NewLLMSummarizer(w.client)
	ctxMgr := contextmgr.New(w.config.BaseTools, w.config.TokenLimit, w.estimator, summarizer, w.bus)
	for _, bm := range batch {
		ctxMgr.AddUser(bm.Contents...)
	}

	return &AgentState{
		SystemPrompt: w.buildSystemPrompt(w.config.SystemPromptTemplate),
		Ctx:          ctxMgr,
	}
}

// runOnce drives exactly one Agent run and intercepts ReplyReceived to
// update hasReplyThisRun and append the actor's reply to the buffer.
func (w *Worker) runOnce(ctx context.Context, state *AgentState) {
	var unsub func()
	if w.bus != nil {
		unsub = w.bus.Subscribe(events.TypeEmaReplyReceived, func(e eventbus.Event) {
			reply := e.(events.EmaReplyReceived).Reply
			w.mu.Lock()
			w.hasReplyThisRun = true
			w.mu.Unlock()

			raw, err := json.Marshal(reply)
			if err != nil {
				w.logger.Error("failed to marshal reply for buffer", zap.Error(err))
				return
			}
			bm := message.BufferMessage{
				Kind:     message.BufferActor,
				ID:       w.config.ActorID,
				Name:     "EMA",
				Contents: []message.Content{message.NewText(string(raw))},
				Time:     time.Now(),
			}
			w.chain.enqueue(w.config.ActorID, bm)
		})
		defer unsub()
	}

	a := agent.New(
		agent.Config{MaxSteps: w.config.MaxSteps, TokenLimit: w.config.TokenLimit},
		w.client,
		state.SystemPrompt,
		state.Ctx,
		w.tools,
		w.bus,
	)
	a.Run(ctx)
}

// buildSystemPrompt replaces every occurrence of {MEMORY_BUFFER} in template
// with the textual rendering of the last BufferWindow buffer items.
func (w *Worker) buildSystemPrompt(template string) string {
	if !strings.Contains(template, "{MEMORY_BUFFER}") {
		return template
	}

	items, err := w.short.Recent(context.Background(), w.config.ActorID, w.config.BufferWindow)
	if err != nil {
		w.logger.Error("failed to load recent buffer items", zap.Error(err))
		items = nil
	}

	rendering := "None."
	if len(items) > 0 {
		lines := make([]string, len(items))
		for i, item := range items {
			lines[i] = fmt.Sprintf("- [%s][role:%s][id:%s][name:%s] %s",
				item.Time.Format("2006-01-02 15:04:05"), item.Kind, item.ID, item.Name, item.Text())
		}
		rendering = strings.Join(lines, "\n")
	}

	return strings.ReplaceAll(template, "{MEMORY_BUFFER}", rendering)
}
