// Package app wires the core actor runtime into a multi-actor pool shared by
// the HTTP and Telegram front doors: one lazily-created actor.Worker and
// eventbus.Bus per actor ID, backed by persistence for the actor record
// itself (buffer history and long-term memory are each Worker's own
// collaborators).
package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/actor"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/eventbus"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/llm"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/store"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
)

// WorkerTemplate carries the actor.Config fields shared by every actor the
// pool spawns; ActorID and BaseTools are filled in per actor.
type WorkerTemplate struct {
	SystemPromptTemplate string
	MaxSteps             int
	TokenLimit           int
	BufferWindow         int
}

// ToolsFactory builds the tool registry for one actor. Tools that are
// actor-scoped (memory recall/save, bound to that actor's id) are built
// fresh per actor; stateless tools (shell, reply) can be shared and simply
// re-registered.
type ToolsFactory func(actorID string) tool.Registry

// entry is one actor's live state: its Worker and the bus it was built
// with, so BusFor can hand it back to a front door without re-deriving it.
type entry struct {
	worker *actor.Worker
	bus    *eventbus.Bus
}

// Pool lazily creates one actor.Worker per actor ID on first Submit, and
// satisfies both the HTTP and Telegram front doors' ActorPool contracts.
type Pool struct {
	template     WorkerTemplate
	client       llm.Client
	toolsFactory ToolsFactory
	short        store.ShortTermMemoryDB
	actors       store.ActorDB
	logger       *zap.Logger

	mu      sync.Mutex
	workers map[string]*entry
}

// NewPool builds a Pool. actors may be nil to skip persisting actor
// records (e.g. in tests); short must not be nil, since every Worker needs
// it for buffer history.
func NewPool(template WorkerTemplate, client llm.Client, toolsFactory ToolsFactory, short store.ShortTermMemoryDB, actors store.ActorDB, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		template:     template,
		client:       client,
		toolsFactory: toolsFactory,
		short:        short,
		actors:       actors,
		logger:       logger,
		workers:      make(map[string]*entry),
	}
}

// Submit is the ActorPool contract both front doors depend on: it derives
// or reuses the named actor's Worker and hands it one user input.
func (p *Pool) Submit(ctx context.Context, actorID, userID, text string) error {
	e := p.getOrCreate(ctx, actorID)
	return e.worker.Work(ctx, userID, []message.Content{message.NewText(text)})
}

// BusFor returns the named actor's event bus, or nil if the actor has
// never been addressed.
func (p *Pool) BusFor(actorID string) *eventbus.Bus {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.workers[actorID]
	if !ok {
		return nil
	}
	return e.bus
}

func (p *Pool) getOrCreate(ctx context.Context, actorID string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.workers[actorID]; ok {
		return e
	}

	bus := eventbus.New(p.logger)
	registry := p.toolsFactory(actorID)
	cfg := actor.Config{
		ActorID:              actorID,
		SystemPromptTemplate: p.template.SystemPromptTemplate,
		BaseTools:            registry.List(),
		MaxSteps:             p.template.MaxSteps,
		TokenLimit:           p.template.TokenLimit,
		BufferWindow:         p.template.BufferWindow,
	}
	worker := actor.New(cfg, p.client, registry, bus, p.short, p.logger.With(zap.String("actorID", actorID)))
	e := &entry{worker: worker, bus: bus}
	p.workers[actorID] = e

	if p.actors != nil {
		p.persistNewActor(ctx, actorID)
	}

	return e
}

func (p *Pool) persistNewActor(ctx context.Context, actorID string) {
	if _, err := p.actors.Get(ctx, actorID); err == nil {
		return
	}
	rec := store.ActorRecord{ID: actorID, Name: actorID}
	if err := p.actors.Save(ctx, rec); err != nil {
		p.logger.Error("failed to persist new actor record", zap.String("actorID", actorID), zap.Error(err))
	}
}
