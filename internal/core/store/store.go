// Package store defines the narrow collaborator interfaces the core
// consumes for persistence (spec §6): actor records, the short-term buffer
// history, and long-term (vector) memory.
package store

import (
	"context"
	"time"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
)

// ActorRecord is the persisted shape of one actor.
type ActorRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActorDB persists actor records keyed by actor id.
type ActorDB interface {
	Get(ctx context.Context, id string) (ActorRecord, error)
	Save(ctx context.Context, rec ActorRecord) error
}

// ShortTermMemoryDB persists the ordered BufferMessage history consumed by
// buildSystemPrompt's {MEMORY_BUFFER} rendering.
type ShortTermMemoryDB interface {
	Append(ctx context.Context, actorID string, msg message.BufferMessage) error
	Recent(ctx context.Context, actorID string, limit int) ([]message.BufferMessage, error)
}

// MemoryEntry is one unit of long-term (vector-searchable) memory.
type MemoryEntry struct {
	ID        string
	ActorID   string
	Content   string
	Embedding []float32
	CreatedAt time.Time
	Metadata  map[string]string
}

// LongTermMemoryDB persists long-term memory entries.
type LongTermMemoryDB interface {
	Insert(ctx context.Context, entry MemoryEntry) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (MemoryEntry, error)
}

// LongTermMemorySearcher performs similarity search over long-term memory.
type LongTermMemorySearcher interface {
	Search(ctx context.Context, actorID string, query []float32, topK int) ([]MemoryEntry, error)
}
