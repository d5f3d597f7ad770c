package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
)

// InMemoryActorDB is a mutex-guarded ActorDB for tests and single-process
// deployments.
type InMemoryActorDB struct {
	mu      sync.RWMutex
	records map[string]ActorRecord
}

func NewInMemoryActorDB() *InMemoryActorDB {
	return &InMemoryActorDB{records: make(map[string]ActorRecord)}
}

func (db *InMemoryActorDB) Get(ctx context.Context, id string) (ActorRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rec, ok := db.records[id]
	if !ok {
		return ActorRecord{}, fmt.Errorf("actor not found: %s", id)
	}
	return rec, nil
}

func (db *InMemoryActorDB) Save(ctx context.Context, rec ActorRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.records[rec.ID] = rec
	return nil
}

// InMemoryShortTermMemoryDB is a mutex-guarded, per-actor ordered append log.
type InMemoryShortTermMemoryDB struct {
	mu   sync.Mutex
	logs map[string][]message.BufferMessage
}

func NewInMemoryShortTermMemoryDB() *InMemoryShortTermMemoryDB {
	return &InMemoryShortTermMemoryDB{logs: make(map[string][]message.BufferMessage)}
}

func (db *InMemoryShortTermMemoryDB) Append(ctx context.Context, actorID string, msg message.BufferMessage) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.logs[actorID] = append(db.logs[actorID], msg)
	return nil
}

func (db *InMemoryShortTermMemoryDB) Recent(ctx context.Context, actorID string, limit int) ([]message.BufferMessage, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	all := db.logs[actorID]
	if limit <= 0 || limit >= len(all) {
		out := make([]message.BufferMessage, len(all))
		copy(out, all)
		return out, nil
	}
	out := make([]message.BufferMessage, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

// InMemoryLongTermMemory is a mutex-guarded cosine-similarity vector store,
// grounded on the teacher's InMemoryVectorStore.
type InMemoryLongTermMemory struct {
	mu      sync.RWMutex
	entries map[string]MemoryEntry
}

func NewInMemoryLongTermMemory() *InMemoryLongTermMemory {
	return &InMemoryLongTermMemory{entries: make(map[string]MemoryEntry)}
}

func (s *InMemoryLongTermMemory) Insert(ctx context.Context, entry MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	return nil
}

func (s *InMemoryLongTermMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *InMemoryLongTermMemory) Get(ctx context.Context, id string) (MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return MemoryEntry{}, fmt.Errorf("memory entry not found: %s", id)
	}
	return e, nil
}

func (s *InMemoryLongTermMemory) Search(ctx context.Context, actorID string, query []float32, topK int) ([]MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		entry MemoryEntry
		score float64
	}
	var candidates []scored
	for _, e := range s.entries {
		if e.ActorID != actorID {
			continue
		}
		candidates = append(candidates, scored{entry: e, score: cosineSimilarity(query, e.Embedding)})
	}

	// Simple insertion sort by descending score; candidate sets are small
	// per actor, so this stays cheap and dependency-free.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score > candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	if topK > 0 && topK < len(candidates) {
		candidates = candidates[:topK]
	}
	out := make([]MemoryEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrt(normA) * sqrt(normB))
}

// sqrt is Newton's method run for a fixed 20 iterations, grounded on the teacher's
// memory.go which avoids importing math for a single call site.
func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
