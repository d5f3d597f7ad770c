package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/store"
	coretool "github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
)

// Embedder turns text into the vector the long-term memory store indexes
// on; the Ollama-backed implementation lives in internal/infrastructure/embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MemorySaveTool writes one piece of long-term memory for the calling
// actor, embedding its text through Embedder before Insert.
type MemorySaveTool struct {
	actorID  string
	db       store.LongTermMemoryDB
	embedder Embedder
	logger   *zap.Logger
}

// NewMemorySaveTool builds a MemorySaveTool scoped to one actor.
func NewMemorySaveTool(actorID string, db store.LongTermMemoryDB, embedder Embedder, logger *zap.Logger) *MemorySaveTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemorySaveTool{actorID: actorID, db: db, embedder: embedder, logger: logger}
}

var _ coretool.Tool = (*MemorySaveTool)(nil)

func (t *MemorySaveTool) Name() string { return "memory_save" }

func (t *MemorySaveTool) Description() string {
	return "Save a fact or preference to long-term memory, for recall in future conversations."
}

func (t *MemorySaveTool) Parameters() coretool.Parameters {
	return coretool.Parameters{
		Properties: []coretool.Property{
			{Name: "content", Schema: map[string]any{"type": "string", "description": "the fact to remember"}},
		},
		Required: []string{"content"},
	}
}

func (t *MemorySaveTool) Execute(ctx context.Context, args map[string]any) (message.ToolResult, error) {
	content, _ := args["content"].(string)
	content = strings.TrimSpace(content)
	if content == "" {
		return message.ToolResult{Success: false, Error: "content must not be empty"}, nil
	}

	vector, err := t.embedder.Embed(ctx, content)
	if err != nil {
		return message.ToolResult{Success: false, Error: "failed to embed content: " + err.Error()}, nil
	}

	entry := store.MemoryEntry{
		ID:        uuid.NewString(),
		ActorID:   t.actorID,
		Content:   content,
		Embedding: vector,
		CreatedAt: time.Now(),
	}
	if err := t.db.Insert(ctx, entry); err != nil {
		t.logger.Error("failed to insert memory entry", zap.Error(err))
		return message.ToolResult{Success: false, Error: "failed to save memory: " + err.Error()}, nil
	}

	return message.ToolResult{Success: true, Content: "saved"}, nil
}

// MemoryRecallTool searches the calling actor's long-term memory for
// entries similar to a query.
type MemoryRecallTool struct {
	actorID  string
	searcher store.LongTermMemorySearcher
	embedder Embedder
	logger   *zap.Logger
}

// NewMemoryRecallTool builds a MemoryRecallTool scoped to one actor.
func NewMemoryRecallTool(actorID string, searcher store.LongTermMemorySearcher, embedder Embedder, logger *zap.Logger) *MemoryRecallTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryRecallTool{actorID: actorID, searcher: searcher, embedder: embedder, logger: logger}
}

var _ coretool.Tool = (*MemoryRecallTool)(nil)

func (t *MemoryRecallTool) Name() string { return "memory_recall" }

func (t *MemoryRecallTool) Description() string {
	return "Search long-term memory for facts related to a query."
}

func (t *MemoryRecallTool) Parameters() coretool.Parameters {
	return coretool.Parameters{
		Properties: []coretool.Property{
			{Name: "query", Schema: map[string]any{"type": "string", "description": "what to search for"}},
			{Name: "top_k", Schema: map[string]any{"type": "integer", "description": "max results, default 5"}},
		},
		Required: []string{"query"},
	}
}

func (t *MemoryRecallTool) Execute(ctx context.Context, args map[string]any) (message.ToolResult, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return message.ToolResult{Success: false, Error: "query must not be empty"}, nil
	}

	topK := 5
	if v, ok := args["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}

	vector, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return message.ToolResult{Success: false, Error: "failed to embed query: " + err.Error()}, nil
	}

	entries, err := t.searcher.Search(ctx, t.actorID, vector, topK)
	if err != nil {
		t.logger.Error("failed to search memory", zap.Error(err))
		return message.ToolResult{Success: false, Error: "failed to search memory: " + err.Error()}, nil
	}

	if len(entries) == 0 {
		return message.ToolResult{Success: true, Content: "no matching memories"}, nil
	}

	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.Content)
	}
	return message.ToolResult{Success: true, Content: b.String()}, nil
}
