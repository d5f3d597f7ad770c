package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/store"
)

// fakeEmbedder returns a one-hot vector keyed on the text's first byte, so
// that distinct inputs are trivially distinguishable under cosine similarity
// without pulling in a real embedding model.
type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, 256)
	if len(text) > 0 {
		vec[text[0]] = 1
	}
	return vec, nil
}

func TestMemorySaveToolRejectsEmptyContent(t *testing.T) {
	db := store.NewInMemoryLongTermMemory()
	tool := NewMemorySaveTool("actor-1", db, &fakeEmbedder{}, nil)

	result, err := tool.Execute(context.Background(), map[string]any{"content": "   "})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for empty content")
	}
}

func TestMemorySaveToolInsertsEmbeddedEntry(t *testing.T) {
	db := store.NewInMemoryLongTermMemory()
	saveTool := NewMemorySaveTool("actor-1", db, &fakeEmbedder{}, nil)

	result, err := saveTool.Execute(context.Background(), map[string]any{"content": "likes dark roast coffee"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("Success = false, error = %q", result.Error)
	}

	entries, err := db.Search(context.Background(), "actor-1", []float32{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Content != "likes dark roast coffee" {
		t.Errorf("Content = %q, want %q", entries[0].Content, "likes dark roast coffee")
	}
	if entries[0].ID == "" {
		t.Error("ID is empty, want a generated uuid")
	}
}

func TestMemorySaveToolPropagatesEmbedError(t *testing.T) {
	db := store.NewInMemoryLongTermMemory()
	tool := NewMemorySaveTool("actor-1", db, &fakeEmbedder{err: errors.New("embedding service down")}, nil)

	result, err := tool.Execute(context.Background(), map[string]any{"content": "some fact"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure when the embedder errors")
	}
	if !strings.Contains(result.Error, "embedding service down") {
		t.Errorf("Error = %q, want it to mention the embedder's cause", result.Error)
	}
}

func TestMemorySaveToolScopesByActor(t *testing.T) {
	db := store.NewInMemoryLongTermMemory()
	embedder := &fakeEmbedder{}

	if _, err := NewMemorySaveTool("actor-1", db, embedder, nil).Execute(context.Background(), map[string]any{"content": "actor one fact"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := NewMemorySaveTool("actor-2", db, embedder, nil).Execute(context.Background(), map[string]any{"content": "actor two fact"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	recallTool := NewMemoryRecallTool("actor-1", db, embedder, nil)
	result, err := recallTool.Execute(context.Background(), map[string]any{"query": "actor one fact"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Content, "actor one fact") {
		t.Errorf("Content = %q, want it to contain actor-1's own memory", result.Content)
	}
	if strings.Contains(result.Content, "actor two fact") {
		t.Errorf("Content = %q, leaked actor-2's memory into actor-1's recall", result.Content)
	}
}

func TestMemoryRecallToolNoMatches(t *testing.T) {
	db := store.NewInMemoryLongTermMemory()
	recallTool := NewMemoryRecallTool("actor-1", db, &fakeEmbedder{}, nil)

	result, err := recallTool.Execute(context.Background(), map[string]any{"query": "anything"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("Success = false, error = %q", result.Error)
	}
	if result.Content != "no matching memories" {
		t.Errorf("Content = %q, want %q", result.Content, "no matching memories")
	}
}

func TestMemoryRecallToolRejectsEmptyQuery(t *testing.T) {
	db := store.NewInMemoryLongTermMemory()
	recallTool := NewMemoryRecallTool("actor-1", db, &fakeEmbedder{}, nil)

	result, err := recallTool.Execute(context.Background(), map[string]any{"query": ""})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for empty query")
	}
}
