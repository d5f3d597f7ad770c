package persistence

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/store"
	domainErrors "github.com/Reynold-degenracy/EverMemoryArchive/pkg/errors"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestGormActorDBSaveAndGet(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormActorDB(db)
	ctx := context.Background()

	rec := store.ActorRecord{ID: "actor-1", Name: "actor-1", CreatedAt: time.Now()}
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Get(ctx, "actor-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "actor-1" {
		t.Errorf("ID = %q, want actor-1", got.ID)
	}
}

func TestGormActorDBGetNotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormActorDB(db)

	_, err := repo.Get(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected an error for an unknown actor")
	}
	if !domainErrors.IsNotFound(err) {
		t.Errorf("err = %v, want a not-found AppError", err)
	}
}

func TestGormActorDBSaveUpserts(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormActorDB(db)
	ctx := context.Background()

	if err := repo.Save(ctx, store.ActorRecord{ID: "actor-1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := repo.Save(ctx, store.ActorRecord{ID: "actor-1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("second Save (upsert): %v", err)
	}

	got, err := repo.Get(ctx, "actor-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "actor-1" {
		t.Errorf("ID = %q, want actor-1", got.ID)
	}
}

func TestGormShortTermMemoryDBAppendAndRecent(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormShortTermMemoryDB(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		msg := message.BufferMessage{
			Kind:     message.BufferUser,
			ID:       "msg-" + string(rune('a'+i)),
			Contents: []message.Content{message.NewText("turn")},
			Time:     time.Now(),
		}
		if err := repo.Append(ctx, "actor-1", msg); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	recent, err := repo.Recent(ctx, "actor-1", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("len(recent) = %d, want 3", len(recent))
	}
	if recent[0].ID != "msg-c" || recent[2].ID != "msg-e" {
		t.Errorf("recent IDs = %v, want chronological order ending at msg-e", []string{recent[0].ID, recent[1].ID, recent[2].ID})
	}
}

func TestGormShortTermMemoryDBRecentZeroLimitReturnsAll(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormShortTermMemoryDB(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := message.BufferMessage{Kind: message.BufferActor, ID: "m", Contents: []message.Content{message.NewText("x")}, Time: time.Now()}
		if err := repo.Append(ctx, "actor-2", msg); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := repo.Recent(ctx, "actor-2", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}

func TestGormShortTermMemoryDBScopedByActor(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormShortTermMemoryDB(db)
	ctx := context.Background()

	if err := repo.Append(ctx, "actor-a", message.BufferMessage{Kind: message.BufferUser, ID: "a1", Contents: []message.Content{message.NewText("a")}, Time: time.Now()}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := repo.Append(ctx, "actor-b", message.BufferMessage{Kind: message.BufferUser, ID: "b1", Contents: []message.Content{message.NewText("b")}, Time: time.Now()}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	recent, err := repo.Recent(ctx, "actor-a", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "a1" {
		t.Errorf("recent = %v, want only actor-a's own entry", recent)
	}
}
