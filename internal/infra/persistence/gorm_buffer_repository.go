package persistence

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/store"
	domainErrors "github.com/Reynold-degenracy/EverMemoryArchive/pkg/errors"
)

// GormShortTermMemoryDB is the gorm-backed store.ShortTermMemoryDB
// implementation, durable across process restarts (unlike
// store.InMemoryShortTermMemoryDB, which this mirrors in behavior).
type GormShortTermMemoryDB struct {
	db *gorm.DB
}

// NewGormShortTermMemoryDB builds a GormShortTermMemoryDB over an
// already-migrated *gorm.DB.
func NewGormShortTermMemoryDB(db *gorm.DB) store.ShortTermMemoryDB {
	return &GormShortTermMemoryDB{db: db}
}

// Append persists one buffer item, ordered by insertion.
func (r *GormShortTermMemoryDB) Append(ctx context.Context, actorID string, msg message.BufferMessage) error {
	contentsJSON, err := json.Marshal(msg.Contents)
	if err != nil {
		return domainErrors.NewInternalError("failed to marshal buffer contents: " + err.Error())
	}

	model := BufferItemModel{
		ActorID:      actorID,
		ItemID:       msg.ID,
		Kind:         string(msg.Kind),
		Name:         msg.Name,
		ContentsJSON: string(contentsJSON),
		OccurredAt:   msg.Time,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domainErrors.NewInternalError("failed to append buffer item: " + err.Error())
	}
	return nil
}

// Recent returns the last limit buffer items in chronological order, or the
// full history (oldest first) when limit is 0.
func (r *GormShortTermMemoryDB) Recent(ctx context.Context, actorID string, limit int) ([]message.BufferMessage, error) {
	var models []BufferItemModel
	q := r.db.WithContext(ctx).Where("actor_id = ?", actorID).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to load buffer items: " + err.Error())
	}

	out := make([]message.BufferMessage, len(models))
	for i, model := range models {
		var contents []message.Content
		if err := json.Unmarshal([]byte(model.ContentsJSON), &contents); err != nil {
			return nil, domainErrors.NewInternalError("failed to unmarshal buffer contents: " + err.Error())
		}
		// models is newest-first; reverse into chronological order.
		out[len(models)-1-i] = message.BufferMessage{
			Kind:     message.BufferKind(model.Kind),
			ID:       model.ItemID,
			Name:     model.Name,
			Contents: contents,
			Time:     model.OccurredAt,
		}
	}
	return out, nil
}
