package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/store"
	domainErrors "github.com/Reynold-degenracy/EverMemoryArchive/pkg/errors"
)

// GormActorDB is the gorm-backed store.ActorDB implementation.
type GormActorDB struct {
	db *gorm.DB
}

// NewGormActorDB builds a GormActorDB over an already-migrated *gorm.DB.
func NewGormActorDB(db *gorm.DB) store.ActorDB {
	return &GormActorDB{db: db}
}

// Get loads one actor record by id.
func (r *GormActorDB) Get(ctx context.Context, id string) (store.ActorRecord, error) {
	var model ActorModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.ActorRecord{}, domainErrors.NewNotFoundError("actor not found")
		}
		return store.ActorRecord{}, domainErrors.NewInternalError("failed to find actor: " + err.Error())
	}
	return store.ActorRecord{
		ID:        model.ID,
		Name:      model.ID,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

// Save upserts an actor record.
func (r *GormActorDB) Save(ctx context.Context, rec store.ActorRecord) error {
	model := ActorModel{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: time.Now(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = model.UpdatedAt
	}
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return domainErrors.NewInternalError("failed to save actor: " + err.Error())
	}
	return nil
}
