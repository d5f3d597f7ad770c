// Package persistence adapts the core store interfaces onto gorm, following
// the teacher's gorm_agent_repository.go / gorm_message_repository.go shape:
// one gorm model per store, conversion between store records and gorm rows
// done inline in each repository method, and domainErrors.AppError wrapping
// on every failure path.
package persistence

import (
	"time"

	"gorm.io/gorm"
)

// ActorModel is the gorm row backing one registered actor.
type ActorModel struct {
	ID                   string `gorm:"primaryKey;size:64"`
	SystemPromptTemplate string `gorm:"type:text"`
	MaxSteps             int
	TokenLimit           int
	BufferWindow         int
	CreatedAt            time.Time
	UpdatedAt            time.Time
	DeletedAt            gorm.DeletedAt `gorm:"index"`
}

// TableName pins the actors table name.
func (ActorModel) TableName() string { return "actors" }

// BufferItemModel is the gorm row backing one short-term buffer entry
// (one message.BufferMessage, persisted outside process memory).
type BufferItemModel struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ActorID        string `gorm:"index;size:64;not null"`
	ItemID         string `gorm:"size:64;not null"`
	Kind           string `gorm:"size:16;not null"` // user | actor
	Name           string `gorm:"size:128"`
	ContentsJSON   string `gorm:"type:text;not null"`
	OccurredAt     time.Time `gorm:"index"`
	CreatedAt      time.Time
}

// TableName pins the buffer_items table name.
func (BufferItemModel) TableName() string { return "buffer_items" }

// Migrate runs the auto-migration for every persistence model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&ActorModel{}, &BufferItemModel{})
}
