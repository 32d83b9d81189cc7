// Package gormstore is a GORM-backed reference implementation of
// workerstore.Store, following the teacher's db.base/UUIDv7-on-create
// convention (server/internal/db/models.go) and its
// interface-per-entity/gorm.DB-wrapped-struct repository shape
// (server/internal/repositories/agent.go).
package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base mirrors the teacher's db.base: a UUIDv7 primary key generated on
// create if absent, plus GORM-managed timestamps.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// worker is the persisted row backing workerstore.Worker. HostID and
// ProjectID are plain strings rather than foreign keys: the host side of
// the binding lives in the in-memory registry, not this store.
type worker struct {
	base
	HostID    string `gorm:"index"`
	ProjectID string `gorm:"index"`
	Status    string `gorm:"not null;default:'idle'"`
}

func (worker) TableName() string { return "workers" }

// task is the persisted row backing workerstore.Task.
type task struct {
	base
	WorkerID uuid.UUID `gorm:"type:text;not null;index"`
	Status   string    `gorm:"not null;default:'dispatched'"`
}

func (task) TableName() string { return "tasks" }
