package models

import (
	"time"

	"custodia/internal/uuid"

	"gorm.io/gorm"
)

// Base contains common columns for all tables
type Base struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New()
	}
	return nil
}

// LifecycleState marks whether a record participates in default listings.
// Deactivated records are excluded from listings and aggregates.
type LifecycleState string

const (
	LifecycleActive      LifecycleState = "active"
	LifecycleDeactivated LifecycleState = "deactivated"
)
