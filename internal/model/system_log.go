package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SystemLog is an append-only audit entry written by the engine.
type SystemLog struct {
	ID        string            `gorm:"primaryKey;size:36" json:"id"`
	Timestamp time.Time         `gorm:"not null;index" json:"timestamp"`
	Level     LogLevel          `gorm:"size:16;not null;index" json:"level"`
	Message   string            `gorm:"type:text;not null" json:"message"`
	Details   datatypes.JSONMap `json:"details,omitempty"`
	Step      string            `gorm:"size:64;index" json:"step,omitempty"`
}

func (l *SystemLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	return nil
}
