// Package models defines the gorm persistence models for the collector.
package models

import (
	"time"

	"github.com/google/uuid"
)

// EventRecord is one persisted analytics envelope. Properties are stored as a
// JSON document so the schema stays stable as event kinds evolve
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	EventID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Kind       string    `gorm:"size:64;index;not null"`
	SessionID  string    `gorm:"size:64;index;not null"`
	UserID     string    `gorm:"size:64;index"`
	OccurredAt time.Time `gorm:"index;not null"`
	Properties string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName maps EventRecord to the analytics_events table
func (EventRecord) TableName() string {
	return "analytics_events"
}

// SessionBatchRecord is one persisted heatmap batch. The sample arrays are
// stored together as a JSON payload; the collector never queries inside them
type SessionBatchRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	SessionID  string    `gorm:"size:64;index;not null"`
	UserID     string    `gorm:"size:64;index"`
	Page       string    `gorm:"size:512"`
	RecordedAt time.Time `gorm:"index;not null"`
	Payload    string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName maps SessionBatchRecord to the session_batches table
func (SessionBatchRecord) TableName() string {
	return "session_batches"
}

// ExperimentRecord is one experiment definition served to tracker engines
type ExperimentRecord struct {
	ExperimentID string    `gorm:"size:128;primary_key"`
	Variant      string    `gorm:"size:128;not null"`
	Active       bool      `gorm:"index;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName maps ExperimentRecord to the experiments table
func (ExperimentRecord) TableName() string {
	return "experiments"
}
