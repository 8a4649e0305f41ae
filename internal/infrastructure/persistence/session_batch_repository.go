package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/analytics/internal/domain/tracking"
	"github.com/storefront/analytics/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// batchPayload is the JSON shape of the stored sample arrays
type batchPayload struct {
	MouseMovements  []tracking.MouseMoveSample `json:"mouseMovements"`
	Clicks          []tracking.ClickSample     `json:"clicks"`
	ScrollPositions []tracking.ScrollSample    `json:"scrollPositions"`
}

// GormSessionBatchRepository implements tracking.SessionBatchRepository using gorm
type GormSessionBatchRepository struct {
	db *gorm.DB
}

// NewGormSessionBatchRepository creates a new GormSessionBatchRepository
func NewGormSessionBatchRepository(db *gorm.DB) *GormSessionBatchRepository {
	return &GormSessionBatchRepository{db: db}
}

// Save persists one session batch as a single row
func (r *GormSessionBatchRepository) Save(ctx context.Context, batch tracking.SessionBatch) error {
	payload, err := json.Marshal(batchPayload{
		MouseMovements:  batch.MouseMovements,
		Clicks:          batch.Clicks,
		ScrollPositions: batch.ScrollPositions,
	})
	if err != nil {
		return fmt.Errorf("marshal session batch payload: %w", err)
	}

	record := models.SessionBatchRecord{
		ID:         uuid.New(),
		SessionID:  batch.SessionID,
		UserID:     batch.UserID,
		Page:       batch.Page,
		RecordedAt: time.UnixMilli(batch.Timestamp),
		Payload:    string(payload),
	}
	return r.db.WithContext(ctx).Create(&record).Error
}

// FindBySession returns all batches recorded for a session, oldest first
func (r *GormSessionBatchRepository) FindBySession(ctx context.Context, sessionID string) ([]tracking.SessionBatch, error) {
	var records []models.SessionBatchRecord
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("recorded_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	batches := make([]tracking.SessionBatch, 0, len(records))
	for _, record := range records {
		var payload batchPayload
		if record.Payload != "" {
			_ = json.Unmarshal([]byte(record.Payload), &payload)
		}
		batches = append(batches, tracking.SessionBatch{
			SessionID:       record.SessionID,
			UserID:          record.UserID,
			Timestamp:       record.RecordedAt.UnixMilli(),
			Page:            record.Page,
			MouseMovements:  payload.MouseMovements,
			Clicks:          payload.Clicks,
			ScrollPositions: payload.ScrollPositions,
		})
	}
	return batches, nil
}
