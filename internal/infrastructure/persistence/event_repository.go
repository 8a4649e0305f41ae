package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/storefront/analytics/internal/domain/tracking"
	"github.com/storefront/analytics/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormEventRepository implements tracking.EventRepository using gorm
type GormEventRepository struct {
	db *gorm.DB
}

// NewGormEventRepository creates a new GormEventRepository
func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	return &GormEventRepository{db: db}
}

// Save persists one envelope
func (r *GormEventRepository) Save(ctx context.Context, env tracking.Envelope) error {
	properties, err := json.Marshal(env.Properties)
	if err != nil {
		return fmt.Errorf("marshal event properties: %w", err)
	}

	record := models.EventRecord{
		ID:         uuid.New(),
		EventID:    env.EventID,
		Kind:       string(env.Kind),
		SessionID:  env.SessionID,
		UserID:     env.UserID,
		OccurredAt: env.OccurredAt(),
		Properties: string(properties),
	}
	return r.db.WithContext(ctx).Create(&record).Error
}

// FindRange returns stored events matching the query, oldest first
func (r *GormEventRepository) FindRange(ctx context.Context, query tracking.ExportQuery) ([]tracking.StoredEvent, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.EventRecord{}).
		Where("occurred_at >= ? AND occurred_at < ?", query.Start, query.End)
	if len(query.Kinds) > 0 {
		kinds := make([]string, len(query.Kinds))
		for i, kind := range query.Kinds {
			kinds[i] = string(kind)
		}
		tx = tx.Where("kind IN ?", kinds)
	}

	var records []models.EventRecord
	if err := tx.Order("occurred_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}

	events := make([]tracking.StoredEvent, 0, len(records))
	for _, record := range records {
		events = append(events, toStoredEvent(record))
	}
	return events, nil
}

// CountBySession returns the number of stored events for a session
func (r *GormEventRepository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.EventRecord{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

// toStoredEvent converts a persistence record to the domain read model.
// Corrupt stored properties degrade to an empty map rather than failing the
// whole export
func toStoredEvent(record models.EventRecord) tracking.StoredEvent {
	properties := map[string]any{}
	if record.Properties != "" {
		_ = json.Unmarshal([]byte(record.Properties), &properties)
	}
	return tracking.StoredEvent{
		EventID:    record.EventID.String(),
		Kind:       tracking.EventKind(record.Kind),
		SessionID:  record.SessionID,
		UserID:     record.UserID,
		OccurredAt: record.OccurredAt,
		Properties: properties,
	}
}
