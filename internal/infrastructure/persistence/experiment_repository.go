package persistence

import (
	"context"

	"github.com/storefront/analytics/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormExperimentRepository implements tracking.ExperimentRepository using gorm
type GormExperimentRepository struct {
	db *gorm.DB
}

// NewGormExperimentRepository creates a new GormExperimentRepository
func NewGormExperimentRepository(db *gorm.DB) *GormExperimentRepository {
	return &GormExperimentRepository{db: db}
}

// Active returns the experiment -> variant map for running experiments
func (r *GormExperimentRepository) Active(ctx context.Context) (map[string]string, error) {
	var records []models.ExperimentRecord
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Find(&records).Error; err != nil {
		return nil, err
	}

	active := make(map[string]string, len(records))
	for _, record := range records {
		active[record.ExperimentID] = record.Variant
	}
	return active, nil
}

// Upsert creates or updates an experiment definition
func (r *GormExperimentRepository) Upsert(ctx context.Context, experimentID, variant string, active bool) error {
	record := models.ExperimentRecord{
		ExperimentID: experimentID,
		Variant:      variant,
		Active:       active,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "experiment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"variant", "active", "updated_at"}),
		}).
		Create(&record).Error
}
