package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/orthanc-go/orthanc/internal/models"
)

// ChangeRepository is the append-only CRUD surface over the changes table.
type ChangeRepository struct {
	db *gorm.DB
}

// NewChangeRepository binds a repository to db.
func NewChangeRepository(db *gorm.DB) *ChangeRepository {
	return &ChangeRepository{db: db}
}

// Log appends a single change row.
func (r *ChangeRepository) Log(ctx context.Context, changeType models.ChangeType, resourceID int64, kind models.ResourceKind, publicID string, at time.Time) error {
	row := models.Change{
		ChangeType:       changeType,
		ResourceID:        resourceID,
		ResourceKind:      kind,
		ResourcePublicID:  publicID,
		Timestamp:         at,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to log change: %w", err)
	}
	return nil
}

// Since returns up to max changes with Seq > since, ordered by Seq, the
// paging view GET /changes exposes.
func (r *ChangeRepository) Since(ctx context.Context, since int64, max int) ([]models.Change, error) {
	var rows []models.Change
	err := r.db.WithContext(ctx).
		Where("seq > ?", since).
		Order("seq ASC").
		Limit(max).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	return rows, nil
}

// Last returns the most recent change, or nil if the log is empty.
func (r *ChangeRepository) Last(ctx context.Context) (*models.Change, error) {
	var row models.Change
	err := r.db.WithContext(ctx).Order("seq DESC").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last change: %w", err)
	}
	return &row, nil
}
