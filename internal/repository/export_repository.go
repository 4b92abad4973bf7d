package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/orthanc-go/orthanc/internal/models"
)

// ExportRepository is the append-only CRUD surface over exported_resources.
type ExportRepository struct {
	db *gorm.DB
}

// NewExportRepository binds a repository to db.
func NewExportRepository(db *gorm.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Log appends a single export row. Single-row insert, no transaction
// needed, matching spec §4.4's log_exported_resource.
func (r *ExportRepository) Log(ctx context.Context, row models.ExportedResource) error {
	row.Timestamp = time.Now().UTC()
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to log exported resource: %w", err)
	}
	return nil
}

// Since returns up to max exports with Seq > since, ordered by Seq.
func (r *ExportRepository) Since(ctx context.Context, since int64, max int) ([]models.ExportedResource, error) {
	var rows []models.ExportedResource
	err := r.db.WithContext(ctx).
		Where("seq > ?", since).
		Order("seq ASC").
		Limit(max).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list exported resources: %w", err)
	}
	return rows, nil
}

// Last returns the most recent export, or nil if the log is empty.
func (r *ExportRepository) Last(ctx context.Context) (*models.ExportedResource, error) {
	var row models.ExportedResource
	err := r.db.WithContext(ctx).Order("seq DESC").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last exported resource: %w", err)
	}
	return &row, nil
}
