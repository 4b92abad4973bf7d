package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orthanc-go/orthanc/internal/models"
)

// MetadataRepository is the CRUD surface over the metadata table.
type MetadataRepository struct {
	db *gorm.DB
}

// NewMetadataRepository binds a repository to db.
func NewMetadataRepository(db *gorm.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// Set upserts a single metadata key for resourceID. Metadata is the one
// mutable part of a resource (lineage keys like ModifiedFrom can be added
// after the fact), so this is an upsert rather than a plain insert.
func (r *MetadataRepository) Set(ctx context.Context, resourceID int64, key, value string) error {
	row := models.Metadata{ResourceID: resourceID, Key: key, Value: value}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resource_id"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// Get returns the value of a single metadata key, and whether it exists.
func (r *MetadataRepository) Get(ctx context.Context, resourceID int64, key string) (string, bool, error) {
	var row models.Metadata
	err := r.db.WithContext(ctx).
		Where("resource_id = ? AND key = ?", resourceID, key).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return row.Value, true, nil
}

// All returns every metadata key/value pair for resourceID.
func (r *MetadataRepository) All(ctx context.Context, resourceID int64) (map[string]string, error) {
	var rows []models.Metadata
	if err := r.db.WithContext(ctx).Where("resource_id = ?", resourceID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}
