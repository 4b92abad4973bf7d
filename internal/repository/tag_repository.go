package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/orthanc-go/orthanc/internal/models"
)

// TagRepository is the CRUD surface over main_dicom_tags.
type TagRepository struct {
	db *gorm.DB
}

// NewTagRepository binds a repository to db.
func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

// SetTags replaces every MainDicomTag row for resourceID with tags. Called
// once, right after a resource is created -- MainDicomTags are immutable
// for the lifetime of a resource, so there is no update path.
func (r *TagRepository) SetTags(ctx context.Context, resourceID int64, tags map[models.TagKey]string) error {
	rows := make([]models.MainDicomTag, 0, len(tags))
	for k, v := range tags {
		rows = append(rows, models.MainDicomTag{
			ResourceID: resourceID,
			Group:      k.Group,
			Element:    k.Element,
			Value:      v,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to set main dicom tags: %w", err)
	}
	return nil
}

// GetTags returns every MainDicomTag row for resourceID as a tag-keyed map.
func (r *TagRepository) GetTags(ctx context.Context, resourceID int64) (map[models.TagKey]string, error) {
	var rows []models.MainDicomTag
	if err := r.db.WithContext(ctx).Where("resource_id = ?", resourceID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get main dicom tags: %w", err)
	}
	out := make(map[models.TagKey]string, len(rows))
	for _, row := range rows {
		out[models.TagKey{Group: row.Group, Element: row.Element}] = row.Value
	}
	return out, nil
}
