package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/orthanc-go/orthanc/internal/models"
)

// AttachmentRepository is the CRUD surface over the attachments table.
type AttachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository binds a repository to db.
func NewAttachmentRepository(db *gorm.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create registers a new attachment against an instance resource.
func (r *AttachmentRepository) Create(ctx context.Context, att *models.Attachment) error {
	if err := r.db.WithContext(ctx).Create(att).Error; err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

// FindByResourceAndType looks up an instance's attachment of the given
// content type, used by LookupAttachment and by the Dicom-attachment read
// inside LookupResource (FileSize/FileUuid).
func (r *AttachmentRepository) FindByResourceAndType(ctx context.Context, resourceID int64, contentType models.AttachmentType) (*models.Attachment, error) {
	var att models.Attachment
	err := r.db.WithContext(ctx).
		Where("resource_id = ? AND type = ?", resourceID, contentType).
		First(&att).Error
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// ListByResource returns every attachment belonging to resourceID, used by
// the cascading delete walk to know every blob UUID to forward to
// signal_file_deleted before the rows themselves are removed.
func (r *AttachmentRepository) ListByResource(ctx context.Context, resourceID int64) ([]models.Attachment, error) {
	var rows []models.Attachment
	if err := r.db.WithContext(ctx).Where("resource_id = ?", resourceID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return rows, nil
}

// DeleteByResource removes every attachment row belonging to resourceID.
func (r *AttachmentRepository) DeleteByResource(ctx context.Context, resourceID int64) error {
	if err := r.db.WithContext(ctx).Where("resource_id = ?", resourceID).Delete(&models.Attachment{}).Error; err != nil {
		return fmt.Errorf("failed to delete attachments: %w", err)
	}
	return nil
}

// SizeTotals sums compressed and uncompressed bytes across every
// attachment, used by ComputeStatistics.
func (r *AttachmentRepository) SizeTotals(ctx context.Context) (compressed, uncompressed int64, err error) {
	row := struct {
		Compressed   int64
		Uncompressed int64
	}{}
	err = r.db.WithContext(ctx).
		Model(&models.Attachment{}).
		Select("COALESCE(SUM(compressed_size), 0) AS compressed, COALESCE(SUM(uncompressed_size), 0) AS uncompressed").
		Scan(&row).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum attachment sizes: %w", err)
	}
	return row.Compressed, row.Uncompressed, nil
}
