package index

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"github.com/orthanc-go/orthanc/internal/models"
	"github.com/orthanc-go/orthanc/internal/repository"
)

// LookupResource assembles the full lookup view of publicID: its main
// DICOM tags, parent and children public ids, and kind-specific extras
// (series completion status, instance file size/uuid). Grounded on
// ServerIndex::LookupResource.
func (idx *ServerIndex) LookupResource(ctx context.Context, publicID string) (*ResourceInfo, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	resources := repository.NewResourceRepository(idx.db)
	tagRepo := repository.NewTagRepository(idx.db)
	attachmentRepo := repository.NewAttachmentRepository(idx.db)
	metadata := repository.NewMetadataRepository(idx.db)

	res, err := resources.FindAnyByPublicID(ctx, publicID)
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	tags, err := tagRepo.GetTags(ctx, res.ID)
	if err != nil {
		return nil, false, err
	}

	info := &ResourceInfo{
		ID:   res.PublicID,
		Kind: res.Kind,
		Tags: tags,
	}

	if res.ParentID != nil {
		parent, err := resources.FindByID(ctx, *res.ParentID)
		if err != nil {
			return nil, false, err
		}
		info.ParentID = parent.PublicID
	}

	children, err := resources.Children(ctx, res.ID)
	if err != nil {
		return nil, false, err
	}
	for _, child := range children {
		info.Children = append(info.Children, child.PublicID)
	}

	switch res.Kind {
	case models.KindSeries:
		status, err := idx.seriesStatus(ctx, idx.db, res.ID)
		if err != nil {
			return nil, false, err
		}
		info.SeriesStatus = status

		if raw, ok, err := metadata.Get(ctx, res.ID, models.MetadataSeriesExpectedNumInstances); err != nil {
			return nil, false, err
		} else if ok {
			if n, convErr := strconv.Atoi(raw); convErr == nil {
				info.ExpectedNumInstances = &n
			}
		}

	case models.KindInstance:
		att, err := attachmentRepo.FindByResourceAndType(ctx, res.ID, models.FileDicom)
		if err == nil {
			info.FileUUID = att.UUID
			info.FileSize = att.UncompressedSize
		} else if err != gorm.ErrRecordNotFound {
			return nil, false, err
		}

		if raw, ok, err := metadata.Get(ctx, res.ID, models.MetadataInstanceIndexInSeries); err != nil {
			return nil, false, err
		} else if ok {
			if n, convErr := strconv.Atoi(raw); convErr == nil {
				info.IndexInSeries = &n
			}
		}
	}

	return info, true, nil
}

// LookupAttachment returns the stored attachment of the given content
// type for an Instance resource, grounded on
// ServerIndex::LookupAttachment (which rejects any resource that isn't
// an Instance -- only instances carry file attachments).
func (idx *ServerIndex) LookupAttachment(ctx context.Context, publicID string, contentType models.AttachmentType) (*AttachmentInfo, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	resources := repository.NewResourceRepository(idx.db)
	attachmentRepo := repository.NewAttachmentRepository(idx.db)

	res, err := resources.FindByPublicID(ctx, publicID, models.KindInstance)
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	att, err := attachmentRepo.FindByResourceAndType(ctx, res.ID, contentType)
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return &AttachmentInfo{
		UUID:             att.UUID,
		CompressionType:  att.CompressionType,
		CompressedSize:   att.CompressedSize,
		UncompressedSize: att.UncompressedSize,
		CompressedMD5:    att.CompressedMD5,
		UncompressedMD5:  att.UncompressedMD5,
	}, true, nil
}

// GetAllUUIDs returns the public ids of every resource of the given
// kind, grounded on ServerIndex::GetAllUuids.
func (idx *ServerIndex) GetAllUUIDs(ctx context.Context, kind models.ResourceKind) ([]string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	resources := repository.NewResourceRepository(idx.db)
	return resources.AllUUIDs(ctx, kind)
}
