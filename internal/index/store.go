package index

import (
	"context"
	"time"

	"github.com/suyashkumar/dicom/pkg/tag"
	"gorm.io/gorm"

	"github.com/orthanc-go/orthanc/internal/hashing"
	"github.com/orthanc-go/orthanc/internal/models"
	"github.com/orthanc-go/orthanc/internal/repository"
)

// Store ingests one instance's already-extracted main DICOM tags and
// already-written attachments, deduplicating against any instance
// already stored under the same identifiers and creating whatever
// ancestor Patient/Study/Series rows don't yet exist. Grounded line for
// line on ServerIndex::Store.
func (idx *ServerIndex) Store(ctx context.Context, tags map[models.TagKey]string, attachments []AttachmentInput, remoteAET string) (StoreStatus, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids := hashing.Identifiers{
		PatientID:         tags[tagKey(tag.PatientID)],
		StudyInstanceUID:  tags[tagKey(tag.StudyInstanceUID)],
		SeriesInstanceUID: tags[tagKey(tag.SeriesInstanceUID)],
		SOPInstanceUID:    tags[tagKey(tag.SOPInstanceUID)],
	}
	patientUUID, studyUUID, seriesUUID, instanceUUID := hashing.HashAll(ids)

	status := StoreStatusSuccess
	now := time.Now().UTC()

	err := idx.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resources := repository.NewResourceRepository(tx)
		tagRepo := repository.NewTagRepository(tx)
		metadata := repository.NewMetadataRepository(tx)
		attachmentRepo := repository.NewAttachmentRepository(tx)
		changes := repository.NewChangeRepository(tx)

		if _, err := resources.FindByPublicID(ctx, instanceUUID, models.KindInstance); err == nil {
			status = StoreStatusAlreadyStored
			return nil
		} else if err != gorm.ErrRecordNotFound {
			return err
		}

		instance := &models.Resource{PublicID: instanceUUID, Kind: models.KindInstance, CreatedAt: now}
		if err := resources.Create(ctx, instance); err != nil {
			return err
		}
		if err := tagRepo.SetTags(ctx, instance.ID, projectTags(tags, models.KindInstance)); err != nil {
			return err
		}

		isNewSeries := false
		series, err := resources.FindByPublicID(ctx, seriesUUID, models.KindSeries)
		switch {
		case err == nil:
			if err := resources.SetParent(ctx, instance.ID, series.ID); err != nil {
				return err
			}
		case err == gorm.ErrRecordNotFound:
			isNewSeries = true
			series = &models.Resource{PublicID: seriesUUID, Kind: models.KindSeries, CreatedAt: now}
			if err := resources.Create(ctx, series); err != nil {
				return err
			}
			if err := tagRepo.SetTags(ctx, series.ID, projectTags(tags, models.KindSeries)); err != nil {
				return err
			}
			if err := resources.SetParent(ctx, instance.ID, series.ID); err != nil {
				return err
			}
			if err := changes.Log(ctx, models.ChangeNewSeries, series.ID, models.KindSeries, seriesUUID, now); err != nil {
				return err
			}

			study, err := resources.FindByPublicID(ctx, studyUUID, models.KindStudy)
			switch {
			case err == nil:
				if err := resources.SetParent(ctx, series.ID, study.ID); err != nil {
					return err
				}
			case err == gorm.ErrRecordNotFound:
				study = &models.Resource{PublicID: studyUUID, Kind: models.KindStudy, CreatedAt: now}
				if err := resources.Create(ctx, study); err != nil {
					return err
				}
				if err := tagRepo.SetTags(ctx, study.ID, projectTags(tags, models.KindStudy)); err != nil {
					return err
				}
				if err := resources.SetParent(ctx, series.ID, study.ID); err != nil {
					return err
				}
				if err := changes.Log(ctx, models.ChangeNewStudy, study.ID, models.KindStudy, studyUUID, now); err != nil {
					return err
				}

				patient, err := resources.FindByPublicID(ctx, patientUUID, models.KindPatient)
				switch {
				case err == nil:
					if err := resources.SetParent(ctx, study.ID, patient.ID); err != nil {
						return err
					}
				case err == gorm.ErrRecordNotFound:
					patient = &models.Resource{PublicID: patientUUID, Kind: models.KindPatient, CreatedAt: now}
					if err := resources.Create(ctx, patient); err != nil {
						return err
					}
					if err := tagRepo.SetTags(ctx, patient.ID, projectTags(tags, models.KindPatient)); err != nil {
						return err
					}
					if err := resources.SetParent(ctx, study.ID, patient.ID); err != nil {
						return err
					}
					if err := changes.Log(ctx, models.ChangeNewPatient, patient.ID, models.KindPatient, patientUUID, now); err != nil {
						return err
					}
				default:
					return err
				}
			default:
				return err
			}
		default:
			return err
		}

		for _, a := range attachments {
			row := &models.Attachment{
				ResourceID:        instance.ID,
				Type:              a.Type,
				UUID:              a.UUID,
				CompressionType:   a.CompressionType,
				CompressedSize:    a.CompressedSize,
				UncompressedSize:  a.UncompressedSize,
				CompressedMD5:     a.CompressedMD5,
				UncompressedMD5:   a.UncompressedMD5,
			}
			if row.CompressionType == "" {
				row.CompressionType = "none"
			}
			if err := attachmentRepo.Create(ctx, row); err != nil {
				return err
			}
		}

		if err := metadata.Set(ctx, instance.ID, models.MetadataInstanceReceptionDate, now.Format(time.RFC3339)); err != nil {
			return err
		}
		if err := metadata.Set(ctx, instance.ID, models.MetadataInstanceRemoteAET, remoteAET); err != nil {
			return err
		}
		if indexInSeries, ok := firstPresent(tags, tag.InstanceNumber, tag.ImageIndex); ok {
			if err := metadata.Set(ctx, instance.ID, models.MetadataInstanceIndexInSeries, indexInSeries); err != nil {
				return err
			}
		}

		if isNewSeries {
			if expected, ok := firstPresent(tags, tag.NumberOfSlices, tag.ImagesInAcquisition, tag.CardiacNumberOfImages); ok {
				if err := metadata.Set(ctx, series.ID, models.MetadataSeriesExpectedNumInstances, expected); err != nil {
					return err
				}
			}
		}

		if err := changes.Log(ctx, models.ChangeNewInstance, instance.ID, models.KindInstance, instanceUUID, now); err != nil {
			return err
		}

		seriesStatus, err := idx.seriesStatus(ctx, tx, series.ID)
		if err != nil {
			return err
		}
		if seriesStatus == SeriesStatusComplete {
			if err := changes.Log(ctx, models.ChangeCompletedSeries, series.ID, models.KindSeries, series.PublicID, now); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return StoreStatusSuccess, err
	}
	return status, nil
}
