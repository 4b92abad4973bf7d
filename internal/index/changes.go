package index

import (
	"context"

	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/orthanc-go/orthanc/internal/models"
	"github.com/orthanc-go/orthanc/internal/repository"
)

// GetChanges returns up to max change log entries after since, grounded
// on ServerIndex::GetChanges.
func (idx *ServerIndex) GetChanges(ctx context.Context, since int64, max int) ([]models.Change, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	changes := repository.NewChangeRepository(idx.db)
	return changes.Since(ctx, since, max)
}

// GetLastChange returns the most recent change, or nil if the log is
// empty, grounded on ServerIndex::GetLastChange.
func (idx *ServerIndex) GetLastChange(ctx context.Context) (*models.Change, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	changes := repository.NewChangeRepository(idx.db)
	return changes.Last(ctx)
}

// LogExportedResource walks up from publicID to the patient at the root
// of its hierarchy, collecting the PatientID/StudyInstanceUID/
// SeriesInstanceUID/SOPInstanceUID main tags present at each level it
// passes through, then appends a single export row. Grounded on
// ServerIndex::LogExportedResource, including its own comment that a
// single-row insert needs no surrounding transaction.
func (idx *ServerIndex) LogExportedResource(ctx context.Context, publicID string, remoteModality string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	resources := repository.NewResourceRepository(idx.db)
	tagRepo := repository.NewTagRepository(idx.db)
	exports := repository.NewExportRepository(idx.db)

	res, err := resources.FindAnyByPublicID(ctx, publicID)
	if err != nil {
		return err
	}

	row := models.ExportedResource{
		ResourceKind:   res.Kind,
		PublicID:       res.PublicID,
		RemoteModality: remoteModality,
	}

	current := res
	for {
		tags, err := tagRepo.GetTags(ctx, current.ID)
		if err != nil {
			return err
		}
		switch current.Kind {
		case models.KindInstance:
			row.SOPInstanceUID = tags[tagKey(tag.SOPInstanceUID)]
		case models.KindSeries:
			row.SeriesInstanceUID = tags[tagKey(tag.SeriesInstanceUID)]
		case models.KindStudy:
			row.StudyInstanceUID = tags[tagKey(tag.StudyInstanceUID)]
		case models.KindPatient:
			row.PatientID = tags[tagKey(tag.PatientID)]
		}

		if current.Kind == models.KindPatient || current.ParentID == nil {
			break
		}
		current, err = resources.FindByID(ctx, *current.ParentID)
		if err != nil {
			return err
		}
	}

	return exports.Log(ctx, row)
}

// GetExportedResources returns up to max export rows after since,
// grounded on ServerIndex::GetExportedResources.
func (idx *ServerIndex) GetExportedResources(ctx context.Context, since int64, max int) ([]models.ExportedResource, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	exports := repository.NewExportRepository(idx.db)
	return exports.Since(ctx, since, max)
}

// GetLastExportedResource returns the most recent export row, or nil if
// the log is empty, grounded on ServerIndex::GetLastExportedResource.
func (idx *ServerIndex) GetLastExportedResource(ctx context.Context) (*models.ExportedResource, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	exports := repository.NewExportRepository(idx.db)
	return exports.Last(ctx)
}
