package index

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"github.com/orthanc-go/orthanc/internal/models"
	"github.com/orthanc-go/orthanc/internal/repository"
)

// Statistics mirrors ServerIndex::ComputeStatistics's aggregate view of
// the whole index.
type Statistics struct {
	CountPatients          int64
	CountStudies           int64
	CountSeries            int64
	CountInstances         int64
	TotalDiskSize          int64
	TotalUncompressedSize  int64
}

// ComputeStatistics reports resource counts per level and attachment
// byte totals, grounded on ServerIndex::ComputeStatistics.
func (idx *ServerIndex) ComputeStatistics(ctx context.Context) (Statistics, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	resources := repository.NewResourceRepository(idx.db)
	attachments := repository.NewAttachmentRepository(idx.db)

	var stats Statistics
	var err error

	if stats.CountPatients, err = resources.CountByKind(ctx, models.KindPatient); err != nil {
		return Statistics{}, err
	}
	if stats.CountStudies, err = resources.CountByKind(ctx, models.KindStudy); err != nil {
		return Statistics{}, err
	}
	if stats.CountSeries, err = resources.CountByKind(ctx, models.KindSeries); err != nil {
		return Statistics{}, err
	}
	if stats.CountInstances, err = resources.CountByKind(ctx, models.KindInstance); err != nil {
		return Statistics{}, err
	}
	if stats.TotalDiskSize, stats.TotalUncompressedSize, err = attachments.SizeTotals(ctx); err != nil {
		return Statistics{}, err
	}

	return stats, nil
}

// seriesStatus implements GetSeriesStatus's exact algorithm against an
// open transaction: read the series' expected instance count (unknown
// if the metadata was never set or doesn't parse), then walk its
// children checking each one's IndexInSeries metadata. Any missing or
// unparsable index makes the series Unknown; an index out of
// [1, expected] or a duplicate index makes it Inconsistent; reaching
// exactly "expected" distinct
// indices makes it Complete; otherwise it is Missing.
func (idx *ServerIndex) seriesStatus(ctx context.Context, tx *gorm.DB, seriesID int64) (SeriesStatus, error) {
	metadata := repository.NewMetadataRepository(tx)
	resources := repository.NewResourceRepository(tx)

	expectedRaw, ok, err := metadata.Get(ctx, seriesID, models.MetadataSeriesExpectedNumInstances)
	if err != nil {
		return SeriesStatusUnknown, err
	}
	if !ok {
		return SeriesStatusUnknown, nil
	}
	expected, err := strconv.Atoi(expectedRaw)
	if err != nil {
		return SeriesStatusUnknown, nil
	}

	children, err := resources.Children(ctx, seriesID)
	if err != nil {
		return SeriesStatusUnknown, err
	}

	seen := make(map[int]bool, len(children))
	for _, child := range children {
		raw, ok, err := metadata.Get(ctx, child.ID, models.MetadataInstanceIndexInSeries)
		if err != nil {
			return SeriesStatusUnknown, err
		}
		if !ok {
			return SeriesStatusUnknown, nil
		}
		index, err := strconv.Atoi(raw)
		if err != nil {
			return SeriesStatusUnknown, nil
		}
		if index <= 0 || index > expected || seen[index] {
			return SeriesStatusInconsistent, nil
		}
		seen[index] = true
	}

	if len(seen) == expected {
		return SeriesStatusComplete, nil
	}
	return SeriesStatusMissing, nil
}

// GetSeriesStatus is the public, lock-guarded entry point onto
// seriesStatus for callers outside a Store/DeleteResource transaction.
func (idx *ServerIndex) GetSeriesStatus(ctx context.Context, seriesID int64) (SeriesStatus, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.seriesStatus(ctx, idx.db, seriesID)
}

// IncrementGlobalSequence atomically increments and returns the counter
// stored at key, backing GeneratePatientName's "Anonymized N" numbering.
func (idx *ServerIndex) IncrementGlobalSequence(ctx context.Context, key string) (uint64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	props := repository.NewGlobalPropertyRepository(idx.db)
	return props.IncrementSequence(ctx, key)
}

// SetMetadata records a lineage or bookkeeping entry against publicID,
// used by the modify/anonymize REST handlers to stamp ModifiedFrom/
// AnonymizedFrom onto a newly created ancestor once its hash has
// diverged from the resource it was derived from.
func (idx *ServerIndex) SetMetadata(ctx context.Context, publicID, key, value string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	resources := repository.NewResourceRepository(idx.db)
	res, err := resources.FindAnyByPublicID(ctx, publicID)
	if err != nil {
		return err
	}

	metadata := repository.NewMetadataRepository(idx.db)
	return metadata.Set(ctx, res.ID, key, value)
}

// GetChildInstances returns the public ids of every Instance descending
// from publicID, regardless of what level publicID itself names -- used
// by the modify/anonymize REST handlers to enumerate the instances a
// Study- or Series-level request must rewrite.
func (idx *ServerIndex) GetChildInstances(ctx context.Context, publicID string) ([]string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	resources := repository.NewResourceRepository(idx.db)
	res, err := resources.FindAnyByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	return idx.collectInstanceUUIDs(ctx, resources, res.ID, res.Kind)
}

func (idx *ServerIndex) collectInstanceUUIDs(ctx context.Context, resources *repository.ResourceRepository, resourceID int64, kind models.ResourceKind) ([]string, error) {
	if kind == models.KindInstance {
		res, err := resources.FindByID(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		return []string{res.PublicID}, nil
	}

	children, err := resources.Children(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, child := range children {
		ids, err := idx.collectInstanceUUIDs(ctx, resources, child.ID, child.Kind)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}
