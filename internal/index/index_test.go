package index

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orthanc-go/orthanc/internal/models"
	"github.com/orthanc-go/orthanc/internal/storage"
)

// fakeStore satisfies storage.Store without touching a real filesystem,
// only recording which blob UUIDs were asked to be deleted.
type fakeStore struct {
	deleted map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{deleted: map[string]bool{}}
}

func (f *fakeStore) Put(ctx context.Context, uuid string, r io.Reader) (int64, int64, error) {
	return 0, 0, nil
}

func (f *fakeStore) Get(ctx context.Context, uuid string) (io.ReadCloser, error) {
	return nil, nil
}

func (f *fakeStore) Delete(ctx context.Context, uuid string) error {
	f.deleted[uuid] = true
	return nil
}

var _ storage.Store = (*fakeStore)(nil)

func newTestIndex(t *testing.T) (*ServerIndex, *fakeStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Resource{},
		&models.MainDicomTag{},
		&models.Metadata{},
		&models.Attachment{},
		&models.Change{},
		&models.ExportedResource{},
		&models.GlobalProperty{},
	); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	store := newFakeStore()
	idx, err := New(db, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	return idx, store
}

func instanceTags(patientID, studyUID, seriesUID, sopUID string) map[models.TagKey]string {
	return map[models.TagKey]string{
		{Group: tag.PatientID.Group, Element: tag.PatientID.Element}:               patientID,
		{Group: tag.StudyInstanceUID.Group, Element: tag.StudyInstanceUID.Element}: studyUID,
		{Group: tag.SeriesInstanceUID.Group, Element: tag.SeriesInstanceUID.Element}: seriesUID,
		{Group: tag.SOPInstanceUID.Group, Element: tag.SOPInstanceUID.Element}:       sopUID,
	}
}

func TestStoreCreatesFullHierarchy(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	status, err := idx.Store(ctx, instanceTags("P1", "S1", "SE1", "I1"), nil, "MODALITY1")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if status != StoreStatusSuccess {
		t.Fatalf("expected Success, got %v", status)
	}

	patients, err := idx.GetAllUUIDs(ctx, models.KindPatient)
	if err != nil || len(patients) != 1 {
		t.Fatalf("expected 1 patient, got %v, err %v", patients, err)
	}
	studies, _ := idx.GetAllUUIDs(ctx, models.KindStudy)
	if len(studies) != 1 {
		t.Fatalf("expected 1 study, got %v", studies)
	}
	instances, _ := idx.GetAllUUIDs(ctx, models.KindInstance)
	if len(instances) != 1 {
		t.Fatalf("expected 1 instance, got %v", instances)
	}
}

func TestStoreDedupsSameInstance(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	tags := instanceTags("P1", "S1", "SE1", "I1")

	if _, err := idx.Store(ctx, tags, nil, "MOD"); err != nil {
		t.Fatalf("first Store: %v", err)
	}
	status, err := idx.Store(ctx, tags, nil, "MOD")
	if err != nil {
		t.Fatalf("second Store: %v", err)
	}
	if status != StoreStatusAlreadyStored {
		t.Fatalf("expected AlreadyStored, got %v", status)
	}
}

func TestStoreSharesSeriesAcrossInstances(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	if _, err := idx.Store(ctx, instanceTags("P1", "S1", "SE1", "I1"), nil, "MOD"); err != nil {
		t.Fatalf("Store 1: %v", err)
	}
	if _, err := idx.Store(ctx, instanceTags("P1", "S1", "SE1", "I2"), nil, "MOD"); err != nil {
		t.Fatalf("Store 2: %v", err)
	}

	series, _ := idx.GetAllUUIDs(ctx, models.KindSeries)
	if len(series) != 1 {
		t.Fatalf("expected 1 shared series, got %v", series)
	}
	instances, _ := idx.GetAllUUIDs(ctx, models.KindInstance)
	if len(instances) != 2 {
		t.Fatalf("expected 2 instances, got %v", instances)
	}
}

func TestDeleteResourceCascadesAndCollapsesAncestors(t *testing.T) {
	idx, store := newTestIndex(t)
	ctx := context.Background()

	if _, err := idx.Store(ctx, instanceTags("P1", "S1", "SE1", "I1"), []AttachmentInput{
		{Type: models.FileDicom, UUID: "blob-1", UncompressedSize: 10, CompressedSize: 10},
	}, "MOD"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	instances, _ := idx.GetAllUUIDs(ctx, models.KindInstance)
	if len(instances) != 1 {
		t.Fatalf("expected 1 instance, got %v", instances)
	}

	ok, remaining, err := idx.DeleteResource(ctx, instances[0], models.KindInstance)
	if err != nil {
		t.Fatalf("DeleteResource: %v", err)
	}
	if !ok {
		t.Fatalf("expected delete to succeed")
	}
	if remaining != nil {
		t.Fatalf("expected no remaining ancestor after deleting the only instance, got %+v", remaining)
	}

	for _, kind := range []models.ResourceKind{models.KindPatient, models.KindStudy, models.KindSeries, models.KindInstance} {
		ids, err := idx.GetAllUUIDs(ctx, kind)
		if err != nil {
			t.Fatalf("GetAllUUIDs(%v): %v", kind, err)
		}
		if len(ids) != 0 {
			t.Fatalf("expected kind %v to be fully collapsed, got %v", kind, ids)
		}
	}

	if !store.deleted["blob-1"] {
		t.Fatalf("expected blob-1 to be forwarded for deletion")
	}
}

func TestDeleteResourceReportsRemainingAncestor(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	if _, err := idx.Store(ctx, instanceTags("P1", "S1", "SE1", "I1"), nil, "MOD"); err != nil {
		t.Fatalf("Store 1: %v", err)
	}
	if _, err := idx.Store(ctx, instanceTags("P1", "S1", "SE1", "I2"), nil, "MOD"); err != nil {
		t.Fatalf("Store 2: %v", err)
	}

	instances, _ := idx.GetAllUUIDs(ctx, models.KindInstance)
	if len(instances) != 2 {
		t.Fatalf("expected 2 instances, got %v", instances)
	}

	ok, remaining, err := idx.DeleteResource(ctx, instances[0], models.KindInstance)
	if err != nil {
		t.Fatalf("DeleteResource: %v", err)
	}
	if !ok {
		t.Fatalf("expected delete to succeed")
	}
	if remaining == nil || remaining.Kind != models.KindSeries {
		t.Fatalf("expected the series to remain as the ancestor, got %+v", remaining)
	}
}

func TestDeleteResourceRejectsKindMismatch(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	if _, err := idx.Store(ctx, instanceTags("P1", "S1", "SE1", "I1"), nil, "MOD"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	instances, _ := idx.GetAllUUIDs(ctx, models.KindInstance)

	ok, _, err := idx.DeleteResource(ctx, instances[0], models.KindSeries)
	if err != nil {
		t.Fatalf("DeleteResource: %v", err)
	}
	if ok {
		t.Fatalf("expected delete to fail on kind mismatch")
	}
}
