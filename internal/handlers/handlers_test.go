package handlers

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orthanc-go/orthanc/internal/dicomcache"
	"github.com/orthanc-go/orthanc/internal/hashing"
	"github.com/orthanc-go/orthanc/internal/index"
	"github.com/orthanc-go/orthanc/internal/models"
	"github.com/orthanc-go/orthanc/internal/repository"
	"github.com/orthanc-go/orthanc/internal/storage"
)

// memStore is a storage.Store backed by an in-memory map, the same shape
// internal/dicomcache's own tests use, so handler tests exercise the real
// ingest/retrieve path instead of stubbing it out.
type memStore struct {
	blobs map[string][]byte
}

func newMemStore() *memStore { return &memStore{blobs: map[string][]byte{}} }

func (m *memStore) Put(ctx context.Context, uuid string, r io.Reader) (int64, int64, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return 0, 0, err
	}
	m.blobs[uuid] = buf
	return int64(len(buf)), int64(len(buf)), nil
}

func (m *memStore) Get(ctx context.Context, uuid string) (io.ReadCloser, error) {
	buf, ok := m.blobs[uuid]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (m *memStore) Delete(ctx context.Context, uuid string) error {
	delete(m.blobs, uuid)
	return nil
}

var _ storage.Store = (*memStore)(nil)

// testStack bundles every collaborator a handler test might need,
// including the raw *gorm.DB backing idx so tests can read back rows
// (e.g. metadata) that ServerIndex's own public API doesn't expose.
type testStack struct {
	db    *gorm.DB
	idx   *index.ServerIndex
	store *memStore
	cache *dicomcache.Cache
}

// newTestStack spins up an in-memory ServerIndex, a memStore and a
// dicomcache.Cache over both, mirroring the fixture internal/index and
// internal/dicomcache already use in their own package tests.
func newTestStack(t *testing.T) *testStack {
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

	store := newMemStore()
	idx, err := index.New(db, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("index.New: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	cache := dicomcache.New(16, nil, store, zerolog.Nop())
	return &testStack{db: db, idx: idx, store: store, cache: cache}
}

// metadataFor reads back a metadata value set against publicID directly
// through internal/repository, the same package ServerIndex.SetMetadata
// itself delegates to -- used to assert on lineage stamping that
// ServerIndex's own lookup API doesn't surface.
func metadataFor(t *testing.T, db *gorm.DB, publicID, key string) (string, bool) {
	t.Helper()
	resources := repository.NewResourceRepository(db)
	res, err := resources.FindAnyByPublicID(context.Background(), publicID)
	if err != nil {
		t.Fatalf("FindAnyByPublicID(%s): %v", publicID, err)
	}
	value, ok, err := repository.NewMetadataRepository(db).Get(context.Background(), res.ID, key)
	if err != nil {
		t.Fatalf("metadata Get(%s): %v", key, err)
	}
	return value, ok
}

func buildElement(t *testing.T, tg tag.Tag, value string) *dicom.Element {
	t.Helper()
	v, err := dicom.NewValue([]string{value})
	if err != nil {
		t.Fatalf("NewValue: %v", err)
	}
	return &dicom.Element{Tag: tg, ValueLength: uint32(len(value)), Value: v}
}

// seedInstance writes a minimal instance through the same blob-then-index
// path ingestDataset uses for every real ingestion route, and returns the
// instance's public ID.
func seedInstance(t *testing.T, idx *index.ServerIndex, store storage.Store, patientID, studyUID, seriesUID, sopUID string, extra ...*dicom.Element) string {
	t.Helper()

	elements := []*dicom.Element{
		buildElement(t, tag.PatientID, patientID),
		buildElement(t, tag.StudyInstanceUID, studyUID),
		buildElement(t, tag.SeriesInstanceUID, seriesUID),
		buildElement(t, tag.SOPInstanceUID, sopUID),
	}
	elements = append(elements, extra...)
	ds := &dicom.Dataset{Elements: elements}

	if _, err := ingestDataset(context.Background(), idx, store, ds, "TESTMOD"); err != nil {
		t.Fatalf("seedInstance ingestDataset: %v", err)
	}

	_, _, _, instanceID := hashing.HashAll(hashing.Identifiers{
		PatientID:         patientID,
		StudyInstanceUID:  studyUID,
		SeriesInstanceUID: seriesUID,
		SOPInstanceUID:    sopUID,
	})
	return instanceID
}

// newRouter wires the same route table cmd/server/main.go registers,
// scoped down to the handlers under test.
func newRouter(resources *ResourceHandler, mod *ModificationHandler, changes *ChangeHandler, health *HealthHandler) chi.Router {
	r := chi.NewRouter()

	if health != nil {
		r.Get("/health", health.Health)
		r.Get("/ready", health.Ready)
	}
	if changes != nil {
		r.Get("/changes", changes.Changes)
		r.Get("/exports", changes.Exports)
		r.Get("/statistics", changes.Statistics)
	}
	if mod != nil {
		r.Post("/tools/create-dicom", mod.CreateDicom)
		r.Post("/instances/{id}/modify", mod.ModifyInstance)
		r.Post("/instances/{id}/anonymize", mod.AnonymizeInstance)
	}
	if resources != nil {
		for path, kind := range kindPaths {
			r.Get("/"+path, resources.List(kind))
			r.Get("/"+path+"/{id}", resources.Get(kind))
			r.Delete("/"+path+"/{id}", resources.Delete(kind))
			if mod != nil && kind != models.KindInstance {
				r.Post("/"+path+"/{id}/modify", mod.AncestorOperation(kind, false))
				r.Post("/"+path+"/{id}/anonymize", mod.AncestorOperation(kind, true))
			}
		}
		r.Get("/instances/{id}/file", resources.File)
	}
	return r
}
