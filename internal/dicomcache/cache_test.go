package dicomcache

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/orthanc-go/orthanc/internal/cache"
)

// fakeStorage is a minimal storage.Store backed by an in-memory map.
type fakeStorage struct {
	blobs map[string][]byte
	reads int
}

func (f *fakeStorage) Put(ctx context.Context, uuid string, r io.Reader) (int64, int64, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return 0, 0, err
	}
	f.blobs[uuid] = buf
	return int64(len(buf)), int64(len(buf)), nil
}

func (f *fakeStorage) Get(ctx context.Context, uuid string) (io.ReadCloser, error) {
	f.reads++
	buf, ok := f.blobs[uuid]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (f *fakeStorage) Delete(ctx context.Context, uuid string) error {
	delete(f.blobs, uuid)
	return nil
}

// fakeBackend is a minimal cache.Cache backed by an in-memory map.
type fakeBackend struct {
	data map[string][]byte
}

func newFakeBackend() *fakeBackend { return &fakeBackend{data: map[string][]byte{}} }

func (f *fakeBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := f.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.data[key] = value
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeBackend) Clear(ctx context.Context, pattern string) error {
	f.data = map[string][]byte{}
	return nil
}

var _ cache.Cache = (*fakeBackend)(nil)

func encodeMinimalDataset(t *testing.T) []byte {
	t.Helper()
	v, err := dicom.NewValue([]string{"P1"})
	if err != nil {
		t.Fatalf("NewValue: %v", err)
	}
	elem := &dicom.Element{
		Tag:         tag.PatientID,
		ValueLength: uint32(len("P1")),
		Value:       v,
	}
	ds := dicom.Dataset{Elements: []*dicom.Element{elem}}
	var buf bytes.Buffer
	if err := dicom.Write(&buf, ds, dicom.SkipVRVerification(), dicom.SkipValueTypeVerification(), dicom.DefaultMissingTransferSyntax()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf.Bytes()
}

func TestAcquireParsesFromStorageOnMiss(t *testing.T) {
	store := &fakeStorage{blobs: map[string][]byte{"inst-1": encodeMinimalDataset(t)}}
	c := New(4, nil, store, zerolog.Nop())

	h, err := c.Acquire(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.Release()

	if h.Dataset() == nil {
		t.Fatalf("expected a dataset")
	}
	if store.reads != 1 {
		t.Fatalf("expected exactly 1 storage read, got %d", store.reads)
	}
}

func TestAcquireServesFromLRUOnSecondCall(t *testing.T) {
	store := &fakeStorage{blobs: map[string][]byte{"inst-1": encodeMinimalDataset(t)}}
	c := New(4, nil, store, zerolog.Nop())

	if _, err := c.Acquire(context.Background(), "inst-1"); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if _, err := c.Acquire(context.Background(), "inst-1"); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}

	if store.reads != 1 {
		t.Fatalf("expected storage to be read only once, got %d reads", store.reads)
	}
}

func TestAcquireEvictsBeyondCapacity(t *testing.T) {
	store := &fakeStorage{blobs: map[string][]byte{
		"inst-1": encodeMinimalDataset(t),
		"inst-2": encodeMinimalDataset(t),
		"inst-3": encodeMinimalDataset(t),
	}}
	c := New(2, nil, store, zerolog.Nop())
	ctx := context.Background()

	for _, id := range []string{"inst-1", "inst-2", "inst-3"} {
		if _, err := c.Acquire(ctx, id); err != nil {
			t.Fatalf("Acquire(%s): %v", id, err)
		}
	}

	if c.lookupLocal("inst-1") != nil {
		t.Fatalf("expected inst-1 to have been evicted")
	}
	if c.lookupLocal("inst-3") == nil {
		t.Fatalf("expected inst-3 to still be resident")
	}
}

func TestAcquireFallsThroughToBackendBeforeStorage(t *testing.T) {
	store := &fakeStorage{blobs: map[string][]byte{}}
	backend := newFakeBackend()
	backend.data[cache.CacheKey("inst-1", "dicom")] = encodeMinimalDataset(t)

	c := New(4, backend, store, zerolog.Nop())

	h, err := c.Acquire(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if h.Dataset() == nil {
		t.Fatalf("expected a dataset from the backend tier")
	}
	if store.reads != 0 {
		t.Fatalf("expected storage not to be read when the backend tier has the entry")
	}
}

func TestInvalidateRemovesFromLocalAndBackend(t *testing.T) {
	store := &fakeStorage{blobs: map[string][]byte{"inst-1": encodeMinimalDataset(t)}}
	backend := newFakeBackend()
	c := New(4, backend, store, zerolog.Nop())
	ctx := context.Background()

	if _, err := c.Acquire(ctx, "inst-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	c.Invalidate(ctx, "inst-1")

	if c.lookupLocal("inst-1") != nil {
		t.Fatalf("expected inst-1 to be gone from the LRU")
	}
	if _, ok := backend.data[cache.CacheKey("inst-1", "dicom")]; ok {
		t.Fatalf("expected inst-1 to be gone from the backend tier")
	}
}
