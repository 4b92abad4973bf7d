// Package dicomcache caches parsed DICOM datasets so repeated reads of
// the same instance (successive modify/anonymize steps, repeated WADO
// retrievals) don't re-run github.com/suyashkumar/dicom's parser on
// every request. It wraps an in-process LRU in front of an optional
// github.com/orthanc-go/orthanc/internal/cache tier (memory or Redis),
// which itself fronts internal/storage, the source of truth.
package dicomcache

import (
	"bytes"
	"container/list"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"

	"github.com/orthanc-go/orthanc/internal/cache"
	"github.com/orthanc-go/orthanc/internal/storage"
)

// entryTTL bounds how long a parsed dataset survives in the optional
// Redis tier; the in-process LRU has no TTL of its own, only a capacity.
const entryTTL = 30 * time.Minute

type entry struct {
	id string
	ds *dicom.Dataset
}

// Cache is a capacity-bounded LRU of parsed datasets keyed by instance
// public id, guarded by its own mutex independent of internal/index's --
// a cache miss or eviction here never blocks a ServerIndex operation.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element

	backend cache.Cache
	storage storage.Store
	log     zerolog.Logger
}

// New constructs a Cache holding up to capacity parsed datasets
// in-process. backend may be nil to disable the secondary tier.
func New(capacity int, backend cache.Cache, store storage.Store, log zerolog.Logger) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		backend:  backend,
		storage:  store,
		log:      log,
	}
}

// Acquire returns a Handle onto the parsed dataset for instance id,
// populating the cache on a miss: first checking the in-process LRU,
// then the backend tier, then falling through to internal/storage and
// dicom.Parse. The caller must call Handle.Release when done.
func (c *Cache) Acquire(ctx context.Context, id string) (*Handle, error) {
	if ds := c.lookupLocal(id); ds != nil {
		return &Handle{cache: c, id: id, dataset: ds}, nil
	}

	if c.backend != nil {
		if ds, err := c.lookupBackend(ctx, id); err != nil {
			c.log.Warn().Err(err).Str("instance", id).Msg("dicom cache backend read failed")
		} else if ds != nil {
			c.promote(id, ds)
			return &Handle{cache: c, id: id, dataset: ds}, nil
		}
	}

	ds, err := c.parseFromStorage(ctx, id)
	if err != nil {
		return nil, err
	}

	c.promote(id, ds)
	c.writeThrough(ctx, id, ds)

	return &Handle{cache: c, id: id, dataset: ds}, nil
}

// Invalidate drops id from both the in-process LRU and the backend
// tier. The delete and modify handlers do not call it.
func (c *Cache) Invalidate(ctx context.Context, id string) {
	c.mu.Lock()
	if el, ok := c.entries[id]; ok {
		c.order.Remove(el)
		delete(c.entries, id)
	}
	c.mu.Unlock()

	if c.backend != nil {
		if err := c.backend.Delete(ctx, cache.CacheKey(id, "dicom")); err != nil {
			c.log.Warn().Err(err).Str("instance", id).Msg("failed to invalidate dicom cache backend entry")
		}
	}
}

func (c *Cache) lookupLocal(id string) *dicom.Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[id]
	if !ok {
		return nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).ds
}

func (c *Cache) lookupBackend(ctx context.Context, id string) (*dicom.Dataset, error) {
	raw, err := c.backend.Get(ctx, cache.CacheKey(id, "dicom"))
	if err == cache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ds, err := dicom.Parse(bytes.NewReader(raw), int64(len(raw)), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cached dataset: %w", err)
	}
	return &ds, nil
}

func (c *Cache) parseFromStorage(ctx context.Context, id string) (*dicom.Dataset, error) {
	reader, err := c.storage.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to open instance %s: %w", id, err)
	}
	defer reader.Close()

	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read instance %s: %w", id, err)
	}

	ds, err := dicom.Parse(bytes.NewReader(buf), int64(len(buf)), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse instance %s: %w", id, err)
	}
	return &ds, nil
}

func (c *Cache) promote(id string, ds *dicom.Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[id]; ok {
		el.Value.(*entry).ds = ds
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{id: id, ds: ds})
	c.entries[id] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).id)
	}
}

// writeThrough best-effort serializes ds back out to the backend tier so
// a cache warmed on one instance survives a process restart or is
// visible to a sibling instance in a multi-process deployment. Failures
// are logged, not propagated -- the backend tier is an optimization, not
// a source of truth.
func (c *Cache) writeThrough(ctx context.Context, id string, ds *dicom.Dataset) {
	if c.backend == nil {
		return
	}
	var buf bytes.Buffer
	if err := dicom.Write(&buf, *ds, dicom.SkipVRVerification(), dicom.SkipValueTypeVerification(), dicom.DefaultMissingTransferSyntax()); err != nil {
		c.log.Warn().Err(err).Str("instance", id).Msg("failed to serialize dataset for dicom cache backend")
		return
	}
	if err := c.backend.Set(ctx, cache.CacheKey(id, "dicom"), buf.Bytes(), entryTTL); err != nil {
		c.log.Warn().Err(err).Str("instance", id).Msg("failed to write through to dicom cache backend")
	}
}
