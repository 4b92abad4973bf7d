// Package index implements ServerIndex, the transactional metadata store
// that owns the Patient/Study/Series/Instance hierarchy: ingest
// (dedup, main-tag extraction, hierarchy creation), cascading delete with
// ancestor-collapse, lookup, the change/export logs, and statistics. It is
// the single writer of record -- every mutation it performs happens
// inside a gorm transaction guarded by its own mutex, mirroring
// ServerIndex.cpp's boost::mutex::scoped_lock around every public method.
package index

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/orthanc-go/orthanc/internal/models"
	"github.com/orthanc-go/orthanc/internal/repository"
	"github.com/orthanc-go/orthanc/internal/storage"
)

// ServerIndex is the transactional index described above. A process holds
// exactly one: it owns the database connection's write path and the
// background flush loop.
type ServerIndex struct {
	mu      sync.Mutex
	db      *gorm.DB
	storage storage.Store
	log     zerolog.Logger

	flushSleep time.Duration
	cancel     context.CancelFunc
	flushGroup *errgroup.Group
}

// New constructs a ServerIndex over db and storageBackend, reads the
// FlushSleep global property (defaulting to 10 seconds, the same
// fallback ServerIndex's constructor uses when GlobalProperty_FlushSleep
// is absent or unparsable), and starts the background flush loop.
func New(db *gorm.DB, storageBackend storage.Store, log zerolog.Logger) (*ServerIndex, error) {
	props := repository.NewGlobalPropertyRepository(db)
	raw, err := props.GetWithDefault(context.Background(), models.GlobalPropertyFlushSleep, "10")
	if err != nil {
		return nil, fmt.Errorf("failed to read flush interval: %w", err)
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		seconds = 10
	}

	idx := &ServerIndex{
		db:         db,
		storage:    storageBackend,
		log:        log,
		flushSleep: time.Duration(seconds) * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	idx.cancel = cancel
	group, groupCtx := errgroup.WithContext(ctx)
	idx.flushGroup = group
	group.Go(func() error {
		idx.flushLoop(groupCtx)
		return nil
	})

	return idx, nil
}

// isSQLite reports whether the backing connection is the embedded sqlite
// driver, the only one that needs an explicit flush-to-disk call.
func (idx *ServerIndex) isSQLite() bool {
	return idx.db.Dialector.Name() == "sqlite"
}

// flushLoop is FlushThread ported to a goroutine: every flushSleep it
// takes the same lock every other ServerIndex operation takes and asks
// the database to flush its buffers to disk, until the context is
// cancelled by Close.
func (idx *ServerIndex) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(idx.flushSleep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idx.mu.Lock()
			if err := idx.flushToDisk(); err != nil {
				idx.log.Error().Err(err).Msg("failed to flush database to disk")
			}
			idx.mu.Unlock()
		}
	}
}

func (idx *ServerIndex) flushToDisk() error {
	if !idx.isSQLite() {
		// Postgres manages its own WAL/checkpointing; nothing to do here.
		return nil
	}
	return idx.db.Exec("PRAGMA wal_checkpoint(FULL)").Error
}

// Close stops the flush loop and waits for it to exit, the Go equivalent
// of joining ServerIndex's flush thread in its destructor.
func (idx *ServerIndex) Close() error {
	idx.cancel()
	return idx.flushGroup.Wait()
}
