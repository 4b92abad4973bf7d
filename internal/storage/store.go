// Package storage implements the content-addressed blob area referenced
// by the attachments table: every attachment row carries a UUID, and this
// package is the only thing that knows how that UUID maps to bytes on
// disk.
package storage

import (
	"context"
	"io"
)

// Store is the narrow interface internal/index's ServerIndex depends on
// for the file-storage collaborator spec.md treats as external: write a
// blob, read it back, delete it once nothing references it any more.
type Store interface {
	// Put writes the full contents of r under uuid, returning the
	// compressed and uncompressed sizes (equal, for a store that
	// performs no compression of its own).
	Put(ctx context.Context, uuid string, r io.Reader) (compressedSize, uncompressedSize int64, err error)
	// Get opens uuid for reading. The caller must Close the result.
	Get(ctx context.Context, uuid string) (io.ReadCloser, error)
	// Delete removes the blob stored under uuid. Deleting a uuid that
	// doesn't exist is not an error, mirroring the idempotent cleanup
	// ServerIndex performs when a resource is deleted.
	Delete(ctx context.Context, uuid string) error
}
