package dicomcache

import "github.com/suyashkumar/dicom"

// Handle is a scoped acquisition of a cached dataset. The zero value is
// not useful; obtain one from Cache.Acquire.
type Handle struct {
	cache   *Cache
	id      string
	dataset *dicom.Dataset
}

// Dataset returns the parsed dataset this handle wraps. Callers that
// need to modify it (internal/modification.Config.Apply) should clone
// it first -- the LRU keeps the same pointer alive for every concurrent
// acquirer of the same instance.
func (h *Handle) Dataset() *dicom.Dataset {
	return h.dataset
}

// Release returns the handle to the cache. The dataset stays resident
// in the LRU until evicted or explicitly invalidated; Release exists so
// callers have a single, symmetric acquire/release pair to reason about
// even though this LRU doesn't reference-count.
func (h *Handle) Release() {}
