// Package remoteindex implements the Remote Index (spec §4.1): the
// process-wide, lock-protected map from SyncID to the currently known
// remote manifest state. It is the sole source of truth for what the sync
// engine believes exists in the object store, replacing expensive LIST
// calls with a cheap in-memory lookup.
//
// The lock is held only for the duration of one in-memory mutation; no
// caller may perform I/O while holding it. Composite operations that need
// to read-modify-then-persist (the upload and delete index-part rewrites)
// return a cloned Entry so the caller can serialize and PUT it with the
// lock already released.
package remoteindex

import (
	"errors"
	"sync"

	"github.com/pgserver/storagesync/internal/syncid"
)

// ErrNotFound is returned by operations that require an existing entry.
var ErrNotFound = errors.New("remote index: entry not found")

// Index is the process-wide shared remote index.
type Index struct {
	mu      sync.RWMutex
	entries map[syncid.SyncID]*Entry
}

func New() *Index {
	return &Index{entries: make(map[syncid.SyncID]*Entry)}
}

// Get returns a snapshot copy of the entry for id, if present.
func (idx *Index) Get(id syncid.SyncID) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Insert creates or replaces the entry wholesale. Used by the startup
// reconciler when seeding state from a freshly fetched Index Part.
func (idx *Index) Insert(id syncid.SyncID, entry Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cp := entry.clone()
	idx.entries[id] = &cp
}

// SetAwaitsDownload fails if id is absent, per spec.
func (idx *Index) SetAwaitsDownload(id syncid.SyncID, awaits bool) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.AwaitsDownload = awaits
	return nil
}

// AddLayers adds paths to stored_files, implicitly clearing them from
// upload_failed_files (a successful upload supersedes a prior failure).
func (idx *Index) AddLayers(id syncid.SyncID, paths []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[id]
	if !ok {
		return ErrNotFound
	}
	addAll(e.StoredFiles, paths)
	removeAll(e.UploadFailedFiles, paths)
	return nil
}

// RemoveLayers removes paths from stored_files. Used as the first,
// index-first step of the delete protocol (§4.7).
func (idx *Index) RemoveLayers(id syncid.SyncID, paths []string) (Entry, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	removeAll(e.StoredFiles, paths)
	return e.clone(), nil
}

// AddUploadFailures records paths whose most recent upload attempt failed.
// Purely observational: it never forbids a future retry.
func (idx *Index) AddUploadFailures(id syncid.SyncID, paths []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[id]
	if !ok {
		return ErrNotFound
	}
	addAll(e.UploadFailedFiles, paths)
	return nil
}

// UpdateMetadataIfNewer replaces the entry's metadata only if meta has a
// strictly greater LSN, preserving the monotonic-LSN invariant.
func (idx *Index) UpdateMetadataIfNewer(id syncid.SyncID, meta Metadata) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[id]
	if !ok {
		return ErrNotFound
	}
	if meta.NewerThan(e.Metadata) {
		e.Metadata = meta.clone()
	}
	return nil
}

// ApplyUpload is the single atomic mutation behind the upload protocol's
// index-part rewrite (§4.5 step 4): create the entry if absent (requires
// meta), or fold uploadedLayers and a possibly-newer metadata into the
// existing entry. It returns a snapshot of the resulting entry so the
// caller can serialize an Index Part and PUT it with the lock released.
func (idx *Index) ApplyUpload(id syncid.SyncID, meta *Metadata, uploadedLayers []string) (Entry, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	e, ok := idx.entries[id]
	if !ok {
		if meta == nil {
			return Entry{}, errors.New("remote index: cannot materialize entry without metadata")
		}
		created := newEntry(*meta)
		addAll(created.StoredFiles, uploadedLayers)
		idx.entries[id] = &created
		return created.clone(), nil
	}

	if meta != nil && meta.NewerThan(e.Metadata) {
		e.Metadata = meta.clone()
	}
	addAll(e.StoredFiles, uploadedLayers)
	removeAll(e.UploadFailedFiles, uploadedLayers)
	return e.clone(), nil
}

// Len reports the number of known timelines, for observability/tests.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}
