// Package syncproto implements the three wire protocols the sync engine
// drives against the object store: upload (§4.5), download (§4.6), and
// delete (§4.7). Each protocol function performs exactly one attempt of
// its task; the caller (internal/syncsched) owns the retry count, the
// backoff sleep, and the terminal-failure decision.
package syncproto

import (
	"log/slog"

	"github.com/pgserver/storagesync/internal/objstore"
	"github.com/pgserver/storagesync/internal/remoteindex"
	"github.com/pgserver/storagesync/internal/syncid"
)

const (
	// TempDownloadSuffix marks an in-progress download's temp file before
	// its atomic rename to the final layer path (§4.6). A reserved
	// extension so the startup scan (§4.9) can recognize and remove
	// leftovers from a crashed run.
	TempDownloadSuffix = ".sync-tmp"

	// EphemeralFilePrefix marks files the local scan must not treat as
	// layers belonging to a timeline (§4.9).
	EphemeralFilePrefix = "ephemeral-"
)

// LocalMetadata reads and writes the per-timeline metadata file outside
// the sync engine's own bookkeeping — the page server owns the format,
// the sync engine only moves bytes and compares the one LSN field it's
// told about.
type LocalMetadata interface {
	// Read returns the current local metadata, or (nil, nil) if no
	// metadata file exists yet for the timeline.
	Read(id syncid.SyncID) (*remoteindex.Metadata, error)
	// WriteDurable persists meta via a write + fsync + rename so a crash
	// mid-write never leaves a torn metadata file (§4.6 step 3).
	WriteDurable(id syncid.SyncID, meta remoteindex.Metadata) error
}

// LocalLayers reads and writes the per-timeline layer files.
type LocalLayers interface {
	// Open returns a reader over a local layer file's bytes, for upload.
	Open(id syncid.SyncID, layerFilename string) (ReadSeekCloser, int64, error)
	// WriteDurable downloads body into a temp file bearing
	// TempDownloadSuffix, then atomically renames it into place.
	WriteDurable(id syncid.SyncID, layerFilename string, body []byte) error
}

// ReadSeekCloser is the minimal handle LocalLayers.Open returns; layer
// files are read fully into a PUT body, never seeked by this package,
// but the interface matches *os.File for direct use in production.
type ReadSeekCloser interface {
	Read(p []byte) (int, error)
	Close() error
}

// Deps bundles what all three protocols need, grounded on the same
// pattern the teacher's SyncEngine struct uses for its object store and
// journal handles.
type Deps struct {
	Store    objstore.Store
	Index    *remoteindex.Index
	Metadata LocalMetadata
	Layers   LocalLayers
	Log      *slog.Logger
}
