// Package objstore is the pluggable object-store capability (spec §6):
// get/put/delete of opaque remote paths. The sync engine never lists;
// LIST-equivalent is deliberately absent from the interface so no backend
// implementation can be tempted to fall back on it.
package objstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get when the remote path does not exist.
var ErrNotFound = errors.New("objstore: not found")

// Store is the object-store capability required by the sync engine.
// Implementations must be safe for concurrent use by many goroutines.
type Store interface {
	// Put uploads size bytes read from body to path, overwriting any
	// existing object.
	Put(ctx context.Context, path string, body io.Reader, size int64) error

	// Get fetches path. Callers must close the returned ReadCloser.
	// Returns ErrNotFound if path does not exist.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes path. Deleting an absent path is not an error,
	// matching typical object-store DELETE semantics.
	Delete(ctx context.Context, path string) error
}

// GetBytes is a convenience wrapper for callers that want the whole body.
func GetBytes(ctx context.Context, s Store, path string) ([]byte, error) {
	rc, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
