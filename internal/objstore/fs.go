package objstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pgserver/storagesync/internal/utils"
)

// FSStore is the local-filesystem Store backend (spec §1/§6: "an
// S3-like or local-filesystem backend"). Useful standalone and as the
// dependency-free backend for tests that exercise the sync engine
// without a network.
type FSStore struct {
	root string
}

// NewFSStore roots an FSStore at dir, creating it if necessary.
func NewFSStore(dir string) (*FSStore, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &FSStore{root: dir}, nil
}

func (s *FSStore) abs(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// Put writes body to path via a temp file plus rename so a reader never
// observes a partially written object, mirroring the durability
// discipline the sync engine requires of remote writes.
func (s *FSStore) Put(ctx context.Context, path string, body io.Reader, size int64) error {
	dst := s.abs(path)
	if err := utils.EnsureParent(dst); err != nil {
		return err
	}

	tmp := dst + ".tmp-" + uuid.NewString()
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(s.abs(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes path. A missing path is not an error, matching the
// Store contract and typical object-store DELETE semantics.
func (s *FSStore) Delete(ctx context.Context, path string) error {
	err := os.Remove(s.abs(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
