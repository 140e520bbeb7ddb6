package objstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_PutGetRoundTrip(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	body := "layer-bytes"
	err = s.Put(context.Background(), "tenant/timeline/layer-001", strings.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	rc, err := s.Get(context.Background(), "tenant/timeline/layer-001")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestFSStore_GetMissingReturnsErrNotFound(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "tenant/timeline/nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStore_DeleteIsIdempotent(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	err = s.Put(context.Background(), "tenant/timeline/index_part.json", strings.NewReader("{}"), 2)
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), "tenant/timeline/index_part.json"))
	// deleting again must not error
	assert.NoError(t, s.Delete(context.Background(), "tenant/timeline/index_part.json"))

	_, err = s.Get(context.Background(), "tenant/timeline/index_part.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStore_PutOverwritesExisting(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "p", strings.NewReader("v1"), 2))
	require.NoError(t, s.Put(context.Background(), "p", strings.NewReader("version-2"), 9))

	rc, err := s.Get(context.Background(), "p")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "version-2", string(got))
}

func TestFSStore_NoLeftoverTempFileAfterPut(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "a/b/c", strings.NewReader("x"), 1))

	got, err := GetBytes(context.Background(), s, "a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))

	entries, err := os.ReadDir(filepath.Join(dir, "a", "b"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c", entries[0].Name())
}
