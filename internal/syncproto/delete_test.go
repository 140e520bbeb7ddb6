package syncproto

import (
	"context"
	"testing"

	"github.com/pgserver/storagesync/internal/objstore"
	"github.com/pgserver/storagesync/internal/remoteindex"
	"github.com/pgserver/storagesync/internal/syncid"
	"github.com/pgserver/storagesync/internal/synctask"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEntry(deps Deps, id syncid.SyncID, lsn uint64, files ...string) {
	stored := make(map[string]struct{}, len(files))
	for _, f := range files {
		stored[f] = struct{}{}
	}
	deps.Index.Insert(id, remoteindex.Entry{
		Metadata:          remoteindex.NewMetadata(lsn, nil),
		StoredFiles:       stored,
		UploadFailedFiles: map[string]struct{}{},
	})
}

func TestDelete_RewritesIndexBeforeDeletingBlobs(t *testing.T) {
	deps, store, _, _ := newTestDeps()
	id := syncid.New(syncid.NewID(), syncid.NewID())
	seedEntry(deps, id, 100, "l1", "l2", "l3")
	store.objects[objstore.LayerPath(id, "l2")] = []byte("data")

	task := synctask.NewDeleteTask([]string{"l2"})
	require.NoError(t, Delete(context.Background(), deps, id, task))

	entry, ok := deps.Index.Get(id)
	require.True(t, ok)
	assert.NotContains(t, entry.StoredFiles, "l2")
	assert.Contains(t, entry.StoredFiles, "l1")
	assert.Contains(t, entry.StoredFiles, "l3")

	_, ok = store.objects[objstore.LayerPath(id, "l2")]
	assert.False(t, ok, "blob must be deleted after the index no longer advertises it")
	assert.True(t, task.DeletionRegistered)
	assert.Contains(t, task.DeletedLayers, "l2")
}

func TestDelete_BlobFailureKeepsDeletionRegisteredForRetry(t *testing.T) {
	deps, store, _, _ := newTestDeps()
	id := syncid.New(syncid.NewID(), syncid.NewID())
	seedEntry(deps, id, 100, "l1", "l2")
	store.objects[objstore.LayerPath(id, "l2")] = []byte("data")
	store.failDel = map[string]bool{objstore.LayerPath(id, "l2"): true}

	task := synctask.NewDeleteTask([]string{"l2"})
	err := Delete(context.Background(), deps, id, task)
	require.Error(t, err)
	assert.True(t, task.DeletionRegistered, "index rewrite must not repeat on retry")

	entry, ok := deps.Index.Get(id)
	require.True(t, ok)
	assert.NotContains(t, entry.StoredFiles, "l2", "index already reflects the delete even though the blob delete failed")
}

func TestDelete_RetryDoesNotRewriteIndexTwice(t *testing.T) {
	deps, store, _, _ := newTestDeps()
	id := syncid.New(syncid.NewID(), syncid.NewID())
	seedEntry(deps, id, 100, "l1", "l2")
	store.objects[objstore.LayerPath(id, "l2")] = []byte("data")
	store.failDel = map[string]bool{objstore.LayerPath(id, "l2"): true}

	task := synctask.NewDeleteTask([]string{"l2"})
	require.Error(t, Delete(context.Background(), deps, id, task))

	// Second attempt: blob delete now allowed through, index write must
	// not be attempted again: an index-part PUT now fails, so a repeat
	// write would make this attempt return an error.
	store.failDel = nil
	store.failPut = map[string]bool{objstore.IndexPartPath(id): true}
	require.NoError(t, Delete(context.Background(), deps, id, task))
	assert.Contains(t, task.DeletedLayers, "l2")
}

func TestDeleteTerminal_BestEffortRemovesFromIndex(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	id := syncid.New(syncid.NewID(), syncid.NewID())
	seedEntry(deps, id, 100, "l1", "l2")

	task := synctask.NewDeleteTask([]string{"l2"})
	require.NoError(t, DeleteTerminal(context.Background(), deps, id, task))

	entry, ok := deps.Index.Get(id)
	require.True(t, ok)
	assert.NotContains(t, entry.StoredFiles, "l2")
}
