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

func seedRemote(t *testing.T, deps Deps, store *memStore, id syncid.SyncID, lsn uint64, layers map[string]string) {
	t.Helper()
	stored := make(map[string]struct{}, len(layers))
	for name, body := range layers {
		store.objects[objstore.LayerPath(id, name)] = []byte(body)
		stored[name] = struct{}{}
	}
	deps.Index.Insert(id, remoteindex.Entry{
		Metadata:          remoteindex.NewMetadata(lsn, []byte("remote-meta")),
		StoredFiles:       stored,
		UploadFailedFiles: map[string]struct{}{},
		AwaitsDownload:    true,
	})
}

func TestDownload_FetchesMissingLayersAndMetadata(t *testing.T) {
	deps, store, meta, layers := newTestDeps()
	id := syncid.New(syncid.NewID(), syncid.NewID())
	seedRemote(t, deps, store, id, 300, map[string]string{"l1": "d1", "l2": "d2", "l3": "d3"})
	layers.put(id, "l1", []byte("d1")) // already local

	task := synctask.NewDownloadTask()
	task.LayersToSkip["l1"] = struct{}{}

	result, err := Download(context.Background(), deps, id, task)
	require.NoError(t, err)
	assert.Equal(t, Downloaded, result)

	assert.True(t, layers.has(id, "l2"))
	assert.True(t, layers.has(id, "l3"))

	local, err := meta.Read(id)
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, uint64(300), local.DiskConsistentLSN)

	entry, ok := deps.Index.Get(id)
	require.True(t, ok)
	assert.False(t, entry.AwaitsDownload)
}

func TestDownload_NoRemoteEntryAborts(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	id := syncid.New(syncid.NewID(), syncid.NewID())

	task := synctask.NewDownloadTask()
	result, err := Download(context.Background(), deps, id, task)
	require.NoError(t, err)
	assert.Equal(t, Aborted, result)
}

func TestDownload_PartialFailureTracksAlreadyDownloaded(t *testing.T) {
	deps, store, _, layers := newTestDeps()
	id := syncid.New(syncid.NewID(), syncid.NewID())
	seedRemote(t, deps, store, id, 300, map[string]string{"l1": "d1", "l2": "d2"})
	store.failGet = map[string]bool{objstore.LayerPath(id, "l2"): true}

	task := synctask.NewDownloadTask()
	_, err := Download(context.Background(), deps, id, task)
	require.Error(t, err)

	assert.Contains(t, task.LayersToSkip, "l1", "l1 succeeded before l2 failed and must not be re-fetched")
	assert.True(t, layers.has(id, "l1"))
}

func TestDownload_SkipsMetadataWriteWhenLocalAlreadyCurrent(t *testing.T) {
	deps, store, meta, _ := newTestDeps()
	id := syncid.New(syncid.NewID(), syncid.NewID())
	seedRemote(t, deps, store, id, 100, nil)
	require.NoError(t, meta.WriteDurable(id, remoteindex.NewMetadata(100, []byte("already-current"))))

	task := synctask.NewDownloadTask()
	_, err := Download(context.Background(), deps, id, task)
	require.NoError(t, err)

	local, err := meta.Read(id)
	require.NoError(t, err)
	assert.Equal(t, "already-current", string(local.Raw), "local metadata must not be overwritten when not behind")
}

func TestDownloadTerminal_ClearsAwaitsDownload(t *testing.T) {
	deps, store, _, _ := newTestDeps()
	id := syncid.New(syncid.NewID(), syncid.NewID())
	seedRemote(t, deps, store, id, 100, nil)

	task := synctask.NewDownloadTask()
	require.NoError(t, DownloadTerminal(context.Background(), deps, id, task))

	entry, ok := deps.Index.Get(id)
	require.True(t, ok)
	assert.False(t, entry.AwaitsDownload)
}
