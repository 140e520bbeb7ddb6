package synctask

import (
	"testing"

	"github.com/pgserver/storagesync/internal/remoteindex"
	"github.com/stretchr/testify/assert"
)

func TestMergeUpload_UnionsLayersAndKeepsHigherLSN(t *testing.T) {
	lowLSN := remoteindex.NewMetadata(100, nil)
	highLSN := remoteindex.NewMetadata(200, nil)

	old := NewUploadTask([]string{"a", "b"}, &lowLSN)
	old.RetryCount = 3

	incoming := NewUploadTask([]string{"b", "c"}, &highLSN)
	incoming.RetryCount = 1

	merged := MergeUpload(old, incoming)

	assert.Len(t, merged.LayersToUpload, 3)
	assert.Equal(t, uint64(200), merged.Metadata.DiskConsistentLSN)
	assert.Equal(t, uint32(1), merged.RetryCount, "min retries wins")
}

func TestMergeUpload_TieGoesToNew(t *testing.T) {
	m1 := remoteindex.NewMetadata(100, []byte("old"))
	m2 := remoteindex.NewMetadata(100, []byte("new"))

	old := NewUploadTask(nil, &m1)
	incoming := NewUploadTask(nil, &m2)

	merged := MergeUpload(old, incoming)
	assert.Equal(t, []byte("new"), merged.Metadata.Raw)
}

func TestMergeUpload_IsIdempotent(t *testing.T) {
	meta := remoteindex.NewMetadata(100, nil)
	old := NewUploadTask([]string{"a"}, &meta)
	old.UploadedLayers["a"] = struct{}{}

	dup := NewUploadTask([]string{"a"}, &meta)
	dup.UploadedLayers["a"] = struct{}{}

	merged := MergeUpload(old, dup)
	assert.Equal(t, old.LayersToUpload, merged.LayersToUpload)
	assert.Equal(t, old.UploadedLayers, merged.UploadedLayers)
	assert.Equal(t, old.RetryCount, merged.RetryCount)
}

func TestMergeDownload_UnionsSkipSet(t *testing.T) {
	old := NewDownloadTask()
	old.LayersToSkip["a"] = struct{}{}
	old.RetryCount = 2

	incoming := NewDownloadTask()
	incoming.LayersToSkip["b"] = struct{}{}
	incoming.RetryCount = 0

	merged := MergeDownload(old, incoming)
	assert.Len(t, merged.LayersToSkip, 2)
	assert.Equal(t, uint32(0), merged.RetryCount)
}

func TestMergeDelete_RegisteredStaysTrueIfEitherSide(t *testing.T) {
	old := NewDeleteTask([]string{"a"})
	old.DeletionRegistered = true

	incoming := NewDeleteTask([]string{"b"})
	incoming.DeletionRegistered = false

	merged := MergeDelete(old, incoming)
	assert.True(t, merged.DeletionRegistered)
	assert.Len(t, merged.LayersToDelete, 2)
}

func TestBatch_AddMergesSameKind(t *testing.T) {
	b := &Batch{}
	b.Add(NewUploadTask([]string{"a"}, nil))
	b.Add(NewUploadTask([]string{"b"}, nil))
	b.Add(NewDownloadTask())

	assert.NotNil(t, b.Upload)
	assert.Len(t, b.Upload.LayersToUpload, 2)
	assert.NotNil(t, b.Download)
	assert.Nil(t, b.Delete)
	assert.False(t, b.Empty())
}

func TestBatch_Empty(t *testing.T) {
	b := &Batch{}
	assert.True(t, b.Empty())
}
