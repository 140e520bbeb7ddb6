// Package synctask defines the Sync Task data model (spec §3): the three
// tagged task variants a timeline can have outstanding, and the per-timeline
// batch merge rules (§4.3) the Task Batcher applies while draining the
// queue.
package synctask

import (
	"github.com/pgserver/storagesync/internal/remoteindex"
	"github.com/pgserver/storagesync/internal/syncid"
)

// Kind tags which of the three task variants a Task is.
type Kind int

const (
	KindUpload Kind = iota
	KindDownload
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindUpload:
		return "upload"
	case KindDownload:
		return "download"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Task is implemented by UploadTask, DownloadTask, and DeleteTask.
type Task interface {
	Kind() Kind
	Retries() uint32
}

// UploadTask carries the intent: upload LayersToUpload \ UploadedLayers,
// then refresh the remote index.
type UploadTask struct {
	LayersToUpload map[string]struct{}
	UploadedLayers map[string]struct{}
	Metadata       *remoteindex.Metadata
	RetryCount     uint32
}

func NewUploadTask(layers []string, meta *remoteindex.Metadata) *UploadTask {
	t := &UploadTask{
		LayersToUpload: make(map[string]struct{}, len(layers)),
		UploadedLayers: make(map[string]struct{}),
		Metadata:       meta,
	}
	for _, l := range layers {
		t.LayersToUpload[l] = struct{}{}
	}
	return t
}

func (t *UploadTask) Kind() Kind       { return KindUpload }
func (t *UploadTask) Retries() uint32  { return t.RetryCount }

// Pending returns the layers still left to upload.
func (t *UploadTask) Pending() []string {
	out := make([]string, 0, len(t.LayersToUpload))
	for p := range t.LayersToUpload {
		if _, done := t.UploadedLayers[p]; !done {
			out = append(out, p)
		}
	}
	return out
}

// DownloadTask carries no explicit file list: the driver reads the remote
// index entry to compute to_download = stored_files \ LayersToSkip.
type DownloadTask struct {
	LayersToSkip map[string]struct{}
	RetryCount   uint32
}

func NewDownloadTask() *DownloadTask {
	return &DownloadTask{LayersToSkip: make(map[string]struct{})}
}

func (t *DownloadTask) Kind() Kind      { return KindDownload }
func (t *DownloadTask) Retries() uint32 { return t.RetryCount }

// DeleteTask carries the intent: first remove LayersToDelete from the
// remote index, then delete the blobs.
type DeleteTask struct {
	LayersToDelete     map[string]struct{}
	DeletedLayers      map[string]struct{}
	DeletionRegistered bool
	RetryCount         uint32
}

func NewDeleteTask(layers []string) *DeleteTask {
	t := &DeleteTask{
		LayersToDelete: make(map[string]struct{}, len(layers)),
		DeletedLayers:  make(map[string]struct{}),
	}
	for _, l := range layers {
		t.LayersToDelete[l] = struct{}{}
	}
	return t
}

func (t *DeleteTask) Kind() Kind      { return KindDelete }
func (t *DeleteTask) Retries() uint32 { return t.RetryCount }

// Pending returns the layers still left to delete.
func (t *DeleteTask) Pending() []string {
	out := make([]string, 0, len(t.LayersToDelete))
	for p := range t.LayersToDelete {
		if _, done := t.DeletedLayers[p]; !done {
			out = append(out, p)
		}
	}
	return out
}

// Item is one (timeline, task) pair as pushed through the Sync Queue.
type Item struct {
	ID   syncid.SyncID
	Task Task
}

func union(dst map[string]struct{}, sets ...map[string]struct{}) {
	for _, s := range sets {
		for k := range s {
			dst[k] = struct{}{}
		}
	}
}

func minRetries(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
