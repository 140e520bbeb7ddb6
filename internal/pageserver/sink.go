package pageserver

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pgserver/storagesync/internal/queue"
	"github.com/pgserver/storagesync/internal/remoteindex"
	"github.com/pgserver/storagesync/internal/syncid"
	"github.com/pgserver/storagesync/internal/synctask"
)

// SyncHandle is the explicit-dependency-injection form of the
// process-wide task sink (§9 Design Notes: "explicit dependency
// injection (preferred in a rewrite)"). Callers that already hold the
// *SyncHandle returned by StartLocalTimelineSync should use it
// directly; SetGlobalSyncHandle/ScheduleLayer* below exist only for
// call sites that cannot plumb one through.
type SyncHandle struct {
	queue *queue.Queue[synctask.Item]
}

func (h *SyncHandle) ScheduleLayerUpload(tenantID, timelineID syncid.ID, layers []string, meta *remoteindex.Metadata) {
	h.queue.Push(synctask.Item{
		ID:   syncid.New(tenantID, timelineID),
		Task: synctask.NewUploadTask(layers, meta),
	})
}

func (h *SyncHandle) ScheduleLayerDownload(tenantID, timelineID syncid.ID) {
	h.queue.Push(synctask.Item{
		ID:   syncid.New(tenantID, timelineID),
		Task: synctask.NewDownloadTask(),
	})
}

func (h *SyncHandle) ScheduleLayerDelete(tenantID, timelineID syncid.ID, layers []string) {
	h.queue.Push(synctask.Item{
		ID:   syncid.New(tenantID, timelineID),
		Task: synctask.NewDeleteTask(layers),
	})
}

var (
	globalOnce   sync.Once
	globalHandle atomic.Pointer[SyncHandle]
)

// SetGlobalSyncHandle performs the single-init, process-wide task sink
// (§9 Design Notes, abstract requirement). Only the first call takes
// effect, matching the source's once-initialized channel sender.
func SetGlobalSyncHandle(h *SyncHandle) {
	globalOnce.Do(func() {
		globalHandle.Store(h)
	})
}

// Global returns the process-wide handle, or nil if
// SetGlobalSyncHandle hasn't run yet.
func Global() *SyncHandle {
	return globalHandle.Load()
}

// ScheduleLayerUpload is the global-sink convenience form. A call
// before SetGlobalSyncHandle silently drops and warns (§4.2): callers
// may legitimately schedule before the loop is configured, and the
// loss is recovered by startup reconciliation on the next restart.
func ScheduleLayerUpload(tenantID, timelineID syncid.ID, layers []string, meta *remoteindex.Metadata) {
	h := Global()
	if h == nil {
		slog.Warn("pageserver: schedule_layer_upload before sync init, dropping", "tenant", tenantID, "timeline", timelineID)
		return
	}
	h.ScheduleLayerUpload(tenantID, timelineID, layers, meta)
}

func ScheduleLayerDownload(tenantID, timelineID syncid.ID) {
	h := Global()
	if h == nil {
		slog.Warn("pageserver: schedule_layer_download before sync init, dropping", "tenant", tenantID, "timeline", timelineID)
		return
	}
	h.ScheduleLayerDownload(tenantID, timelineID)
}

func ScheduleLayerDelete(tenantID, timelineID syncid.ID, layers []string) {
	h := Global()
	if h == nil {
		slog.Warn("pageserver: schedule_layer_delete before sync init, dropping", "tenant", tenantID, "timeline", timelineID)
		return
	}
	h.ScheduleLayerDelete(tenantID, timelineID, layers)
}
