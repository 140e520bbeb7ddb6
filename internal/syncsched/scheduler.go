// Package syncsched drives the Scheduler Loop (§4.4): one loop pulls
// per-timeline batches off the Sync Queue and spawns one worker per
// timeline, each running its upload and download protocols
// concurrently and its delete protocol strictly after both. The retry
// and exponential-backoff gate (§4.8) lives here too, since the backoff
// sleep must happen inside a per-timeline worker rather than the loop
// itself, so one slow timeline never blocks another.
package syncsched

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pgserver/storagesync/internal/queue"
	"github.com/pgserver/storagesync/internal/syncid"
	"github.com/pgserver/storagesync/internal/syncproto"
	"github.com/pgserver/storagesync/internal/synctask"
)

// StatusUpdate reports a completed download so the tenant manager can
// mark a timeline locally usable again.
type StatusUpdate struct {
	ID         syncid.SyncID
	Downloaded bool
}

// StatusSink hands a batch of status updates, grouped by tenant, to
// whatever owns tenant state — a single call per scheduler iteration,
// amortizing the external lock (§4.4 step 4).
type StatusSink func(byTenant map[syncid.ID][]StatusUpdate)

// Scheduler is the single driver described in §4.4.
type Scheduler struct {
	Queue                *queue.Queue[synctask.Item]
	Deps                 syncproto.Deps
	MaxTimelinesPerBatch int
	MaxSyncErrors        uint32
	Observer             Observer
	StatusSink           StatusSink
	Log                  *slog.Logger
}

// Run blocks until ctx is cancelled or the Sync Queue is closed, at
// which point it returns nil. Shutdown is cooperative: cancellation is
// checked at each batch boundary, so no new batch is drained once ctx
// is done, and Run waits for the workers already dispatched to return.
// Those workers share ctx: a pending backoff sleep ends early and
// object-store calls in flight receive the cancelled context, so
// whether a transfer already under way completes depends on the Store
// implementation honoring ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Observer == nil {
		s.Observer = NopObserver{}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		batches, ok := synctask.DrainBatch(ctx, s.Queue, s.MaxTimelinesPerBatch)
		if !ok {
			return nil
		}
		s.Observer.SetRemainingQueueLength(s.Queue.Len())

		var wg sync.WaitGroup
		var mu sync.Mutex
		byTenant := make(map[syncid.ID][]StatusUpdate)

		for id, batch := range batches {
			wg.Add(1)
			go func(id syncid.SyncID, batch *synctask.Batch) {
				defer wg.Done()
				if downloaded := s.runTimeline(ctx, id, batch); downloaded {
					mu.Lock()
					byTenant[id.TenantID] = append(byTenant[id.TenantID], StatusUpdate{ID: id, Downloaded: true})
					mu.Unlock()
				}
			}(id, batch)
		}
		wg.Wait()

		if s.StatusSink != nil && len(byTenant) > 0 {
			s.StatusSink(byTenant)
		}
	}
}

// runTimeline runs one timeline's batch: upload and download concurrent,
// delete strictly after both (§4.4 step 3, §5 ordering guarantees).
func (s *Scheduler) runTimeline(ctx context.Context, id syncid.SyncID, batch *synctask.Batch) (downloaded bool) {
	var wg sync.WaitGroup

	if batch.Upload != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runUpload(ctx, id, batch.Upload)
		}()
	}
	if batch.Download != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			downloaded = s.runDownload(ctx, id, batch.Download)
		}()
	}
	wg.Wait()

	if batch.Delete != nil {
		s.runDelete(ctx, id, batch.Delete)
	}
	return downloaded
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s *Scheduler) runUpload(ctx context.Context, id syncid.SyncID, task *synctask.UploadTask) {
	start := time.Now()

	if !Gate(task.RetryCount, s.MaxSyncErrors) {
		if err := syncproto.UploadTerminal(ctx, s.Deps, id, task); err != nil {
			s.logger().Error("sync", "op", "upload", "timeline", id, "event", "terminal-record-failed", "error", err)
		}
		s.Observer.IncFatalTaskFailures()
		s.Observer.ObserveSyncTime(synctask.KindUpload, false, time.Since(start))
		return
	}

	if err := sleepBackoff(ctx, task.RetryCount); err != nil {
		return
	}

	if err := syncproto.Upload(ctx, s.Deps, id, task); err != nil {
		s.logger().Warn("sync", "op", "upload", "timeline", id, "retries", task.RetryCount, "error", err)
		task.RetryCount++
		s.Observer.ObserveSyncTime(synctask.KindUpload, false, time.Since(start))
		s.Queue.Push(synctask.Item{ID: id, Task: task})
		return
	}

	s.Observer.ObserveSyncTime(synctask.KindUpload, true, time.Since(start))
}

func (s *Scheduler) runDownload(ctx context.Context, id syncid.SyncID, task *synctask.DownloadTask) (downloaded bool) {
	start := time.Now()

	if !Gate(task.RetryCount, s.MaxSyncErrors) {
		if err := syncproto.DownloadTerminal(ctx, s.Deps, id, task); err != nil {
			s.logger().Error("sync", "op", "download", "timeline", id, "event", "terminal-record-failed", "error", err)
		}
		s.Observer.IncFatalTaskFailures()
		s.Observer.ObserveSyncTime(synctask.KindDownload, false, time.Since(start))
		return false
	}

	if err := sleepBackoff(ctx, task.RetryCount); err != nil {
		return false
	}

	result, err := syncproto.Download(ctx, s.Deps, id, task)
	if err != nil {
		s.logger().Warn("sync", "op", "download", "timeline", id, "retries", task.RetryCount, "error", err)
		task.RetryCount++
		s.Observer.ObserveSyncTime(synctask.KindDownload, false, time.Since(start))
		s.Queue.Push(synctask.Item{ID: id, Task: task})
		return false
	}

	s.Observer.ObserveSyncTime(synctask.KindDownload, true, time.Since(start))
	return result == syncproto.Downloaded
}

func (s *Scheduler) runDelete(ctx context.Context, id syncid.SyncID, task *synctask.DeleteTask) {
	start := time.Now()

	if !Gate(task.RetryCount, s.MaxSyncErrors) {
		if err := syncproto.DeleteTerminal(ctx, s.Deps, id, task); err != nil {
			s.logger().Error("sync", "op", "delete", "timeline", id, "event", "terminal-record-failed", "error", err)
		}
		s.Observer.IncFatalTaskFailures()
		s.Observer.ObserveSyncTime(synctask.KindDelete, false, time.Since(start))
		return
	}

	if err := sleepBackoff(ctx, task.RetryCount); err != nil {
		return
	}

	if err := syncproto.Delete(ctx, s.Deps, id, task); err != nil {
		s.logger().Warn("sync", "op", "delete", "timeline", id, "retries", task.RetryCount, "error", err)
		task.RetryCount++
		s.Observer.ObserveSyncTime(synctask.KindDelete, false, time.Since(start))
		s.Queue.Push(synctask.Item{ID: id, Task: task})
		return
	}

	s.Observer.ObserveSyncTime(synctask.KindDelete, true, time.Since(start))
}
