package syncsched

import (
	"time"

	"github.com/pgserver/storagesync/internal/synctask"
)

// Observer receives the metrics named in spec §6: remaining_sync_items,
// fatal_task_failures, and image_sync_time{operation_kind,status}. The
// scheduler loop never mutates process-global state directly so it
// stays testable; pageserver.Metrics is the production implementation.
type Observer interface {
	SetRemainingQueueLength(n int64)
	IncFatalTaskFailures()
	ObserveSyncTime(kind synctask.Kind, success bool, elapsed time.Duration)
}

// NopObserver discards every metric; used when the caller doesn't wire
// one up (e.g. in tests).
type NopObserver struct{}

func (NopObserver) SetRemainingQueueLength(int64)                      {}
func (NopObserver) IncFatalTaskFailures()                              {}
func (NopObserver) ObserveSyncTime(synctask.Kind, bool, time.Duration) {}
