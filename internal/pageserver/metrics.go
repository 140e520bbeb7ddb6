package pageserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pgserver/storagesync/internal/synctask"
)

// Metrics is the production syncsched.Observer: hand-rolled atomic
// counters exposed on a debug HTTP endpoint, the same pattern the
// teacher uses for its own lightweight internal counters rather than
// pulling in a full metrics library (no metrics client is in the
// teacher's dependency set; see DESIGN.md).
type Metrics struct {
	remainingSyncItems atomic.Int64
	fatalTaskFailures  atomic.Int64

	mu       sync.Mutex
	syncTime map[string]*histogram
}

type histogram struct {
	count int64
	sum   time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{syncTime: make(map[string]*histogram)}
}

func (m *Metrics) SetRemainingQueueLength(n int64) {
	m.remainingSyncItems.Store(n)
}

func (m *Metrics) IncFatalTaskFailures() {
	m.fatalTaskFailures.Add(1)
}

func (m *Metrics) ObserveSyncTime(kind synctask.Kind, success bool, elapsed time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	key := kind.String() + "." + status

	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.syncTime[key]
	if !ok {
		h = &histogram{}
		m.syncTime[key] = h
	}
	h.count++
	h.sum += elapsed
}

// snapshot is the JSON projection served on the debug endpoint.
type snapshot struct {
	RemainingSyncItems int64              `json:"remaining_sync_items"`
	FatalTaskFailures  int64              `json:"fatal_task_failures"`
	ImageSyncTime      map[string]float64 `json:"image_sync_time_seconds_total"`
}

func (m *Metrics) Snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	times := make(map[string]float64, len(m.syncTime))
	for k, h := range m.syncTime {
		times[k] = h.sum.Seconds()
	}

	return snapshot{
		RemainingSyncItems: m.remainingSyncItems.Load(),
		FatalTaskFailures:  m.fatalTaskFailures.Load(),
		ImageSyncTime:      times,
	}
}

// Handler serves the current snapshot as JSON, for the debug/metrics
// endpoint that cmd/pageserver serves from its own background goroutine.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	})
}
