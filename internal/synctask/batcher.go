package synctask

import (
	"context"

	"github.com/pgserver/storagesync/internal/queue"
	"github.com/pgserver/storagesync/internal/syncid"
)

// Batches is the result of one drain: per-timeline merged task batches,
// in no particular cross-timeline order (§5: "no ordering — work is
// interleaved freely").
type Batches map[syncid.SyncID]*Batch

// DrainBatch implements the Task Batcher (§4.3): block-await the first
// task, then non-blockingly pull additional tasks, accumulating per
// timeline until maxTimelines distinct timelines are present or the queue
// is momentarily empty. ok is false if the queue closed or ctx ended
// before any task arrived.
func DrainBatch(ctx context.Context, q *queue.Queue[Item], maxTimelines int) (Batches, bool) {
	first, ok := q.Pop(ctx)
	if !ok {
		return nil, false
	}

	batches := make(Batches)
	add(batches, first)

	for len(batches) < maxTimelines {
		item, ok := q.TryPop()
		if !ok {
			break
		}
		add(batches, item)
	}

	return batches, true
}

func add(batches Batches, item Item) {
	b, ok := batches[item.ID]
	if !ok {
		b = &Batch{}
		batches[item.ID] = b
	}
	b.Add(item.Task)
}
