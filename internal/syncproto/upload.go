package syncproto

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pgserver/storagesync/internal/objstore"
	"github.com/pgserver/storagesync/internal/remoteindex"
	"github.com/pgserver/storagesync/internal/syncid"
	"github.com/pgserver/storagesync/internal/synctask"
	"golang.org/x/sync/errgroup"
)

// Upload runs one attempt of the Upload Protocol (§4.5 steps 2-4). The
// retry gate (step 1) is the caller's job: by the time Upload is called
// the task has already been cleared to attempt.
//
// On success, task.UploadedLayers reflects every layer that has ever
// been PUT by this or a prior attempt, so a retry triggered by an
// index-part PUT failure does not re-upload blobs that already landed.
func Upload(ctx context.Context, deps Deps, id syncid.SyncID, task *synctask.UploadTask) error {
	pending := task.Pending()

	if len(pending) > 0 {
		eg, egCtx := errgroup.WithContext(ctx)
		results := make(chan string, len(pending))

		for _, layer := range pending {
			layer := layer
			eg.Go(func() error {
				r, size, err := deps.Layers.Open(id, layer)
				if err != nil {
					return fmt.Errorf("open local layer %s: %w", layer, err)
				}
				defer r.Close()

				if err := deps.Store.Put(egCtx, objstore.LayerPath(id, layer), r, size); err != nil {
					return fmt.Errorf("put layer %s: %w", layer, err)
				}
				results <- layer
				if deps.Log != nil {
					deps.Log.Info("sync", "op", "upload", "timeline", id, "layer", layer, "size", humanize.Bytes(uint64(size)))
				}
				return nil
			})
		}

		err := eg.Wait()
		close(results)
		for layer := range results {
			task.UploadedLayers[layer] = struct{}{}
		}
		if err != nil {
			return err
		}
	}

	meta := task.Metadata
	if meta != nil {
		if local, lerr := deps.Metadata.Read(id); lerr == nil && local != nil && local.NewerThan(*meta) {
			meta = local
		}
	}

	entry, err := deps.Index.ApplyUpload(id, meta, keys(task.UploadedLayers))
	if err != nil {
		return fmt.Errorf("apply upload to index: %w", err)
	}

	part := remoteindex.FromEntry(entry)
	encoded, err := remoteindex.EncodeIndexPart(part)
	if err != nil {
		return fmt.Errorf("encode index part: %w", err)
	}

	if err := deps.Store.Put(ctx, objstore.IndexPartPath(id), bytes.NewReader(encoded), int64(len(encoded))); err != nil {
		return fmt.Errorf("put index part: %w", err)
	}

	return nil
}

// UploadTerminal records a retry-exhausted upload (§4.8): the affected
// layers are marked failed on the index but the timeline stays usable,
// and the task is dropped (no blob deletion, no further reschedule).
func UploadTerminal(ctx context.Context, deps Deps, id syncid.SyncID, task *synctask.UploadTask) error {
	return deps.Index.AddUploadFailures(id, task.Pending())
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
