package syncproto

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pgserver/storagesync/internal/objstore"
	"github.com/pgserver/storagesync/internal/remoteindex"
	"github.com/pgserver/storagesync/internal/syncid"
	"github.com/pgserver/storagesync/internal/synctask"
	"golang.org/x/sync/errgroup"
)

// Delete runs one attempt of the Delete Protocol (§4.7): the index is
// rewritten to stop advertising the deleted paths *before* the blobs
// themselves are removed, so no observer ever sees a path in the index
// whose blob is missing.
func Delete(ctx context.Context, deps Deps, id syncid.SyncID, task *synctask.DeleteTask) error {
	if !task.DeletionRegistered {
		entry, err := deps.Index.RemoveLayers(id, keys(task.LayersToDelete))
		if err != nil {
			return fmt.Errorf("remove layers from index: %w", err)
		}

		part := remoteindex.FromEntry(entry)
		encoded, err := remoteindex.EncodeIndexPart(part)
		if err != nil {
			return fmt.Errorf("encode index part: %w", err)
		}
		if err := deps.Store.Put(ctx, objstore.IndexPartPath(id), bytes.NewReader(encoded), int64(len(encoded))); err != nil {
			return fmt.Errorf("put index part: %w", err)
		}
		task.DeletionRegistered = true
	}

	pending := task.Pending()
	if len(pending) == 0 {
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	results := make(chan string, len(pending))

	for _, layer := range pending {
		layer := layer
		eg.Go(func() error {
			if err := deps.Store.Delete(egCtx, objstore.LayerPath(id, layer)); err != nil {
				return fmt.Errorf("delete layer %s: %w", layer, err)
			}
			results <- layer
			if deps.Log != nil {
				deps.Log.Info("sync", "op", "delete", "timeline", id, "layer", layer)
			}
			return nil
		})
	}

	err := eg.Wait()
	close(results)
	for layer := range results {
		task.DeletedLayers[layer] = struct{}{}
	}
	return err
}

// DeleteTerminal records a retry-exhausted delete (§4.8): best-effort
// removes the deleted portion from the index and drops the task.
func DeleteTerminal(ctx context.Context, deps Deps, id syncid.SyncID, task *synctask.DeleteTask) error {
	_, err := deps.Index.RemoveLayers(id, task.Pending())
	return err
}
