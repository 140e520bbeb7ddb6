package syncproto

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/pgserver/storagesync/internal/objstore"
	"github.com/pgserver/storagesync/internal/remoteindex"
	"github.com/pgserver/storagesync/internal/syncid"
	"github.com/pgserver/storagesync/internal/synctask"
	"golang.org/x/sync/errgroup"
)

// Result reports how a Download attempt ended.
type Result int

const (
	// Aborted means there was no remote entry to download from; the
	// task is dropped without reschedule (§4.6 step 1).
	Aborted Result = iota
	// Downloaded means every missing layer landed locally and, if
	// needed, local metadata was brought up to date (§4.6 step 4).
	Downloaded
)

// Download runs one attempt of the Download Protocol (§4.6). The task
// carries no explicit file list: to_download is computed from the
// current Remote Index entry minus task.LayersToSkip, so a retry never
// re-fetches a layer that already landed on a prior attempt.
func Download(ctx context.Context, deps Deps, id syncid.SyncID, task *synctask.DownloadTask) (Result, error) {
	entry, ok := deps.Index.Get(id)
	if !ok {
		_ = deps.Index.SetAwaitsDownload(id, false)
		return Aborted, nil
	}

	var toDownload []string
	for path := range entry.StoredFiles {
		if _, skip := task.LayersToSkip[path]; !skip {
			toDownload = append(toDownload, path)
		}
	}

	if len(toDownload) > 0 {
		eg, egCtx := errgroup.WithContext(ctx)
		results := make(chan string, len(toDownload))

		for _, layer := range toDownload {
			layer := layer
			eg.Go(func() error {
				rc, err := deps.Store.Get(egCtx, objstore.LayerPath(id, layer))
				if err != nil {
					return fmt.Errorf("get layer %s: %w", layer, err)
				}
				defer rc.Close()

				body, err := io.ReadAll(rc)
				if err != nil {
					return fmt.Errorf("read layer %s: %w", layer, err)
				}
				if err := deps.Layers.WriteDurable(id, layer, body); err != nil {
					return fmt.Errorf("write local layer %s: %w", layer, err)
				}
				results <- layer
				if deps.Log != nil {
					deps.Log.Info("sync", "op", "download", "timeline", id, "layer", layer, "size", humanize.Bytes(uint64(len(body))))
				}
				return nil
			})
		}

		err := eg.Wait()
		close(results)
		for layer := range results {
			task.LayersToSkip[layer] = struct{}{}
		}
		if err != nil {
			return 0, err
		}
	}

	if err := syncLocalMetadata(deps, id, entry.Metadata); err != nil {
		return 0, fmt.Errorf("sync local metadata: %w", err)
	}

	if err := deps.Index.SetAwaitsDownload(id, false); err != nil && !errors.Is(err, remoteindex.ErrNotFound) {
		return 0, err
	}

	return Downloaded, nil
}

// syncLocalMetadata writes remote metadata locally only if it's absent
// or strictly behind, and only after every blob GET above has already
// succeeded — a crash here leaves extra local files (harmless) rather
// than a metadata file pointing at layers that aren't on disk (§4.6
// step 3).
func syncLocalMetadata(deps Deps, id syncid.SyncID, remote remoteindex.Metadata) error {
	local, err := deps.Metadata.Read(id)
	if err != nil {
		return fmt.Errorf("read local metadata: %w", err)
	}
	if local != nil && !remote.NewerThan(*local) {
		return nil
	}
	return deps.Metadata.WriteDurable(id, remote)
}

// DownloadTerminal records a retry-exhausted download (§4.8): clear
// awaits_download and drop the task. The timeline is left
// locally-complete-with-gaps; the tenant may reschedule later.
func DownloadTerminal(ctx context.Context, deps Deps, id syncid.SyncID, task *synctask.DownloadTask) error {
	err := deps.Index.SetAwaitsDownload(id, false)
	if errors.Is(err, remoteindex.ErrNotFound) {
		return nil
	}
	return err
}
