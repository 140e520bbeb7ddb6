// Package reconcile implements the Startup Reconciler (§4.9): it scans
// locally known tenants/timelines, fans out Index Part fetches for each,
// diffs local vs. remote state, and seeds the Sync Queue with the
// upload/download tasks needed to bring every locally known timeline up
// to date.
package reconcile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pgserver/storagesync/internal/objstore"
	"github.com/pgserver/storagesync/internal/queue"
	"github.com/pgserver/storagesync/internal/remoteindex"
	"github.com/pgserver/storagesync/internal/syncid"
	"github.com/pgserver/storagesync/internal/synctask"
	"golang.org/x/sync/errgroup"
)

// Status is the per-timeline outcome reported to the caller of
// start_local_timeline_sync (§6).
type Status int

const (
	LocallyComplete Status = iota
	NeedsSync
)

func (s Status) String() string {
	if s == NeedsSync {
		return "NeedsSync"
	}
	return "LocallyComplete"
}

// LocalTimeline is the result of scanning one timeline directory
// (§4.9 step 1): the regular layer files left after excluding ephemeral
// files and sweeping reserved-suffix download leftovers, plus whatever
// metadata was found on disk.
type LocalTimeline struct {
	Files    map[string]struct{}
	Metadata *remoteindex.Metadata
}

// Scanner enumerates the local workdir and scans each timeline it
// finds. Implementations live in the pageserver package, where the
// workdir layout (tenants_path/timelines_path/metadata_path) is known.
type Scanner interface {
	ListTenants(ctx context.Context) ([]syncid.ID, error)
	ListTimelines(ctx context.Context, tenantID syncid.ID) ([]syncid.ID, error)
	// ScanTimeline performs step 1 for one timeline: exclude ephemeral
	// files, remove reserved-temp-suffix leftovers, collect the rest. A
	// missing metadata file is an error for this one timeline only.
	ScanTimeline(ctx context.Context, id syncid.SyncID) (LocalTimeline, error)
}

// FetchIndexPart fetches and decodes one timeline's remote Index Part.
// Fetch or decode failure is treated as "no remote entry" (§4.9 step 2).
func FetchIndexPart(ctx context.Context, store objstore.Store, id syncid.SyncID) (*remoteindex.IndexPart, error) {
	data, err := objstore.GetBytes(ctx, store, objstore.IndexPartPath(id))
	if err != nil {
		return nil, err
	}
	part, err := remoteindex.DecodeIndexPart(data)
	if err != nil {
		return nil, err
	}
	return &part, nil
}

// Result is what Reconcile returns to start_local_timeline_sync: the
// status of every timeline the local scan discovered, grouped by
// tenant. The seeded tasks are pushed to the queue, not returned here.
type Result map[syncid.ID]map[syncid.ID]Status

// Reconcile runs the full startup sequence (§4.9 steps 1-4) and seeds q
// with the Upload/Download tasks steps 3 compute. parseLSN plugs in the
// page server's own metadata format, the same indirection
// remoteindex.IndexPart.ToEntry uses.
func Reconcile(
	ctx context.Context,
	log *slog.Logger,
	scanner Scanner,
	store objstore.Store,
	parseLSN remoteindex.LSNParser,
	index *remoteindex.Index,
	q *queue.Queue[synctask.Item],
) (Result, error) {
	if log == nil {
		log = slog.Default()
	}

	tenants, err := scanner.ListTenants(ctx)
	if err != nil {
		return nil, err
	}

	type localEntry struct {
		id    syncid.SyncID
		local LocalTimeline
	}
	var locals []localEntry

	for _, tenantID := range tenants {
		timelines, err := scanner.ListTimelines(ctx, tenantID)
		if err != nil {
			log.Error("reconcile", "tenant", tenantID, "error", err)
			continue
		}
		for _, timelineID := range timelines {
			id := syncid.New(tenantID, timelineID)
			local, err := scanner.ScanTimeline(ctx, id)
			if err != nil {
				log.Error("reconcile", "timeline", id, "error", err)
				continue
			}
			locals = append(locals, localEntry{id: id, local: local})
		}
	}

	remotes := make(map[syncid.SyncID]*remoteindex.Entry, len(locals))
	eg, egCtx := errgroup.WithContext(ctx)
	var muRemotes sync.Mutex
	for _, le := range locals {
		le := le
		eg.Go(func() error {
			part, err := FetchIndexPart(egCtx, store, le.id)
			if err != nil {
				log.Warn("reconcile", "timeline", le.id, "event", "no-remote-entry", "error", err)
				return nil
			}
			entry, err := part.ToEntry(parseLSN)
			if err != nil {
				log.Warn("reconcile", "timeline", le.id, "event", "index-part-unreadable", "error", err)
				return nil
			}
			muRemotes.Lock()
			remotes[le.id] = &entry
			muRemotes.Unlock()
			return nil
		})
	}
	// errgroup's error is always nil here by construction (every path
	// above logs and returns nil); Wait only provides synchronization.
	_ = eg.Wait()

	result := make(Result)
	for _, le := range locals {
		status := seed(le.id, le.local, remotes[le.id], index, q)
		if result[le.id.TenantID] == nil {
			result[le.id.TenantID] = make(map[syncid.ID]Status)
		}
		result[le.id.TenantID][le.id.TimelineID] = status
	}

	return result, nil
}

func seed(id syncid.SyncID, local LocalTimeline, remote *remoteindex.Entry, index *remoteindex.Index, q *queue.Queue[synctask.Item]) Status {
	if remote == nil {
		q.Push(synctask.Item{ID: id, Task: synctask.NewUploadTask(keys(local.Files), local.Metadata)})
		return LocallyComplete
	}

	index.Insert(id, *remote)

	var missingLocally []string
	for path := range remote.StoredFiles {
		if _, ok := local.Files[path]; !ok {
			missingLocally = append(missingLocally, path)
		}
	}

	status := LocallyComplete
	if len(missingLocally) > 0 {
		download := synctask.NewDownloadTask()
		for path := range local.Files {
			download.LayersToSkip[path] = struct{}{}
		}
		q.Push(synctask.Item{ID: id, Task: download})
		_ = index.SetAwaitsDownload(id, true)
		status = NeedsSync
	}

	var extraLocal []string
	for path := range local.Files {
		if _, ok := remote.StoredFiles[path]; !ok {
			extraLocal = append(extraLocal, path)
		}
	}
	if len(extraLocal) > 0 {
		q.Push(synctask.Item{ID: id, Task: synctask.NewUploadTask(extraLocal, local.Metadata)})
	}

	return status
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
