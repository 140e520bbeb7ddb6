package pageserver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pgserver/storagesync/internal/reconcile"
	"github.com/pgserver/storagesync/internal/remoteindex"
	"github.com/pgserver/storagesync/internal/syncid"
	"github.com/pgserver/storagesync/internal/syncproto"
	"github.com/pgserver/storagesync/internal/utils"
)

const metadataFileName = "metadata"

var errMissingMetadata = errors.New("missing metadata file")

// LocalFS implements syncproto.LocalMetadata, syncproto.LocalLayers, and
// reconcile.Scanner directly against the server's workdir, following
// Config's deterministic path functions (§6).
type LocalFS struct {
	cfg Config
}

func NewLocalFS(cfg Config) *LocalFS {
	return &LocalFS{cfg: cfg}
}

var (
	_ syncproto.LocalMetadata = (*LocalFS)(nil)
	_ syncproto.LocalLayers   = (*LocalFS)(nil)
	_ reconcile.Scanner       = (*LocalFS)(nil)
)

func (fs *LocalFS) metadataPath(id syncid.SyncID) string {
	return fs.cfg.MetadataPath(id.TenantID.String(), id.TimelineID.String())
}

func (fs *LocalFS) timelinePath(id syncid.SyncID) string {
	return fs.cfg.TimelinePath(id.TenantID.String(), id.TimelineID.String())
}

// Read implements syncproto.LocalMetadata.
func (fs *LocalFS) Read(id syncid.SyncID) (*remoteindex.Metadata, error) {
	raw, err := os.ReadFile(fs.metadataPath(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lsn, err := ParseMetadataLSN(raw)
	if err != nil {
		return nil, err
	}
	meta := remoteindex.NewMetadata(lsn, raw)
	return &meta, nil
}

// WriteDurable implements syncproto.LocalMetadata via write + fsync +
// rename (§4.6 step 3).
func (fs *LocalFS) WriteDurable(id syncid.SyncID, meta remoteindex.Metadata) error {
	return writeDurable(fs.metadataPath(id), meta.Raw)
}

// Open implements syncproto.LocalLayers.
func (fs *LocalFS) Open(id syncid.SyncID, layer string) (syncproto.ReadSeekCloser, int64, error) {
	path := filepath.Join(fs.timelinePath(id), layer)
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// WriteDurable implements syncproto.LocalLayers: write to a temp file
// bearing the reserved download suffix, then atomically rename into
// place, so a crash mid-download never leaves a half-written layer at
// its final name (§4.6 step 2).
func (fs *LocalFS) WriteDurable(id syncid.SyncID, layer string, body []byte) error {
	final := filepath.Join(fs.timelinePath(id), layer)
	tmp := final + syncproto.TempDownloadSuffix + "-" + uuid.NewString()
	if err := utils.EnsureParent(tmp); err != nil {
		return err
	}
	if err := writeDurableTo(tmp, body); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ListTenants implements reconcile.Scanner.
func (fs *LocalFS) ListTenants(ctx context.Context) ([]syncid.ID, error) {
	return listDirIDs(fs.cfg.TenantsPath())
}

// ListTimelines implements reconcile.Scanner.
func (fs *LocalFS) ListTimelines(ctx context.Context, tenantID syncid.ID) ([]syncid.ID, error) {
	return listDirIDs(fs.cfg.TimelinesPath(tenantID.String()))
}

func listDirIDs(dir string) ([]syncid.ID, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []syncid.ID
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := syncid.ParseID(e.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ScanTimeline implements reconcile.Scanner (§4.9 step 1): excludes
// ephemeral files, sweeps reserved-suffix download leftovers, and
// requires a metadata file to exist.
func (fs *LocalFS) ScanTimeline(ctx context.Context, id syncid.SyncID) (reconcile.LocalTimeline, error) {
	dir := fs.timelinePath(id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return reconcile.LocalTimeline{}, fmt.Errorf("scan timeline %s: %w", id, err)
	}

	files := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case name == metadataFileName:
			continue
		case strings.HasPrefix(name, syncproto.EphemeralFilePrefix):
			continue
		case strings.Contains(name, syncproto.TempDownloadSuffix):
			os.Remove(filepath.Join(dir, name))
			continue
		default:
			files[name] = struct{}{}
		}
	}

	meta, err := fs.Read(id)
	if err != nil {
		return reconcile.LocalTimeline{}, fmt.Errorf("scan timeline %s: read metadata: %w", id, err)
	}
	if meta == nil {
		return reconcile.LocalTimeline{}, fmt.Errorf("scan timeline %s: %w", id, errMissingMetadata)
	}

	return reconcile.LocalTimeline{Files: files, Metadata: meta}, nil
}

func writeDurable(path string, data []byte) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	tmp := path + ".tmp-" + uuid.NewString()
	if err := writeDurableTo(tmp, data); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func writeDurableTo(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
