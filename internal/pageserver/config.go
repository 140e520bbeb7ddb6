// Package pageserver is the public API consumed by other subsystems
// (§6): start_local_timeline_sync and the three schedule_layer_*
// entrypoints, wired on top of internal/remoteindex, internal/synctask,
// internal/objstore, internal/syncproto, internal/syncsched, and
// internal/reconcile.
package pageserver

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/pgserver/storagesync/internal/objstore"
	"github.com/pgserver/storagesync/internal/utils"
)

const (
	DefaultMaxConcurrentSyncs = 16
	DefaultMaxSyncErrors      = 10
)

// RemoteStorageConfig selects and configures the object-store backend.
// Exactly one of S3 or FSPath should be set; FSPath exists for local
// development and tests (§1: "an S3-like or local-filesystem backend").
type RemoteStorageConfig struct {
	S3     *objstore.S3Config `mapstructure:"s3"`
	FSPath string             `mapstructure:"fs_path"`
}

// configured reports whether a usable backend was actually specified,
// as opposed to a RemoteStorageConfig that only exists because viper's
// defaults populated the section.
func (c *RemoteStorageConfig) configured() bool {
	return c != nil && ((c.S3 != nil && c.S3.BucketName != "") || c.FSPath != "")
}

func (c *RemoteStorageConfig) build() (objstore.Store, error) {
	switch {
	// Checked by field, not pointer nil-ness: viper's defaults populate
	// the "remote_storage.s3" map key even when the section is unused,
	// which decodes into a non-nil, all-zero S3Config.
	case c.S3 != nil && c.S3.BucketName != "":
		return objstore.NewS3Store(*c.S3)
	case c.FSPath != "":
		return objstore.NewFSStore(c.FSPath)
	default:
		return nil, errors.New("remote storage config: neither s3 nor fs_path set")
	}
}

// Config is every input §6 enumerates under "Configuration inputs
// recognized". RemoteStorage is optional: if nil, no sync loop starts
// and every locally discovered timeline reports LocallyComplete.
type Config struct {
	Workdir            string               `mapstructure:"workdir"`
	RemoteStorage      *RemoteStorageConfig `mapstructure:"remote_storage"`
	MaxConcurrentSyncs int                  `mapstructure:"max_concurrent_syncs"`
	MaxSyncErrors      int                  `mapstructure:"max_sync_errors"`
}

// Validate resolves Workdir to an absolute path and applies defaults,
// following the teacher's config.Validate() convention.
func (c *Config) Validate() error {
	if c.Workdir == "" {
		return errors.New("workdir is required")
	}
	workdir, err := utils.ResolvePath(c.Workdir)
	if err != nil {
		return fmt.Errorf("workdir: %w", err)
	}
	c.Workdir = workdir

	if c.MaxConcurrentSyncs <= 0 {
		c.MaxConcurrentSyncs = DefaultMaxConcurrentSyncs
	}
	if c.MaxSyncErrors <= 0 {
		c.MaxSyncErrors = DefaultMaxSyncErrors
	}
	return nil
}

func (c Config) LogValue() slog.Value {
	remote := "none"
	accessKey := ""
	if c.RemoteStorage.configured() {
		switch {
		case c.RemoteStorage.S3 != nil && c.RemoteStorage.S3.BucketName != "":
			remote = "s3:" + c.RemoteStorage.S3.BucketName
			accessKey = utils.MaskSecret(c.RemoteStorage.S3.AccessKey)
		case c.RemoteStorage.FSPath != "":
			remote = "fs:" + c.RemoteStorage.FSPath
		}
	}
	return slog.GroupValue(
		slog.String("workdir", c.Workdir),
		slog.String("remote_storage", remote),
		slog.String("remote_storage_access_key", accessKey),
		slog.Int("max_concurrent_syncs", c.MaxConcurrentSyncs),
		slog.Int("max_sync_errors", c.MaxSyncErrors),
	)
}

// TenantsPath, TimelinesPath, TimelinePath, and MetadataPath are the
// deterministic path functions §6 requires as configuration inputs.
func (c Config) TenantsPath() string {
	return filepath.Join(c.Workdir, "tenants")
}

func (c Config) TimelinesPath(tenant string) string {
	return filepath.Join(c.TenantsPath(), tenant, "timelines")
}

func (c Config) TimelinePath(tenant, timeline string) string {
	return filepath.Join(c.TimelinesPath(tenant), timeline)
}

func (c Config) MetadataPath(tenant, timeline string) string {
	return filepath.Join(c.TimelinePath(tenant, timeline), "metadata")
}
