package objstore

import (
	"path"

	"github.com/pgserver/storagesync/internal/syncid"
)

// indexPartObjectName is the fixed name for a timeline's Index Part
// object (§6: "index_part.json or equivalent fixed name").
const indexPartObjectName = "index_part.json"

// LayerPath derives the deterministic remote path for a layer blob:
// {tenant}/{timeline}/{layer_filename} (§6).
func LayerPath(id syncid.SyncID, layerFilename string) string {
	return path.Join(id.TenantID.String(), id.TimelineID.String(), layerFilename)
}

// IndexPartPath derives the deterministic remote path for a timeline's
// Index Part object.
func IndexPartPath(id syncid.SyncID) string {
	return path.Join(id.TenantID.String(), id.TimelineID.String(), indexPartObjectName)
}
