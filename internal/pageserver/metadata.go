package pageserver

import (
	"encoding/json"
	"fmt"
)

// metadataFile is the on-disk/index-part projection of the one field
// the sync engine is allowed to interpret out of otherwise-opaque
// metadata bytes (§3, §4.1: "disk_consistent_lsn"). Everything else a
// real page server metadata record carries is out of scope here; this
// module only needs enough of a concrete format to exercise the
// pluggable remoteindex.LSNParser hook end to end.
type metadataFile struct {
	DiskConsistentLSN uint64 `json:"disk_consistent_lsn"`
}

// ParseMetadataLSN is the remoteindex.LSNParser this module plugs in.
func ParseMetadataLSN(raw []byte) (uint64, error) {
	var m metadataFile
	if err := json.Unmarshal(raw, &m); err != nil {
		return 0, fmt.Errorf("parse metadata lsn: %w", err)
	}
	return m.DiskConsistentLSN, nil
}

// EncodeMetadata produces the raw bytes form for a given LSN.
func EncodeMetadata(lsn uint64) []byte {
	data, _ := json.Marshal(metadataFile{DiskConsistentLSN: lsn})
	return data
}
