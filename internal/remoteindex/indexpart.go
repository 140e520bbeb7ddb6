package remoteindex

import (
	"encoding/json"
	"fmt"
)

// IndexPartSchemaVersion is the current on-disk/on-wire schema version.
// Readers reject any version they don't recognize (§6).
const IndexPartSchemaVersion = 1

// ErrUnknownSchemaVersion is returned by DecodeIndexPart for any version
// other than one this build understands.
var ErrUnknownSchemaVersion = fmt.Errorf("index part: unknown schema version")

// IndexPart is the authoritative remote manifest for one timeline: one
// object at a stable path derived from the SyncID (§3, §6). It is
// self-describing (carries its own schema version) so future versions can
// be introduced without breaking old readers into misinterpreting bytes.
type IndexPart struct {
	Version       int      `json:"version"`
	MetadataBytes []byte   `json:"metadata_bytes"`
	LayerPaths    []string `json:"layer_paths"`
}

// FromEntry builds the wire projection of a Remote Index entry.
func FromEntry(e Entry) IndexPart {
	return IndexPart{
		Version:       IndexPartSchemaVersion,
		MetadataBytes: append([]byte(nil), e.Metadata.Raw...),
		LayerPaths:    e.StoredFileList(),
	}
}

// LSNParser extracts the interpreted disk_consistent_lsn field out of an
// otherwise-opaque metadata byte blob. The sync engine never parses the
// rest of the record; this indirection is how the page server's own
// metadata format is plugged in without this package depending on it.
type LSNParser func(raw []byte) (uint64, error)

// ToEntry reconstructs a Remote Index entry from a fetched Index Part.
func (p IndexPart) ToEntry(parseLSN LSNParser) (Entry, error) {
	lsn, err := parseLSN(p.MetadataBytes)
	if err != nil {
		return Entry{}, fmt.Errorf("index part: parse lsn: %w", err)
	}
	e := newEntry(NewMetadata(lsn, p.MetadataBytes))
	addAll(e.StoredFiles, p.LayerPaths)
	return e, nil
}

// EncodeIndexPart serializes an Index Part to its round-trippable wire
// form. The spec allows any encoding; this module uses JSON, matching the
// teacher's convention for all its other on-disk records.
func EncodeIndexPart(p IndexPart) ([]byte, error) {
	return json.Marshal(p)
}

// DecodeIndexPart parses a fetched Index Part object, rejecting any schema
// version this build doesn't understand.
func DecodeIndexPart(data []byte) (IndexPart, error) {
	var p IndexPart
	if err := json.Unmarshal(data, &p); err != nil {
		return IndexPart{}, fmt.Errorf("index part: decode: %w", err)
	}
	if p.Version != IndexPartSchemaVersion {
		return IndexPart{}, fmt.Errorf("%w: %d", ErrUnknownSchemaVersion, p.Version)
	}
	return p, nil
}
