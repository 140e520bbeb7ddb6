package remoteindex

// Metadata is the opaque, byte-serializable timeline metadata record. The
// sync engine only ever looks inside it for DiskConsistentLSN; everything
// else is carried as opaque bytes so it round-trips untouched.
type Metadata struct {
	DiskConsistentLSN uint64
	Raw               []byte
}

// NewMetadata wraps a raw metadata blob together with the LSN the sync
// engine must reason about.
func NewMetadata(lsn uint64, raw []byte) Metadata {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Metadata{DiskConsistentLSN: lsn, Raw: cp}
}

// NewerThan reports whether m strictly supersedes other, per §3: "Metadata
// with a higher LSN strictly supersedes metadata with a lower LSN."
func (m Metadata) NewerThan(other Metadata) bool {
	return m.DiskConsistentLSN > other.DiskConsistentLSN
}

func (m Metadata) clone() Metadata {
	return NewMetadata(m.DiskConsistentLSN, m.Raw)
}
