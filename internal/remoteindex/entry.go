package remoteindex

// Entry is the value the Remote Index holds per timeline: the current
// known metadata plus the set of layer paths believed present remotely.
//
// stored_files and upload_failed_files are disjoint at quiescence: a
// successful re-upload of a previously-failed path removes it from
// UploadFailedFiles as it's added to StoredFiles.
type Entry struct {
	Metadata          Metadata
	StoredFiles       map[string]struct{}
	UploadFailedFiles map[string]struct{}
	AwaitsDownload    bool
}

func newEntry(meta Metadata) Entry {
	return Entry{
		Metadata:          meta,
		StoredFiles:       make(map[string]struct{}),
		UploadFailedFiles: make(map[string]struct{}),
	}
}

// clone deep-copies the entry so callers can read it, or build an
// Index Part from it, without holding the index lock.
func (e Entry) clone() Entry {
	out := Entry{
		Metadata:       e.Metadata.clone(),
		AwaitsDownload: e.AwaitsDownload,
	}
	out.StoredFiles = cloneSet(e.StoredFiles)
	out.UploadFailedFiles = cloneSet(e.UploadFailedFiles)
	return out
}

// StoredFileList returns the stored file set as a sorted-free slice,
// suitable for serializing into an Index Part.
func (e Entry) StoredFileList() []string {
	out := make([]string, 0, len(e.StoredFiles))
	for p := range e.StoredFiles {
		out = append(out, p)
	}
	return out
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func addAll(dst map[string]struct{}, paths []string) {
	for _, p := range paths {
		dst[p] = struct{}{}
	}
}

func removeAll(dst map[string]struct{}, paths []string) {
	for _, p := range paths {
		delete(dst, p)
	}
}
