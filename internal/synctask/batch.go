package synctask

// Batch is the per-SyncID merged bundle of at most one of each task kind
// (§3, §4.3).
type Batch struct {
	Upload   *UploadTask
	Download *DownloadTask
	Delete   *DeleteTask
}

// Add folds task into the batch, merging with any already-present task of
// the same kind.
func (b *Batch) Add(task Task) {
	switch t := task.(type) {
	case *UploadTask:
		if b.Upload == nil {
			b.Upload = t
		} else {
			b.Upload = MergeUpload(b.Upload, t)
		}
	case *DownloadTask:
		if b.Download == nil {
			b.Download = t
		} else {
			b.Download = MergeDownload(b.Download, t)
		}
	case *DeleteTask:
		if b.Delete == nil {
			b.Delete = t
		} else {
			b.Delete = MergeDelete(b.Delete, t)
		}
	}
}

// Empty reports whether the batch carries no tasks at all.
func (b *Batch) Empty() bool {
	return b.Upload == nil && b.Download == nil && b.Delete == nil
}
