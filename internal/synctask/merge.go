package synctask

// MergeUpload folds new into old per §4.3: union the layer sets, keep the
// metadata with the greater LSN (ties go to new), and take the min retry
// count because merging represents fresh user intent and the more
// optimistic counter should win.
func MergeUpload(old, new *UploadTask) *UploadTask {
	merged := &UploadTask{
		LayersToUpload: make(map[string]struct{}, len(old.LayersToUpload)+len(new.LayersToUpload)),
		UploadedLayers: make(map[string]struct{}, len(old.UploadedLayers)+len(new.UploadedLayers)),
		Metadata:       old.Metadata,
		RetryCount:     minRetries(old.RetryCount, new.RetryCount),
	}
	union(merged.LayersToUpload, old.LayersToUpload, new.LayersToUpload)
	union(merged.UploadedLayers, old.UploadedLayers, new.UploadedLayers)

	if new.Metadata != nil && (old.Metadata == nil || !old.Metadata.NewerThan(*new.Metadata)) {
		merged.Metadata = new.Metadata
	}
	return merged
}

// MergeDownload folds new into old per §4.3: union layers_to_skip, min
// retries.
func MergeDownload(old, new *DownloadTask) *DownloadTask {
	merged := &DownloadTask{
		LayersToSkip: make(map[string]struct{}, len(old.LayersToSkip)+len(new.LayersToSkip)),
		RetryCount:   minRetries(old.RetryCount, new.RetryCount),
	}
	union(merged.LayersToSkip, old.LayersToSkip, new.LayersToSkip)
	return merged
}

// MergeDelete folds new into old per §4.3: union both layer sets, min
// retries, deletion_registered stays true if either side is true.
func MergeDelete(old, new *DeleteTask) *DeleteTask {
	merged := &DeleteTask{
		LayersToDelete:     make(map[string]struct{}, len(old.LayersToDelete)+len(new.LayersToDelete)),
		DeletedLayers:      make(map[string]struct{}, len(old.DeletedLayers)+len(new.DeletedLayers)),
		DeletionRegistered: old.DeletionRegistered || new.DeletionRegistered,
		RetryCount:         minRetries(old.RetryCount, new.RetryCount),
	}
	union(merged.LayersToDelete, old.LayersToDelete, new.LayersToDelete)
	union(merged.DeletedLayers, old.DeletedLayers, new.DeletedLayers)
	return merged
}
