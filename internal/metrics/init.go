package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// volumes are the library names used as filesystem metric labels.
// Call this once at startup after metric registration.
func InitializeMetrics(volumes []string) {
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	vols := append([]string{"unknown"}, volumes...)
	for _, op := range []string{"stat", "open"} {
		for _, vol := range vols {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, outcome := range []string{"new", "moved", "missing", "reactivated"} {
		ScannerFilesTotal.WithLabelValues(outcome)
	}

	for _, kind := range []string{"created", "modified", "deleted", "moved"} {
		WatcherEventsTotal.WithLabelValues(kind)
		WatcherHandleDuration.WithLabelValues(kind)
	}
	for _, src := range []string{"fsnotify", "handler", "watch"} {
		WatcherErrors.WithLabelValues(src)
	}

	for _, mode := range []string{"solid", "wireframe"} {
		for _, status := range []string{"success", "empty", "error"} {
			ThumbnailGenerationsTotal.WithLabelValues(mode, status)
		}
		ThumbnailGenerationDuration.WithLabelValues(mode)
	}

	for _, status := range []string{"active", "missing"} {
		CatalogModelsTotal.WithLabelValues(status)
	}

	for _, op := range []string{"migrate", "begin_transaction", "commit", "rollback",
		"get_model_by_path", "list_models", "list_library_models", "insert_model", "update_model", "set_status",
		"find_by_hash", "get_or_create_category", "update_search_index", "purge_missing",
		"record_scan_run", "upsert_library"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, outcome := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(outcome)
	}
}
