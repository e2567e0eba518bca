package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelcat_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelcat_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelcat_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelcat_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelcat_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelcat_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"outcome"}, // "commit", "rollback"
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelcat_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Scanner metrics
var (
	ScannerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelcat_scanner_runs_total",
			Help: "Total number of completed scan passes",
		},
	)

	ScannerSkippedRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelcat_scanner_skipped_runs_total",
			Help: "Scan requests ignored because a scan was already running",
		},
	)

	ScannerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelcat_scanner_last_run_timestamp",
			Help: "Unix timestamp of the last completed scan",
		},
	)

	ScannerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelcat_scanner_last_run_duration_seconds",
			Help: "Duration of the last completed scan in seconds",
		},
	)

	ScannerFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelcat_scanner_files_total",
			Help: "Files reconciled by the scanner, by outcome",
		},
		[]string{"outcome"}, // "new", "moved", "missing", "reactivated"
	)

	ScannerFilesSeen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelcat_scanner_files_seen_total",
			Help: "Eligible files and archive entries discovered by the scanner",
		},
	)

	ScannerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelcat_scanner_errors_total",
			Help: "Per-file errors encountered during scans",
		},
	)

	ScannerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelcat_scanner_running",
			Help: "Whether a scan is currently running (1 = running, 0 = idle)",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelcat_watcher_events_total",
			Help: "Debounced change events handled by the watcher",
		},
		[]string{"kind"}, // "created", "modified", "deleted", "moved"
	)

	WatcherRawEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelcat_watcher_raw_events_total",
			Help: "Raw filesystem notifications received",
		},
		[]string{"op"},
	)

	WatcherErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelcat_watcher_errors_total",
			Help: "Errors encountered by the watcher",
		},
		[]string{"source"}, // "fsnotify", "handler", "watch"
	)

	WatcherPendingEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelcat_watcher_pending_events",
			Help: "Events waiting in the debouncer",
		},
	)

	WatcherQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelcat_watcher_queue_depth",
			Help: "Promoted events waiting for the reconciliation worker",
		},
	)

	WatcherWatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelcat_watcher_watched_directories",
			Help: "Number of directories registered with the OS watcher",
		},
	)

	WatcherHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelcat_watcher_handle_duration_seconds",
			Help:    "Time spent reconciling a single debounced event",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"kind"},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelcat_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"mode", "status"}, // status: "success", "empty", "error"
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelcat_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"mode"},
	)
)

// Catalog metrics, refreshed by the Collector
var (
	CatalogModelsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelcat_catalog_models",
			Help: "Catalog entries by status",
		},
		[]string{"status"},
	)

	CatalogModelsByFormat = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelcat_catalog_models_by_format",
			Help: "Active catalog entries by file format",
		},
		[]string{"format"},
	)

	CatalogCategoriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelcat_catalog_categories",
			Help: "Number of categories",
		},
	)

	CatalogTagsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelcat_catalog_tags",
			Help: "Number of tags",
		},
	)

	CatalogLibrariesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelcat_catalog_libraries",
			Help: "Number of configured libraries",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelcat_filesystem_retry_attempts_total",
			Help: "Retries issued after an NFS stale file handle error",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelcat_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelcat_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelcat_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelcat_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retried filesystem operations",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelcat_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelcat_memory_paused",
			Help: "Whether processing is paused for memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelcat_memory_gc_pauses_total",
			Help: "Times processing was paused and a GC forced due to memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelcat_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)
