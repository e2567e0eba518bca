// Package metrics provides Prometheus instrumentation for modelcat.
//
// All metrics are prefixed with "modelcat_" and registered through promauto,
// so importing the package is enough to expose them on /metrics.
//
// # Metric Categories
//
// ## HTTP Metrics
//
// Request counts, durations and in-flight requests for the operational API.
//
// ## Database Metrics
//
//   - DBQueryTotal / DBQueryDuration: per named operation
//   - DBTransactionDuration: scan and watcher transactions by outcome
//   - DBSizeBytes: SQLite main, WAL and SHM file sizes
//
// ## Scanner Metrics
//
//   - ScannerRunsTotal, ScannerSkippedRunsTotal
//   - ScannerFilesTotal by outcome (new, moved, missing, reactivated)
//   - ScannerErrors, ScannerRunning, ScannerLastRun*
//
// ## Watcher Metrics
//
//   - WatcherRawEventsTotal: notifications straight from the OS
//   - WatcherEventsTotal: debounced events by kind
//   - WatcherPendingEvents, WatcherQueueDepth, WatcherWatchedDirectories
//   - WatcherErrors by source
//
// ## Catalog Metrics
//
// Refreshed periodically by Collector from a StatsProvider (the database):
// entries by status and format, categories, tags and libraries.
//
// ## Filesystem Metrics
//
// NFS retry counters labelled by operation and library. They are recorded
// through the filesystem.Observer returned by NewFilesystemObserver, which
// keeps the filesystem package free of a dependency on this one.
//
// # Usage
//
//	metrics.InitializeMetrics(libraryNames)
//	filesystem.SetObserver(metrics.NewFilesystemObserver())
//	collector := metrics.NewCollector(db, time.Minute)
//	collector.Start()
//	defer collector.Stop()
package metrics
