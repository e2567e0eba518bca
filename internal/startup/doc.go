// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// [NewViper] reads modelcat.yaml (from the --config path, or ., ./config,
// /etc/modelcat and $HOME/.modelcat), loads .env and .env.local files from
// the same directories, and applies MODELCAT_* environment overrides, with
// nested keys joined by underscores (MODELCAT_LOG_LEVEL for log.level).
// [LoadConfig] decodes the result, prints the banner and prepares the
// database and cache directories.
//
// Supported keys:
//
//   - database_dir: directory holding modelcat.db (default: /database)
//   - cache_dir: directory for thumbnails (default: /cache)
//   - port: ops HTTP port for serve (default: 8080)
//   - metrics_enabled: expose /metrics (default: true)
//   - scan_on_startup, scan_interval, scan_workers
//   - watch_enabled, debounce_window, sweep_interval, rename_pair_window, queue_size
//   - thumbnails.enabled, thumbnails.mode (solid|wireframe), thumbnails.quality (low|medium|high), thumbnails.workers
//   - memory.limit (e.g. 2GiB), memory.ratio (default: 0.85)
//   - log.level, log.file, log.no_terminal, log.max_size, log.max_backups, log.max_age, log.compress
//   - libraries: list of {name, path}
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// [LogDatabaseInit], [LogMemoryConfig], [LogLibraries], [LogScannerInit],
// [LogWatcherInit], [LogHTTPRoutes] and [LogServerStarted] print the startup
// sections; [LogShutdownInitiated] and [LogShutdownComplete] bracket shutdown.
package startup
