// Package main provides the modelcat command.
//
// modelcat keeps a SQLite catalog of 3D model files in sync with one or more
// library directories. Two mechanisms keep the catalog current:
//
//   - Scans walk every library, hash each model file with BLAKE3 and
//     reconcile the result against the catalog in one transaction. Moved
//     files are recognised by content hash and keep their tags.
//   - The watcher applies debounced fsnotify events between scans.
//
// # Commands
//
//	modelcat serve                 scans, watcher and the ops HTTP server
//	modelcat scan                  one reconciliation pass, then exit
//	modelcat watch [--scan=false]  watcher only, until interrupted
//	modelcat history [-n 20]       recent scan runs
//	modelcat purge --older-than D  hard-delete models missing for at least D
//	modelcat models [--status S]   list active or missing models
//	modelcat search <query>...     search model names and paths
//	modelcat tag add|rm|set|ls     manage model tags by file path
//	modelcat libraries list|add|remove
//	modelcat config init|show
//	modelcat version
//
// # Configuration
//
// Configuration is read from modelcat.yaml (see "modelcat config init"),
// .env files next to it and MODELCAT_* environment variables, in increasing
// order of precedence. Nested keys use underscores, for example
// MODELCAT_LOG_LEVEL or MODELCAT_THUMBNAILS_MODE.
//
// # Graceful Shutdown
//
// serve handles SIGINT and SIGTERM:
//
//  1. Stop accepting HTTP requests
//  2. Stop the watcher; events still queued are left for the next scan
//  3. Cancel and wait for any running scan; its transaction rolls back
//  4. Stop the metrics collector
//  5. Close the database
//
// # Build Requirements
//
// CGO is required for mattn/go-sqlite3. FTS4 is compiled in by default.
//
//	go build -o modelcat ./cmd/modelcat
package main
