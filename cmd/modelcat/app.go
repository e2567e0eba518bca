package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modelcat/internal/database"
	"modelcat/internal/filesystem"
	"modelcat/internal/logging"
	"modelcat/internal/memory"
	"modelcat/internal/metrics"
	"modelcat/internal/scanner"
	"modelcat/internal/startup"
	"modelcat/internal/thumbnail"
	"modelcat/internal/watcher"
)

// app holds the components shared by serve, scan and watch.
type app struct {
	cfg    *startup.Config
	db     *database.Database
	thumbs *thumbnail.Generator
	libs   []database.Library
}

// openApp opens the database, registers configured libraries and wires the
// filesystem metrics labels.
func openApp(ctx context.Context, cfg *startup.Config) (*app, error) {
	dbStart := time.Now()
	db, err := database.New(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	libs, err := syncLibraries(ctx, db, cfg.Libraries)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	names := make([]string, 0, len(libs))
	roots := make([]string, 0, len(libs))
	byName := make(map[string]string, len(libs))
	for _, lib := range libs {
		names = append(names, lib.Name)
		roots = append(roots, lib.RootPath)
		byName[lib.Name] = lib.RootPath
	}
	startup.LogLibraries(names, roots)

	filesystem.SetDefaultRootResolver(filesystem.NewRootResolver(byName))
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	metrics.InitializeMetrics(names)

	thumbs := thumbnail.NewGenerator(cfg.ThumbnailDir, cfg.ThumbnailsEnabled)
	startup.LogThumbnailInit(thumbs.IsEnabled(), cfg.ThumbnailDir)

	return &app{cfg: cfg, db: db, thumbs: thumbs, libs: libs}, nil
}

// syncLibraries upserts every configured library and returns all libraries
// known to the database, including ones added with "libraries add".
func syncLibraries(ctx context.Context, db *database.Database, configured []startup.LibraryConfig) ([]database.Library, error) {
	for _, lib := range configured {
		if _, err := db.UpsertLibrary(ctx, lib.Name, lib.Path); err != nil {
			return nil, fmt.Errorf("failed to register library %s: %w", lib.Name, err)
		}
	}
	libs, err := db.ListLibraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list libraries: %w", err)
	}
	return libs, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		logging.Warn("Error closing database: %v", err)
	}
}

// setupMemory applies the soft memory limit and returns a backpressure
// monitor for the scanner.
func setupMemory(cfg *startup.Config) *memory.Monitor {
	result := memory.ApplyLimit(memory.LimitSettings{
		ContainerLimit: cfg.MemoryLimitBytes,
		Ratio:          cfg.Memory.Ratio,
	})
	startup.LogMemoryConfig(result)

	mc := memory.DefaultConfig()
	mc.LimitBytes = result.GoMemLimit
	return memory.NewMonitor(mc)
}

func (a *app) newScanner(monitor *memory.Monitor) *scanner.Scanner {
	return scanner.New(a.db, a.thumbs, monitor, scanner.Options{
		Workers:          a.cfg.ScanWorkers,
		ThumbnailWorkers: a.cfg.Thumbnails.Workers,
		ThumbnailMode:    a.cfg.ThumbnailMode,
		ThumbnailQuality: a.cfg.ThumbnailQuality,
	})
}

// newWatcher creates a watcher over every library. A library that cannot be
// watched is logged and skipped; the periodic scan still covers it.
func (a *app) newWatcher() (*watcher.Watcher, error) {
	w, err := watcher.New(a.db, a.thumbs, watcher.Config{
		DebounceWindow:   a.cfg.DebounceWindowDuration,
		SweepInterval:    a.cfg.SweepIntervalDuration,
		RenamePairWindow: a.cfg.RenamePairWindowDuration,
		QueueSize:        a.cfg.QueueSize,
		StopTimeout:      a.cfg.ShutdownTimeoutDuration,
		ThumbnailMode:    a.cfg.ThumbnailMode,
		ThumbnailQuality: a.cfg.ThumbnailQuality,
	})
	if err != nil {
		return nil, err
	}

	for _, lib := range a.libs {
		if err := w.AddRoot(lib); err != nil {
			logging.Warn("Not watching library %s: %v", lib.Name, err)
		}
	}
	return w, nil
}

// waitForSignal blocks until SIGINT/SIGTERM or ctx ends and returns the
// signal name.
func waitForSignal(ctx context.Context, errCh <-chan error) (string, error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		return sig.String(), nil
	case err := <-errCh:
		return "error", err
	case <-ctx.Done():
		return "context cancellation", nil
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}
