package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"modelcat/internal/handlers"
	"modelcat/internal/logging"
	"modelcat/internal/metrics"
	"modelcat/internal/middleware"
	"modelcat/internal/scanner"
	"modelcat/internal/startup"
	"modelcat/internal/watcher"
)

const metricsCollectInterval = time.Minute

func newServeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scans, the realtime watcher and the ops HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), c)
		},
	}
}

func runServe(ctx context.Context, c *cli) error {
	startTime := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := startup.LoadConfig(c.v)
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	monitor := setupMemory(cfg)

	a, err := openApp(ctx, cfg)
	if err != nil {
		startup.LogFatal("Failed to initialize: %v", err)
	}
	defer a.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := a.newScanner(monitor)
	startup.LogScannerInit(cfg.ScanIntervalDuration, cfg.ScanOnStartup)
	s.Start(runCtx, cfg.ScanIntervalDuration, cfg.ScanOnStartup)
	startup.LogComponentStarted("Scanner")

	startup.LogWatcherInit(cfg.WatchEnabled, cfg.DebounceWindowDuration, cfg.QueueSize)
	var w *watcher.Watcher
	var watchStatus handlers.WatchStatus
	if cfg.WatchEnabled {
		if w, err = a.newWatcher(); err != nil {
			logging.Warn("Realtime watcher unavailable, relying on periodic scans: %v", err)
		} else {
			w.Start(runCtx)
			watchStatus = w
			startup.LogComponentStarted("Watcher")
		}
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector(a.db, metricsCollectInterval)
		collector.Start()
		startup.LogComponentStarted("Metrics collector")
	}

	srv, err := newServer(cfg, handlers.New(a.db, s, watchStatus))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            cfg.Port,
		MetricsEnabled:  cfg.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	sig, serveErr := waitForSignal(ctx, errCh)
	if serveErr != nil {
		logging.Error("Server error: %v", serveErr)
	}
	startup.LogShutdownInitiated(sig)

	shutdown(cfg.ShutdownTimeoutDuration, srv, s, w, collector, cancel)
	return serveErr
}

// newServer builds the HTTP server: router, then metrics, logging and
// compression middleware.
func newServer(cfg *startup.Config, h *handlers.Handlers) (*http.Server, error) {
	router := h.Router(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}
	startup.LogHTTPRoutes(router, cfg.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = cfg.LogHealthChecks

	compress, err := middleware.Compression(middleware.DefaultCompressionConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to set up compression: %w", err)
	}

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           compress(middleware.Logger(loggingConfig)(router)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, nil
}

// shutdown stops components in dependency order: HTTP first so no new scans
// are triggered, then the watcher, then the scanner.
func shutdown(timeout time.Duration, srv *http.Server, s *scanner.Scanner, w *watcher.Watcher, collector *metrics.Collector, cancel context.CancelFunc) {
	ctx, done := context.WithTimeout(context.Background(), timeout)
	defer done()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if w != nil {
		startup.LogShutdownStep("Stopping watcher")
		if err := w.Stop(); err != nil {
			logging.Warn("Watcher stop: %v", err)
		} else {
			startup.LogShutdownStepComplete("Watcher stopped")
		}
	}

	startup.LogShutdownStep("Stopping scanner")
	cancel()
	s.Stop()
	startup.LogShutdownStepComplete("Scanner stopped")

	if collector != nil {
		collector.Stop()
	}

	startup.LogShutdownComplete()
}
