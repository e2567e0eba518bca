package scanner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"modelcat/internal/category"
	"modelcat/internal/database"
	"modelcat/internal/geometry"
	"modelcat/internal/hashing"
	"modelcat/internal/logging"
	"modelcat/internal/memory"
	"modelcat/internal/metrics"
	"modelcat/internal/modeltypes"
	"modelcat/internal/thumbnail"
)

// Scan sources recorded in scan history.
const (
	SourceManual    = "manual"
	SourceStartup   = "startup"
	SourceScheduled = "scheduled"
	SourceAPI       = "api"
)

// Stats are the outcome counts of one scan pass.
type Stats struct {
	TotalFiles       int `json:"totalFiles"`
	NewFiles         int `json:"newFiles"`
	MovedFiles       int `json:"movedFiles"`
	MissingFiles     int `json:"missingFiles"`
	ReactivatedFiles int `json:"reactivatedFiles"`
	Errors           int `json:"errors"`
}

func (s *Stats) add(o Stats) {
	s.TotalFiles += o.TotalFiles
	s.NewFiles += o.NewFiles
	s.MovedFiles += o.MovedFiles
	s.MissingFiles += o.MissingFiles
	s.ReactivatedFiles += o.ReactivatedFiles
	s.Errors += o.Errors
}

// Progress describes a scan in flight.
type Progress struct {
	IsScanning bool      `json:"isScanning"`
	FilesSeen  int64     `json:"filesSeen"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	Library    string    `json:"library,omitempty"`
}

// Options configures a Scanner.
type Options struct {
	// Workers bounds discovery and hashing concurrency (0 = automatic).
	Workers int
	// ThumbnailWorkers bounds thumbnail rendering concurrency (0 = automatic).
	ThumbnailWorkers int
	ThumbnailMode    thumbnail.Mode
	ThumbnailQuality thumbnail.Quality
}

// Scanner reconciles the catalog with the libraries on disk. At most one
// pass runs at a time.
type Scanner struct {
	db       *database.Database
	deriver  *category.Deriver
	thumbs   *thumbnail.Generator
	monitor  *memory.Monitor
	opts     Options
	extract  func(path string) (modeltypes.Metadata, error)
	hashFile func(path string) (string, error)

	mu            sync.Mutex
	isScanning    bool
	scanCompleted bool
	lastStats     Stats
	lastErr       error
	lastScanTime  time.Time

	filesSeen atomic.Int64
	progress  atomic.Value

	stopOnce sync.Once
	stopChan chan struct{}
	bg       sync.WaitGroup
}

// New creates a Scanner. thumbs and monitor may be nil.
func New(db *database.Database, thumbs *thumbnail.Generator, monitor *memory.Monitor, opts Options) *Scanner {
	if opts.ThumbnailMode == "" {
		opts.ThumbnailMode = thumbnail.ModeSolid
	}
	if opts.ThumbnailQuality == "" {
		opts.ThumbnailQuality = thumbnail.QualityMedium
	}

	s := &Scanner{
		db:       db,
		deriver:  category.NewDeriver(db),
		thumbs:   thumbs,
		monitor:  monitor,
		opts:     opts,
		extract:  geometry.Extract,
		hashFile: hashing.HashFile,
		stopChan: make(chan struct{}),
	}
	s.progress.Store(Progress{})
	return s
}

// Scan runs one reconciliation pass over every library. If a pass is
// already running it returns zero Stats and a nil error immediately.
func (s *Scanner) Scan(ctx context.Context) (Stats, error) {
	return s.ScanWithSource(ctx, SourceManual)
}

// ScanWithSource is Scan with the source recorded in scan history.
func (s *Scanner) ScanWithSource(ctx context.Context, source string) (Stats, error) {
	if !s.tryStart() {
		logging.Info("Scan already in progress, skipping...")
		metrics.ScannerSkippedRunsTotal.Inc()
		return Stats{}, nil
	}
	return s.runLocked(ctx, source)
}

// TriggerScan starts a pass in the background. It returns false without
// doing anything when a pass is already running.
func (s *Scanner) TriggerScan(source string) bool {
	if !s.tryStart() {
		metrics.ScannerSkippedRunsTotal.Inc()
		return false
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if _, err := s.runLocked(context.Background(), source); err != nil {
			logging.Error("Triggered scan failed: %v", err)
		}
	}()
	return true
}

// runLocked performs a pass; the caller must have won tryStart.
func (s *Scanner) runLocked(ctx context.Context, source string) (Stats, error) {
	start := time.Now()
	s.filesSeen.Store(0)
	s.progress.Store(Progress{IsScanning: true, StartedAt: start})

	metrics.ScannerRunning.Set(1)
	metrics.ScannerRunsTotal.Inc()

	stats, err := s.scan(ctx)

	duration := time.Since(start)
	metrics.ScannerRunning.Set(0)
	metrics.ScannerLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.ScannerLastRunDuration.Set(duration.Seconds())

	s.finish(stats, err)

	if err != nil {
		metrics.ScannerErrors.Inc()
		logging.Error("Scan failed after %v: %v", duration, err)
		return Stats{}, err
	}

	recordOutcomes(stats)
	logging.Info("Scan complete in %v: %d files, %d new, %d moved, %d missing, %d reactivated, %d errors",
		duration, stats.TotalFiles, stats.NewFiles, stats.MovedFiles, stats.MissingFiles, stats.ReactivatedFiles, stats.Errors)

	run := &database.ScanRun{
		Source:           source,
		StartedAt:        start,
		FinishedAt:       time.Now(),
		TotalFiles:       stats.TotalFiles,
		NewFiles:         stats.NewFiles,
		MovedFiles:       stats.MovedFiles,
		MissingFiles:     stats.MissingFiles,
		ReactivatedFiles: stats.ReactivatedFiles,
		Errors:           stats.Errors,
	}
	if err := s.db.RecordScanRun(ctx, run); err != nil {
		logging.Warn("Failed to record scan run: %v", err)
	}

	return stats, nil
}

func recordOutcomes(stats Stats) {
	metrics.ScannerFilesTotal.WithLabelValues("new").Add(float64(stats.NewFiles))
	metrics.ScannerFilesTotal.WithLabelValues("moved").Add(float64(stats.MovedFiles))
	metrics.ScannerFilesTotal.WithLabelValues("missing").Add(float64(stats.MissingFiles))
	metrics.ScannerFilesTotal.WithLabelValues("reactivated").Add(float64(stats.ReactivatedFiles))
	if stats.Errors > 0 {
		metrics.ScannerErrors.Add(float64(stats.Errors))
	}
}

// scan discovers and prepares every library outside the write lock, then
// applies all of them in one transaction. Thumbnails follow the commit.
func (s *Scanner) scan(ctx context.Context) (Stats, error) {
	libs, err := s.db.ListLibraries(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list libraries: %w", err)
	}
	if len(libs) == 0 {
		logging.Warn("No libraries configured, nothing to scan")
		return Stats{}, nil
	}

	var plans []*libraryPlan
	for _, lib := range libs {
		plan, err := s.prepare(ctx, lib)
		if err != nil {
			return Stats{}, err
		}
		if plan != nil {
			plans = append(plans, plan)
		}
	}

	var total Stats
	var thumbJobs []thumbJob
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, plan := range plans {
			s.setLibrary(plan.lib.Name)
			stats, jobs, err := s.apply(ctx, tx, plan)
			if err != nil {
				return fmt.Errorf("library %s: %w", plan.lib.Name, err)
			}
			total.add(stats)
			thumbJobs = append(thumbJobs, jobs...)
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	s.generateThumbnails(ctx, thumbJobs)
	return total, nil
}

func (s *Scanner) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isScanning {
		return false
	}
	s.isScanning = true
	return true
}

func (s *Scanner) finish(stats Stats, err error) {
	s.mu.Lock()
	s.isScanning = false
	s.scanCompleted = true
	s.lastErr = err
	if err == nil {
		s.lastStats = stats
		s.lastScanTime = time.Now()
	}
	s.mu.Unlock()

	s.progress.Store(Progress{FilesSeen: s.filesSeen.Load()})
}

func (s *Scanner) setLibrary(name string) {
	p := s.Progress()
	p.Library = name
	s.progress.Store(p)
}

// Progress returns the state of the current pass.
func (s *Scanner) Progress() Progress {
	p, _ := s.progress.Load().(Progress)
	p.FilesSeen = s.filesSeen.Load()
	return p
}

// IsScanning reports whether a pass is running.
func (s *Scanner) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isScanning
}

// IsReady reports whether at least one pass has finished, successfully or not.
func (s *Scanner) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanCompleted
}

// LastStats returns the stats and completion time of the last successful
// pass, and the error of the last pass if it failed.
func (s *Scanner) LastStats() (Stats, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStats, s.lastScanTime, s.lastErr
}

// Start runs an initial pass when scanNow is set and then one pass every
// interval (no periodic passes when interval is 0) until Stop or ctx ends.
func (s *Scanner) Start(ctx context.Context, interval time.Duration, scanNow bool) {
	s.monitor.Start()

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()

		if scanNow {
			logging.Info("Starting initial scan in background...")
			if _, err := s.ScanWithSource(ctx, SourceStartup); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error("Initial scan error: %v", err)
			}
		}
		if interval <= 0 {
			return
		}

		logging.Info("Periodic scan every %v", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logging.Debug("Periodic scan triggered")
				if _, err := s.ScanWithSource(ctx, SourceScheduled); err != nil {
					logging.Error("Periodic scan failed: %v", err)
				}
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends periodic scanning and waits for background passes to finish.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.monitor.Stop()
	s.bg.Wait()
}
