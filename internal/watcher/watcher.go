package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"modelcat/internal/category"
	"modelcat/internal/database"
	"modelcat/internal/geometry"
	"modelcat/internal/hashing"
	"modelcat/internal/logging"
	"modelcat/internal/metrics"
	"modelcat/internal/modeltypes"
	"modelcat/internal/thumbnail"
)

// ErrStopTimeout is returned by Stop when the background goroutines do not
// exit in time.
var ErrStopTimeout = errors.New("watcher did not stop in time")

// Config tunes debouncing and the handoff queue.
type Config struct {
	DebounceWindow   time.Duration
	SweepInterval    time.Duration
	RenamePairWindow time.Duration
	QueueSize        int
	StopTimeout      time.Duration
	ThumbnailMode    thumbnail.Mode
	ThumbnailQuality thumbnail.Quality
}

// DefaultConfig returns the default watcher settings.
func DefaultConfig() Config {
	return Config{
		DebounceWindow:   2 * time.Second,
		SweepInterval:    500 * time.Millisecond,
		RenamePairWindow: 250 * time.Millisecond,
		QueueSize:        1024,
		StopTimeout:      5 * time.Second,
		ThumbnailMode:    thumbnail.ModeSolid,
		ThumbnailQuality: thumbnail.QualityMedium,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = d.DebounceWindow
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.RenamePairWindow <= 0 {
		c.RenamePairWindow = d.RenamePairWindow
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	if c.ThumbnailMode == "" {
		c.ThumbnailMode = d.ThumbnailMode
	}
	if c.ThumbnailQuality == "" {
		c.ThumbnailQuality = d.ThumbnailQuality
	}
}

// Status is a snapshot of the watcher for the ops API.
type Status struct {
	Running     bool     `json:"running"`
	Roots       []string `json:"roots"`
	WatchedDirs int      `json:"watchedDirs"`
	Pending     int      `json:"pending"`
	QueueDepth  int      `json:"queueDepth"`
}

// Watcher keeps the catalog in step with filesystem notifications. One
// fsnotify watcher serves every root. Raw notifications are debounced and
// handed through a bounded queue to a single reconciliation goroutine.
type Watcher struct {
	db      *database.Database
	deriver *category.Deriver
	thumbs  *thumbnail.Generator
	cfg     Config

	fs    *fsnotify.Watcher
	roots *rootSet
	deb   *debouncer
	queue chan Event

	extract  func(path string) (modeltypes.Metadata, error)
	hashFile func(path string) (string, error)

	dirsMu sync.Mutex
	dirs   map[string]bool

	runMu    sync.Mutex
	running  bool
	cancel   context.CancelFunc
	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New creates a Watcher. thumbs may be nil.
func New(db *database.Database, thumbs *thumbnail.Generator, cfg Config) (*Watcher, error) {
	cfg.applyDefaults()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.WithLabelValues("fsnotify").Inc()
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		db:       db,
		deriver:  category.NewDeriver(db),
		thumbs:   thumbs,
		cfg:      cfg,
		fs:       fw,
		roots:    newRootSet(),
		deb:      newDebouncer(cfg.DebounceWindow, cfg.RenamePairWindow),
		queue:    make(chan Event, cfg.QueueSize),
		extract:  geometry.Extract,
		hashFile: hashing.HashFile,
		dirs:     make(map[string]bool),
		stop:     make(chan struct{}),
	}, nil
}

// AddRoot starts watching a library root and every directory below it.
func (w *Watcher) AddRoot(lib database.Library) error {
	root := filepath.Clean(lib.RootPath)
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("failed to watch %s: not a directory", root)
	}

	w.roots.add(lib)
	n := w.addTree(root, false)
	logging.Info("Watching library %s (%s): %d directories", lib.Name, root, n)
	return nil
}

// RemoveRoot stops watching a library root. Directories that also belong
// to another watched root stay watched.
func (w *Watcher) RemoveRoot(root string) bool {
	lib, ok := w.roots.remove(root)
	if !ok {
		return false
	}
	root = filepath.Clean(lib.RootPath)

	w.dirsMu.Lock()
	for dir := range w.dirs {
		if !within(root, dir) {
			continue
		}
		if _, stillOwned := w.roots.resolve(dir); stillOwned {
			continue
		}
		if err := w.fs.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			logging.Debug("Failed to unwatch %s: %v", dir, err)
		}
		delete(w.dirs, dir)
	}
	n := len(w.dirs)
	w.dirsMu.Unlock()

	metrics.WatcherWatchedDirectories.Set(float64(n))
	logging.Info("Stopped watching library %s (%s)", lib.Name, root)
	return true
}

// addTree watches dir and its non-hidden subdirectories. When enqueue is
// set, eligible files found along the way are queued as Created.
func (w *Watcher) addTree(dir string, enqueue bool) int {
	added := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}
		if path != dir && modeltypes.IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if err := w.fs.Add(path); err != nil {
				logging.Warn("Failed to add path to watcher %s: %v", path, err)
				metrics.WatcherErrors.WithLabelValues("watch").Inc()
				return nil
			}
			w.dirsMu.Lock()
			if !w.dirs[path] {
				w.dirs[path] = true
				added++
			}
			w.dirsMu.Unlock()
			return nil
		}

		if enqueue && d.Type().IsRegular() && eligible(path) {
			w.deb.add(Event{Kind: Created, Path: path})
		}
		return nil
	})
	if err != nil {
		logging.Error("Failed to walk %s for watcher: %v", dir, err)
		metrics.WatcherErrors.WithLabelValues("watch").Inc()
	}

	w.dirsMu.Lock()
	metrics.WatcherWatchedDirectories.Set(float64(len(w.dirs)))
	w.dirsMu.Unlock()
	return added
}

// forgetDir drops dir and everything below it from the watched set and
// reports whether dir was watched.
func (w *Watcher) forgetDir(dir string) bool {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()

	if !w.dirs[dir] {
		return false
	}
	for d := range w.dirs {
		if within(dir, d) {
			// A renamed directory keeps its inotify watch under the old name
			if err := w.fs.Remove(d); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
				logging.Debug("Failed to unwatch %s: %v", d, err)
			}
			delete(w.dirs, d)
		}
	}
	metrics.WatcherWatchedDirectories.Set(float64(len(w.dirs)))
	return true
}

// Start launches the notification, sweep and reconciliation goroutines.
func (w *Watcher) Start(ctx context.Context) {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.running {
		return
	}
	w.running = true

	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(3)
	go w.notifyLoop()
	go w.sweepLoop()
	go w.consumeLoop(ctx)
	logging.Info("Watcher started: debounce %v, sweep %v, queue %d",
		w.cfg.DebounceWindow, w.cfg.SweepInterval, w.cfg.QueueSize)
}

// Stop closes the OS subscription and waits for the goroutines to exit,
// giving up after the configured timeout. Events still pending are dropped;
// the next scan reconciles them.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		w.runMu.Lock()
		if w.cancel != nil {
			w.cancel()
		}
		w.running = false
		w.runMu.Unlock()

		if cerr := w.fs.Close(); cerr != nil {
			err = fmt.Errorf("failed to close file watcher: %w", cerr)
		}

		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(w.cfg.StopTimeout):
			logging.Warn("Watcher goroutines still running after %v", w.cfg.StopTimeout)
			err = errors.Join(err, ErrStopTimeout)
		}

		if n := w.deb.size() + len(w.queue); n > 0 {
			logging.Info("Watcher stopped with %d unprocessed events", n)
		}
	})
	return err
}

// Status returns a snapshot of the watcher state.
func (w *Watcher) Status() Status {
	w.runMu.Lock()
	running := w.running
	w.runMu.Unlock()

	w.dirsMu.Lock()
	dirs := len(w.dirs)
	w.dirsMu.Unlock()

	return Status{
		Running:     running,
		Roots:       w.roots.list(),
		WatchedDirs: dirs,
		Pending:     w.deb.size(),
		QueueDepth:  len(w.queue),
	}
}

func (w *Watcher) notifyLoop() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.notify(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.WithLabelValues("fsnotify").Inc()
		case <-w.stop:
			return
		}
	}
}

// notify feeds one raw notification to the debouncer.
func (w *Watcher) notify(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	lib, ok := w.roots.resolve(path)
	if !ok || hiddenBelow(lib.RootPath, path) {
		return
	}
	metrics.WatcherRawEventsTotal.WithLabelValues(opName(ev.Op)).Inc()

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		isDir := err == nil && info.IsDir()
		w.deb.record(ev.Op, path, isDir)
		if isDir {
			n := w.addTree(path, true)
			logging.Debug("Added new directory to watcher: %s (%d directories)", path, n)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.deb.record(ev.Op, path, w.forgetDir(path))
		if path == filepath.Clean(lib.RootPath) {
			logging.Warn("Library root %s is gone, periodic scans take over", path)
			w.RemoveRoot(path)
		}
	default:
		w.deb.record(ev.Op, path, false)
	}
	metrics.WatcherPendingEvents.Set(float64(w.deb.size()))
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}

// sweepLoop promotes due events into the queue. A full queue leaves them
// pending for the next tick.
func (w *Watcher) sweepLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) sweep() int {
	n := w.deb.promote(func(ev Event) bool {
		select {
		case w.queue <- ev:
			return true
		default:
			return false
		}
	})
	metrics.WatcherPendingEvents.Set(float64(w.deb.size()))
	metrics.WatcherQueueDepth.Set(float64(len(w.queue)))
	return n
}

func (w *Watcher) consumeLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case ev := <-w.queue:
			metrics.WatcherQueueDepth.Set(float64(len(w.queue)))
			w.dispatch(ctx, ev)
		case <-w.stop:
			return
		}
	}
}

// dispatch runs the handler for ev. Failures are logged and counted.
func (w *Watcher) dispatch(ctx context.Context, ev Event) {
	start := time.Now()
	err := w.handle(ctx, ev)
	metrics.WatcherHandleDuration.WithLabelValues(ev.Kind.String()).Observe(time.Since(start).Seconds())
	metrics.WatcherEventsTotal.WithLabelValues(ev.Kind.String()).Inc()

	if err != nil {
		logging.Error("Watcher failed to handle %s: %v", ev, err)
		metrics.WatcherErrors.WithLabelValues("handler").Inc()
	}
}
