package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"modelcat/internal/archive"
	"modelcat/internal/logging"
	"modelcat/internal/modeltypes"
)

// Discovery is everything catalog-eligible found under one library root.
type Discovery struct {
	// Files are regular model files, sorted.
	Files []string
	// Archives maps each archive path to its eligible entry names, sorted.
	Archives map[string][]string
	// Unreadable maps archives that could not be listed to the failure.
	Unreadable map[string]error
}

// EntryCount returns the number of archive entries discovered.
func (d *Discovery) EntryCount() int {
	n := 0
	for _, entries := range d.Archives {
		n += len(entries)
	}
	return n
}

type walkJob struct {
	path    string
	archive bool
}

type walkResult struct {
	path    string
	archive bool
	entries []string
	err     error
}

// walker lists a library root with a pool of workers. The directory walk
// itself is sequential; workers expand archives, which is the slow part.
type walker struct {
	root       string
	numWorkers int

	jobs    chan walkJob
	results chan walkResult
	wg      sync.WaitGroup

	filesFound    atomic.Int64
	archivesFound atomic.Int64
}

func newWalker(root string, numWorkers int) *walker {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &walker{
		root:       root,
		numWorkers: numWorkers,
		jobs:       make(chan walkJob, 256),
		results:    make(chan walkResult, 256),
	}
}

// Walk discovers model files and archives under the root, skipping hidden
// files and directories. Unreadable paths are logged and skipped.
func (w *walker) Walk(ctx context.Context) (*Discovery, error) {
	start := time.Now()

	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.worker()
	}

	disc := &Discovery{Archives: make(map[string][]string), Unreadable: make(map[string]error)}
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for r := range w.results {
			switch {
			case r.err != nil:
				disc.Unreadable[r.path] = r.err
			case r.archive:
				disc.Archives[r.path] = r.entries
			default:
				disc.Files = append(disc.Files, r.path)
			}
		}
	}()

	err := w.enqueue(ctx)
	close(w.jobs)
	w.wg.Wait()
	close(w.results)
	<-collected

	sort.Strings(disc.Files)
	logging.Debug("Walked %s: %d files, %d archives (%d entries) in %v",
		w.root, w.filesFound.Load(), w.archivesFound.Load(), disc.EntryCount(), time.Since(start))

	if err != nil {
		return nil, err
	}
	return disc, ctx.Err()
}

func (w *walker) enqueue(ctx context.Context) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}
		if path == w.root {
			return nil
		}

		if modeltypes.IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		var job walkJob
		switch {
		case modeltypes.IsModelFile(path):
			job = walkJob{path: path}
		case modeltypes.IsArchiveFile(path):
			job = walkJob{path: path, archive: true}
		default:
			return nil
		}

		select {
		case w.jobs <- job:
		case <-ctx.Done():
			return fs.SkipAll
		}
		return nil
	})
}

func (w *walker) worker() {
	defer w.wg.Done()

	for job := range w.jobs {
		r := walkResult{path: job.path, archive: job.archive}
		if job.archive {
			r.entries, r.err = archive.ModelEntries(job.path)
			sort.Strings(r.entries)
			w.archivesFound.Add(1)
		} else {
			w.filesFound.Add(1)
		}
		w.results <- r
	}
}
