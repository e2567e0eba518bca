package scanner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"modelcat/internal/archive"
	"modelcat/internal/database"
	"modelcat/internal/filesystem"
	"modelcat/internal/logging"
	"modelcat/internal/metrics"
	"modelcat/internal/modeltypes"
	"modelcat/internal/workers"
)

// inspection is the hash and metadata of one file or archive entry.
type inspection struct {
	hash string
	md   modeltypes.Metadata
	err  error
}

// entryRef is one discovered archive entry.
type entryRef struct {
	archivePath string
	entryName   string
	synthetic   string
}

// libraryPlan is the discovery result for one library plus inspections of
// everything that was not yet catalogued when the pass started.
type libraryPlan struct {
	lib       database.Library
	disc      *Discovery
	entries   []entryRef
	inspected map[string]inspection
}

// prepare walks the library and inspects unknown paths in parallel, without
// holding the write lock. It returns nil when the library root is absent.
func (s *Scanner) prepare(ctx context.Context, lib database.Library) (*libraryPlan, error) {
	info, err := filesystem.StatWithRetry(lib.RootPath, filesystem.DefaultRetryConfig())
	if err != nil || !info.IsDir() {
		logging.Warn("Library %s: root %s is not accessible, skipping (%v)", lib.Name, lib.RootPath, err)
		return nil, nil
	}

	s.setLibrary(lib.Name)
	n := workers.For(workers.TaskScan, s.opts.Workers)

	disc, err := newWalker(lib.RootPath, n).Walk(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to walk library %s: %w", lib.Name, err)
	}

	plan := &libraryPlan{lib: lib, disc: disc, inspected: make(map[string]inspection)}
	for archivePath, names := range disc.Archives {
		for _, name := range names {
			plan.entries = append(plan.entries, entryRef{
				archivePath: archivePath,
				entryName:   name,
				synthetic:   archive.SyntheticPath(archivePath, name),
			})
		}
	}
	sortEntries(plan.entries)

	known, err := s.knownPaths(ctx)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, p := range disc.Files {
		if !known[p] {
			files = append(files, p)
		}
	}
	var entries []entryRef
	for _, e := range plan.entries {
		if !known[e.synthetic] {
			entries = append(entries, e)
		}
	}

	var mu sync.Mutex
	record := func(key string, ins inspection) {
		mu.Lock()
		plan.inspected[key] = ins
		mu.Unlock()
	}

	workers.ForEach(ctx, n, files, func(p string) {
		if s.monitor.Wait(ctx) != nil {
			return
		}
		record(p, s.inspectFile(p))
	})
	workers.ForEach(ctx, n, entries, func(e entryRef) {
		if s.monitor.Wait(ctx) != nil {
			return
		}
		record(e.synthetic, s.inspectEntry(e))
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logging.Debug("Library %s: %d files, %d archive entries, %d to inspect",
		lib.Name, len(disc.Files), len(plan.entries), len(files)+len(entries))
	return plan, nil
}

// knownPaths returns every catalogued path, so prepare only inspects files
// that may need a new row or a move.
func (s *Scanner) knownPaths(ctx context.Context) (map[string]bool, error) {
	regular, err := s.db.ListRegularModels(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	archived, err := s.db.ListArchiveModels(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	known := make(map[string]bool, len(regular)+len(archived))
	for _, m := range regular {
		known[m.FilePath] = true
	}
	for _, m := range archived {
		known[m.FilePath] = true
	}
	return known, nil
}

func (s *Scanner) inspectFile(path string) inspection {
	md, err := s.extract(path)
	if err != nil {
		return inspection{err: fmt.Errorf("metadata: %w", err)}
	}
	hash, err := s.hashFile(path)
	if err != nil {
		return inspection{err: fmt.Errorf("hash: %w", err)}
	}
	return inspection{hash: hash, md: md}
}

func (s *Scanner) inspectEntry(e entryRef) inspection {
	tmp, err := archive.ExtractToTemp(e.archivePath, e.entryName)
	if err != nil {
		return inspection{err: err}
	}
	defer func() {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to remove temp file %s: %v", tmp, err)
		}
	}()
	return s.inspectFile(tmp)
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortEntries(entries []entryRef) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].synthetic < entries[j].synthetic })
}

// thumbJob is a row that needs a thumbnail once the pass has committed.
type thumbJob struct {
	id    int64
	path  string
	entry *entryRef
}

// apply reconciles one library inside the pass transaction.
func (s *Scanner) apply(ctx context.Context, tx *sql.Tx, plan *libraryPlan) (Stats, []thumbJob, error) {
	var stats Stats
	var jobs []thumbJob

	regular, regJobs, err := s.applyRegular(ctx, tx, plan)
	if err != nil {
		return stats, nil, err
	}
	stats.add(regular)
	jobs = append(jobs, regJobs...)

	archived, arcJobs, err := s.applyArchive(ctx, tx, plan)
	if err != nil {
		return stats, nil, err
	}
	stats.add(archived)
	jobs = append(jobs, arcJobs...)

	logging.Info("Library %s: %d files, %d new, %d moved, %d missing, %d reactivated, %d errors",
		plan.lib.Name, stats.TotalFiles, stats.NewFiles, stats.MovedFiles, stats.MissingFiles, stats.ReactivatedFiles, stats.Errors)
	return stats, jobs, nil
}

// inspection returns the prepared inspection for key, inspecting now when
// the path was catalogued at prepare time but is no longer.
func (plan *libraryPlan) inspection(key string, inspect func() inspection) inspection {
	if ins, ok := plan.inspected[key]; ok {
		return ins
	}
	return inspect()
}

// applyRegular reconciles the library's regular files. Rows whose path
// vanished are orphans; a new file whose hash matches an orphan claims it as
// a move, oldest orphan first. Unclaimed orphans become missing.
func (s *Scanner) applyRegular(ctx context.Context, tx *sql.Tx, plan *libraryPlan) (Stats, []thumbJob, error) {
	stats := Stats{TotalFiles: len(plan.disc.Files)}
	var jobs []thumbJob

	rows, err := s.db.ListLibraryModels(ctx, tx, plan.lib.ID, false)
	if err != nil {
		return stats, nil, fmt.Errorf("failed to load models: %w", err)
	}

	onDisk := make(map[string]bool, len(plan.disc.Files))
	for _, p := range plan.disc.Files {
		onDisk[p] = true
	}

	indexed := make(map[string]bool, len(rows))
	orphanIndex := make(map[string][]*database.Model)
	var orphans []*database.Model
	for _, m := range rows {
		indexed[m.FilePath] = true
		if onDisk[m.FilePath] {
			if m.Status == database.StatusMissing {
				if err := s.db.SetModelStatus(ctx, tx, m.ID, database.StatusActive); err != nil {
					logging.Warn("Failed to reactivate %s: %v", m.FilePath, err)
					stats.Errors++
					continue
				}
				if err := s.db.UpdateSearchIndex(ctx, tx, m.ID); err != nil {
					logging.Warn("Failed to index %s: %v", m.FilePath, err)
				}
				logging.Debug("Reactivated %s", m.FilePath)
				stats.ReactivatedFiles++
			}
			continue
		}
		orphans = append(orphans, m)
		if m.ContentHash != "" {
			orphanIndex[m.ContentHash] = append(orphanIndex[m.ContentHash], m)
		}
	}

	moved := make(map[int64]bool)
	for _, path := range plan.disc.Files {
		if err := s.monitor.Wait(ctx); err != nil {
			return stats, nil, err
		}
		s.filesSeen.Add(1)
		metrics.ScannerFilesSeen.Inc()

		if indexed[path] {
			continue
		}
		// Another library may own the path when roots overlap
		if _, err := s.db.GetModelByPath(ctx, tx, path); err == nil {
			continue
		}

		ins := plan.inspection(path, func() inspection { return s.inspectFile(path) })
		if ins.err != nil {
			logging.Warn("Failed to inspect %s: %v", path, ins.err)
			stats.Errors++
			continue
		}

		if queue := orphanIndex[ins.hash]; len(queue) > 0 {
			m := queue[0]
			orphanIndex[ins.hash] = queue[1:]
			if err := s.applyMove(ctx, tx, plan.lib, m, path, ins); err != nil {
				logging.Warn("Failed to move %s to %s: %v", m.FilePath, path, err)
				stats.Errors++
				continue
			}
			moved[m.ID] = true
			stats.MovedFiles++
			if m.Thumbnail == "" {
				jobs = append(jobs, thumbJob{id: m.ID, path: path})
			}
			continue
		}

		m, err := s.insert(ctx, tx, plan.lib, path, nil, ins)
		if err != nil {
			logging.Warn("Failed to catalog %s: %v", path, err)
			stats.Errors++
			continue
		}
		stats.NewFiles++
		jobs = append(jobs, thumbJob{id: m.ID, path: path})
	}

	// Orphans not claimed by a move, hashed or not, are missing
	for _, m := range orphans {
		if moved[m.ID] || m.Status == database.StatusMissing {
			continue
		}
		if err := s.markMissing(ctx, tx, m); err != nil {
			logging.Warn("Failed to mark %s missing: %v", m.FilePath, err)
			stats.Errors++
			continue
		}
		stats.MissingFiles++
	}

	return stats, jobs, nil
}

// applyMove points orphan m at path. m is only updated once the move has
// been written; a failed move leaves the database and m untouched.
func (s *Scanner) applyMove(ctx context.Context, tx *sql.Tx, lib database.Library, m *database.Model, path string, ins inspection) error {
	moved := *m
	moved.FilePath = path
	moved.Name = modeltypes.Stem(path)
	moved.Metadata = ins.md
	moved.Status = database.StatusActive
	moved.LibraryID = lib.ID

	err := s.db.Savepoint(ctx, tx, func() error {
		if err := s.db.UpdateModel(ctx, tx, &moved); err != nil {
			return err
		}
		if _, err := s.deriver.AssignForPath(ctx, tx, moved.ID, lib.RootPath, path, "", ""); err != nil {
			return err
		}
		return s.db.UpdateSearchIndex(ctx, tx, moved.ID)
	})
	if err != nil {
		return err
	}
	logging.Debug("Moved %s -> %s (id %d)", m.FilePath, path, m.ID)
	*m = moved
	return nil
}

// insert catalogues a new file or archive entry. A failure part way leaves
// no row behind.
func (s *Scanner) insert(ctx context.Context, tx *sql.Tx, lib database.Library, path string, entry *entryRef, ins inspection) (*database.Model, error) {
	m := &database.Model{
		Name:        modeltypes.Stem(path),
		FilePath:    path,
		ContentHash: ins.hash,
		Status:      database.StatusActive,
		LibraryID:   lib.ID,
		Metadata:    ins.md,
	}
	if entry != nil {
		m.Name = modeltypes.Stem(entry.entryName)
		m.FilePath = entry.synthetic
		m.ArchivePath = entry.archivePath
		m.ArchiveEntry = entry.entryName
	}

	err := s.db.Savepoint(ctx, tx, func() error {
		if err := s.db.InsertModel(ctx, tx, m); err != nil {
			return err
		}
		if _, err := s.deriver.AssignForPath(ctx, tx, m.ID, lib.RootPath, m.FilePath, m.ArchivePath, m.ArchiveEntry); err != nil {
			return err
		}
		return s.db.UpdateSearchIndex(ctx, tx, m.ID)
	})
	if err != nil {
		return nil, err
	}
	logging.Debug("Catalogued %s (id %d)", m.FilePath, m.ID)
	return m, nil
}

func (s *Scanner) markMissing(ctx context.Context, tx *sql.Tx, m *database.Model) error {
	err := s.db.Savepoint(ctx, tx, func() error {
		if err := s.db.SetModelStatus(ctx, tx, m.ID, database.StatusMissing); err != nil {
			return err
		}
		return s.db.UpdateSearchIndex(ctx, tx, m.ID)
	})
	if err != nil {
		return err
	}
	logging.Debug("Missing: %s", m.FilePath)
	return nil
}

// applyArchive reconciles the library's archive entries. Entries are matched
// by synthetic path only; they never take part in move detection. Rows of an
// archive that could not be listed are left as they are and the archive
// counts as an error.
func (s *Scanner) applyArchive(ctx context.Context, tx *sql.Tx, plan *libraryPlan) (Stats, []thumbJob, error) {
	stats := Stats{TotalFiles: len(plan.entries)}
	var jobs []thumbJob

	rows, err := s.db.ListLibraryModels(ctx, tx, plan.lib.ID, true)
	if err != nil {
		return stats, nil, fmt.Errorf("failed to load archive entries: %w", err)
	}

	found := make(map[string]bool, len(plan.entries))
	for _, e := range plan.entries {
		found[e.synthetic] = true
	}

	for _, archivePath := range sortedKeys(plan.disc.Unreadable) {
		logging.Warn("Failed to list archive %s: %v", archivePath, plan.disc.Unreadable[archivePath])
		stats.Errors++
	}

	indexed := make(map[string]bool, len(rows))
	for _, m := range rows {
		indexed[m.FilePath] = true
		if _, failed := plan.disc.Unreadable[m.ArchivePath]; failed {
			continue
		}
		switch {
		case found[m.FilePath] && m.Status == database.StatusMissing:
			if err := s.db.SetModelStatus(ctx, tx, m.ID, database.StatusActive); err != nil {
				logging.Warn("Failed to reactivate %s: %v", m.FilePath, err)
				stats.Errors++
				continue
			}
			if err := s.db.UpdateSearchIndex(ctx, tx, m.ID); err != nil {
				logging.Warn("Failed to index %s: %v", m.FilePath, err)
			}
			stats.ReactivatedFiles++
		case !found[m.FilePath] && m.Status == database.StatusActive:
			if err := s.markMissing(ctx, tx, m); err != nil {
				logging.Warn("Failed to mark %s missing: %v", m.FilePath, err)
				stats.Errors++
				continue
			}
			stats.MissingFiles++
		}
	}

	for i := range plan.entries {
		e := plan.entries[i]
		if err := s.monitor.Wait(ctx); err != nil {
			return stats, nil, err
		}
		s.filesSeen.Add(1)
		metrics.ScannerFilesSeen.Inc()

		if indexed[e.synthetic] {
			continue
		}
		if _, err := s.db.GetModelByPath(ctx, tx, e.synthetic); err == nil {
			continue
		}

		ins := plan.inspection(e.synthetic, func() inspection { return s.inspectEntry(e) })
		if ins.err != nil {
			logging.Warn("Failed to inspect %s: %v", e.synthetic, ins.err)
			stats.Errors++
			continue
		}

		m, err := s.insert(ctx, tx, plan.lib, e.synthetic, &e, ins)
		if err != nil {
			logging.Warn("Failed to catalog %s: %v", e.synthetic, err)
			stats.Errors++
			continue
		}
		stats.NewFiles++
		jobs = append(jobs, thumbJob{id: m.ID, path: e.synthetic, entry: &e})
	}

	return stats, jobs, nil
}

// generateThumbnails renders thumbnails for rows created or moved by the
// pass. Failures are logged; the catalog is already committed.
func (s *Scanner) generateThumbnails(ctx context.Context, jobs []thumbJob) {
	if !s.thumbs.IsEnabled() || len(jobs) == 0 {
		return
	}

	n := workers.For(workers.TaskThumbnail, s.opts.ThumbnailWorkers)
	logging.Debug("Generating %d thumbnails with %d workers", len(jobs), n)

	workers.ForEach(ctx, n, jobs, func(job thumbJob) {
		filename, err := s.renderThumbnail(job)
		if err != nil {
			logging.Warn("Thumbnail failed for %s: %v", job.path, err)
			return
		}
		if filename == "" {
			return
		}
		err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
			return s.db.SetThumbnail(ctx, tx, job.id, filename)
		})
		if err != nil {
			logging.Warn("Failed to record thumbnail for %s: %v", job.path, err)
		}
	})
}

func (s *Scanner) renderThumbnail(job thumbJob) (string, error) {
	path := job.path
	if job.entry != nil {
		tmp, err := archive.ExtractToTemp(job.entry.archivePath, job.entry.entryName)
		if err != nil {
			return "", err
		}
		defer func() {
			if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
				logging.Warn("Failed to remove temp file %s: %v", tmp, err)
			}
		}()
		path = tmp
	}
	return s.thumbs.Generate(path, job.id, s.opts.ThumbnailMode, s.opts.ThumbnailQuality)
}
