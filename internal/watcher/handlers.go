package watcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modelcat/internal/database"
	"modelcat/internal/logging"
	"modelcat/internal/modeltypes"
)

// handle reconciles the catalog with one debounced event. Every handler
// looks at the current disk and catalog state, so replaying an event is
// harmless.
func (w *Watcher) handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case Created:
		return w.handleCreated(ctx, ev.Path)
	case Modified:
		return w.handleModified(ctx, ev.Path)
	case Deleted:
		if ev.Dir {
			return w.handleDirDeleted(ctx, ev.Path)
		}
		return w.handleDeleted(ctx, ev.Path)
	case Moved:
		return w.handleMoved(ctx, ev.Path, ev.Dest)
	default:
		return fmt.Errorf("unknown event kind %v", ev.Kind)
	}
}

func (w *Watcher) lookup(ctx context.Context, tx *sql.Tx, path string) (*database.Model, error) {
	m, err := w.db.GetModelByPath(ctx, tx, path)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", path, err)
	}
	return m, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type inspection struct {
	hash string
	md   modeltypes.Metadata
}

func (w *Watcher) inspect(path string) (inspection, error) {
	md, err := w.extract(path)
	if err != nil {
		return inspection{}, fmt.Errorf("metadata: %w", err)
	}
	hash, err := w.hashFile(path)
	if err != nil {
		return inspection{}, fmt.Errorf("hash: %w", err)
	}
	return inspection{hash: hash, md: md}, nil
}

// handleCreated catalogues a new file. A row with the same content whose
// file has disappeared is taken over as a move, which covers renames the
// OS reported as unrelated events (such as directory renames).
func (w *Watcher) handleCreated(ctx context.Context, path string) error {
	m, err := w.lookup(ctx, nil, path)
	if err != nil {
		return err
	}
	if m != nil {
		if m.Status == database.StatusActive {
			logging.Debug("Already indexed: %s", path)
			return nil
		}
		// The file came back where it was
		return w.refresh(ctx, m.ID, path)
	}

	if !isFile(path) {
		logging.Debug("%s vanished before it could be catalogued", path)
		return nil
	}
	lib, ok := w.roots.resolve(path)
	if !ok {
		return nil
	}

	ins, err := w.inspect(path)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	var id int64
	var needThumb bool
	err = w.db.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := w.lookup(ctx, tx, path)
		if err != nil {
			return err
		}
		if existing != nil {
			// Catalogued by a scan while this file was being hashed
			return nil
		}

		claimed, err := w.claimable(ctx, tx, path, ins.hash)
		if err != nil {
			return err
		}
		if claimed != nil {
			from := claimed.FilePath
			claimed.FilePath = path
			claimed.Name = modeltypes.Stem(path)
			claimed.Metadata = ins.md
			claimed.Status = database.StatusActive
			claimed.LibraryID = lib.ID
			if err := w.db.UpdateModel(ctx, tx, claimed); err != nil {
				return err
			}
			if _, err := w.deriver.AssignForPath(ctx, tx, claimed.ID, lib.RootPath, path, "", ""); err != nil {
				return err
			}
			if err := w.db.UpdateSearchIndex(ctx, tx, claimed.ID); err != nil {
				return err
			}
			logging.Info("Recovered move %s -> %s (id %d)", from, path, claimed.ID)
			id, needThumb = claimed.ID, claimed.Thumbnail == ""
			return nil
		}

		row := &database.Model{
			Name:        modeltypes.Stem(path),
			FilePath:    path,
			ContentHash: ins.hash,
			Status:      database.StatusActive,
			LibraryID:   lib.ID,
			Metadata:    ins.md,
		}
		if err := w.db.InsertModel(ctx, tx, row); err != nil {
			return err
		}
		if _, err := w.deriver.AssignForPath(ctx, tx, row.ID, lib.RootPath, path, "", ""); err != nil {
			return err
		}
		if err := w.db.UpdateSearchIndex(ctx, tx, row.ID); err != nil {
			return err
		}
		logging.Info("Catalogued %s (id %d)", path, row.ID)
		id, needThumb = row.ID, true
		return nil
	})
	if err != nil {
		return err
	}

	if needThumb {
		w.thumbnail(ctx, id, path)
	}
	return nil
}

// claimable returns the oldest regular row with the given hash whose file
// no longer exists, or nil.
func (w *Watcher) claimable(ctx context.Context, tx *sql.Tx, path, hash string) (*database.Model, error) {
	if hash == "" {
		return nil, nil
	}
	candidates, err := w.db.FindByHash(ctx, tx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up hash: %w", err)
	}
	for _, c := range candidates {
		if c.IsArchiveEntry() || c.FilePath == path {
			continue
		}
		if !exists(c.FilePath) {
			return c, nil
		}
	}
	return nil, nil
}

// handleModified refreshes a tracked file in place or catalogues an
// untracked one.
func (w *Watcher) handleModified(ctx context.Context, path string) error {
	m, err := w.lookup(ctx, nil, path)
	if err != nil {
		return err
	}
	if m == nil {
		return w.handleCreated(ctx, path)
	}
	if !isFile(path) {
		logging.Debug("%s vanished before it could be refreshed", path)
		return nil
	}
	return w.refresh(ctx, m.ID, path)
}

// refresh rehashes the file of row id and reactivates the row. Categories
// are left alone since the path did not change.
func (w *Watcher) refresh(ctx context.Context, id int64, path string) error {
	ins, err := w.inspect(path)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	err = w.db.WithTx(ctx, func(tx *sql.Tx) error {
		m, err := w.db.GetModel(ctx, tx, id)
		if err != nil {
			return err
		}
		m.ContentHash = ins.hash
		m.Metadata = ins.md
		m.Status = database.StatusActive
		if err := w.db.UpdateModel(ctx, tx, m); err != nil {
			return err
		}
		return w.db.UpdateSearchIndex(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	logging.Debug("Refreshed %s (id %d)", path, id)
	w.thumbnail(ctx, id, path)
	return nil
}

// handleDeleted marks a tracked file missing. Tags, hash and thumbnail are
// kept so a later move or restore finds the row again.
func (w *Watcher) handleDeleted(ctx context.Context, path string) error {
	if isFile(path) {
		// Replaced before the event was handled, as editors do on save
		return w.handleModified(ctx, path)
	}

	m, err := w.lookup(ctx, nil, path)
	if err != nil {
		return err
	}
	if m == nil || m.Status == database.StatusMissing {
		return nil
	}

	err = w.db.WithTx(ctx, func(tx *sql.Tx) error {
		return w.markMissing(ctx, tx, m.ID)
	})
	if err != nil {
		return err
	}
	logging.Info("Missing: %s (id %d)", path, m.ID)
	return nil
}

func (w *Watcher) markMissing(ctx context.Context, tx *sql.Tx, id int64) error {
	if err := w.db.SetModelStatus(ctx, tx, id, database.StatusMissing); err != nil {
		return err
	}
	return w.db.RemoveFromSearchIndex(ctx, tx, id)
}

// handleDirDeleted marks every active row below dir missing whose file is
// gone, archive entries included.
func (w *Watcher) handleDirDeleted(ctx context.Context, dir string) error {
	rows, err := w.db.ListModels(ctx, database.StatusActive, dir+string(filepath.Separator), 0)
	if err != nil {
		return fmt.Errorf("failed to list models under %s: %w", dir, err)
	}

	var gone []*database.Model
	for _, m := range rows {
		onDisk := m.FilePath
		if m.IsArchiveEntry() {
			onDisk = m.ArchivePath
		}
		if within(dir, onDisk) && !exists(onDisk) {
			gone = append(gone, m)
		}
	}
	if len(gone) == 0 {
		return nil
	}

	err = w.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, m := range gone {
			if err := w.markMissing(ctx, tx, m.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logging.Info("Directory %s removed: %d models missing", dir, len(gone))
	return nil
}

// handleMoved follows a rename. The row keeps its id, hash, tags and
// thumbnail; only its location changes. A destination with different
// content is an unrelated file and gets its own row.
func (w *Watcher) handleMoved(ctx context.Context, src, dst string) error {
	if !eligible(dst) {
		return w.handleDeleted(ctx, src)
	}

	m, err := w.lookup(ctx, nil, src)
	if err != nil {
		return err
	}
	if m == nil {
		return w.handleCreated(ctx, dst)
	}

	target, err := w.lookup(ctx, nil, dst)
	if err != nil {
		return err
	}
	if target != nil {
		// Moved over a tracked file, which now has new content
		if err := w.handleDeleted(ctx, src); err != nil {
			return err
		}
		return w.handleModified(ctx, dst)
	}

	lib, ok := w.roots.resolve(dst)
	if !ok || !isFile(dst) {
		return w.handleDeleted(ctx, src)
	}

	// Rename halves are paired by timing only, so the content has to match
	hash, err := w.hashFile(dst)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", dst, err)
	}
	if hash != m.ContentHash {
		logging.Debug("%s does not match the content of %s, handling as delete and create", dst, src)
		if err := w.handleDeleted(ctx, src); err != nil {
			return err
		}
		return w.handleCreated(ctx, dst)
	}

	var needThumb bool
	err = w.db.WithTx(ctx, func(tx *sql.Tx) error {
		cur, err := w.db.GetModel(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		cur.FilePath = dst
		cur.Name = modeltypes.Stem(dst)
		cur.Status = database.StatusActive
		cur.LibraryID = lib.ID
		if err := w.db.UpdateModel(ctx, tx, cur); err != nil {
			return err
		}
		if _, err := w.deriver.AssignForPath(ctx, tx, cur.ID, lib.RootPath, dst, "", ""); err != nil {
			return err
		}
		needThumb = cur.Thumbnail == ""
		return w.db.UpdateSearchIndex(ctx, tx, cur.ID)
	})
	if err != nil {
		return err
	}

	logging.Info("Moved %s -> %s (id %d)", src, dst, m.ID)
	if needThumb {
		w.thumbnail(ctx, m.ID, dst)
	}
	return nil
}

// thumbnail renders and records the thumbnail of row id. Failures are
// logged only; the catalog change has already committed.
func (w *Watcher) thumbnail(ctx context.Context, id int64, path string) {
	if !w.thumbs.IsEnabled() {
		return
	}
	filename, err := w.thumbs.Generate(path, id, w.cfg.ThumbnailMode, w.cfg.ThumbnailQuality)
	if err != nil {
		logging.Warn("Thumbnail failed for %s: %v", path, err)
		return
	}
	if filename == "" {
		return
	}
	err = w.db.WithTx(ctx, func(tx *sql.Tx) error {
		return w.db.SetThumbnail(ctx, tx, id, filename)
	})
	if err != nil {
		logging.Warn("Failed to record thumbnail for %s: %v", path, err)
	}
}
