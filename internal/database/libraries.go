package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"modelcat/internal/logging"
)

// UpsertLibrary creates or updates the library called name so that it points
// at rootPath. The path is stored absolute and cleaned.
func (d *Database) UpsertLibrary(ctx context.Context, name, rootPath string) (*Library, error) {
	done := observeQuery("upsert_library")

	name = strings.TrimSpace(name)
	if name == "" {
		err := errors.New("library name cannot be empty")
		done(err)
		return nil, err
	}
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("invalid library path %q: %w", rootPath, err)
	}

	var lib *Library
	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		// A path registered under another name is renamed rather than duplicated
		if _, err := tx.ExecContext(ctx,
			"UPDATE libraries SET name = ?, updated_at = strftime('%s', 'now') WHERE root_path = ? AND name != ?",
			name, absRoot, name,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO libraries (name, root_path) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET
				root_path = excluded.root_path,
				updated_at = strftime('%s', 'now')
		`, name, absRoot); err != nil {
			return err
		}
		var err error
		lib, err = d.getLibrary(ctx, tx, "WHERE name = ?", name)
		return err
	})
	done(err)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert library %q: %w", name, err)
	}
	return lib, nil
}

// GetLibraryByName returns a library or ErrNotFound.
func (d *Database) GetLibraryByName(ctx context.Context, name string) (*Library, error) {
	return d.getLibrary(ctx, nil, "WHERE name = ?", name)
}

func (d *Database) getLibrary(ctx context.Context, tx *sql.Tx, where string, args ...any) (*Library, error) {
	var lib Library
	var createdAt int64
	err := d.q(tx).QueryRowContext(ctx,
		"SELECT id, name, root_path, created_at FROM libraries "+where, args...,
	).Scan(&lib.ID, &lib.Name, &lib.RootPath, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	lib.CreatedAt = time.Unix(createdAt, 0)
	return &lib, nil
}

// ListLibraries returns all libraries ordered by name.
func (d *Database) ListLibraries(ctx context.Context) ([]Library, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		"SELECT id, name, root_path, created_at FROM libraries ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Error("error closing rows: %v", err)
		}
	}()

	var libs []Library
	for rows.Next() {
		var lib Library
		var createdAt int64
		if err := rows.Scan(&lib.ID, &lib.Name, &lib.RootPath, &createdAt); err != nil {
			return nil, err
		}
		lib.CreatedAt = time.Unix(createdAt, 0)
		libs = append(libs, lib)
	}
	return libs, rows.Err()
}

// RemoveLibrary deletes a library. Its models remain with a NULL library.
func (d *Database) RemoveLibrary(ctx context.Context, name string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM libraries WHERE name = ?", name)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("library %q: %w", name, ErrNotFound)
		}
		return nil
	})
}
