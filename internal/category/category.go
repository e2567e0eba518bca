// Package category derives hierarchical categories from where a model lives.
//
// A file at <root>/Figures/Knights/knight.stl belongs to the chain
// Figures > Knights. An archive entry contributes the archive's directory,
// the archive's own stem and the entry's directories inside the archive:
// <root>/Packs/chess.zip::pieces/rook.stl gives Packs > chess > pieces.
package category

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"modelcat/internal/database"
	"modelcat/internal/modeltypes"
)

// Components returns the directory names between libraryRoot and filePath.
// Files directly in the root, or outside it, have no components.
func Components(libraryRoot, filePath string) []string {
	if libraryRoot == "" {
		return []string{}
	}
	rel, err := filepath.Rel(libraryRoot, filepath.Dir(filePath))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return []string{}
	}
	return splitNonEmpty(filepath.ToSlash(rel))
}

// ArchiveComponents returns the chain for an archive entry: the archive's
// directory relative to libraryRoot, the archive stem, then the entry's
// directories inside the archive.
func ArchiveComponents(libraryRoot, archivePath, entryName string) []string {
	components := Components(libraryRoot, archivePath)
	components = append(components, modeltypes.Stem(archivePath))

	if dir := path.Dir(strings.ReplaceAll(entryName, "\\", "/")); dir != "." && dir != "/" {
		components = append(components, splitNonEmpty(dir)...)
	}
	return components
}

func splitNonEmpty(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Store is the storage surface the Deriver needs.
type Store interface {
	GetOrCreateCategory(ctx context.Context, tx *sql.Tx, name string, parentID int64) (int64, error)
	ClearModelCategories(ctx context.Context, tx *sql.Tx, modelID int64) error
	LinkModelCategory(ctx context.Context, tx *sql.Tx, modelID, categoryID int64) error
}

var _ Store = (*database.Database)(nil)

// Deriver assigns category chains to catalog entries.
type Deriver struct {
	store Store
}

// NewDeriver creates a Deriver backed by store.
func NewDeriver(store Store) *Deriver {
	return &Deriver{store: store}
}

// Assign replaces the categories of modelID with the chain described by
// components and returns the chain's ids, root first. Existing links are
// always cleared first, so a relocated model never keeps its old categories.
func (d *Deriver) Assign(ctx context.Context, tx *sql.Tx, modelID int64, components []string) ([]int64, error) {
	if err := d.store.ClearModelCategories(ctx, tx, modelID); err != nil {
		return nil, fmt.Errorf("failed to clear categories of model %d: %w", modelID, err)
	}

	ids := make([]int64, 0, len(components))
	var parentID int64
	for _, name := range components {
		id, err := d.store.GetOrCreateCategory(ctx, tx, name, parentID)
		if err != nil {
			return nil, err
		}
		if err := d.store.LinkModelCategory(ctx, tx, modelID, id); err != nil {
			return nil, fmt.Errorf("failed to link model %d to category %d: %w", modelID, id, err)
		}
		ids = append(ids, id)
		parentID = id
	}
	return ids, nil
}

// AssignForPath derives the chain for a model from its location and assigns
// it. archivePath and entryName are empty for regular files.
func (d *Deriver) AssignForPath(ctx context.Context, tx *sql.Tx, modelID int64, libraryRoot, filePath, archivePath, entryName string) ([]int64, error) {
	var components []string
	if archivePath != "" {
		components = ArchiveComponents(libraryRoot, archivePath, entryName)
	} else {
		components = Components(libraryRoot, filePath)
	}
	return d.Assign(ctx, tx, modelID, components)
}
