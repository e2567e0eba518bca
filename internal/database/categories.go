package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modelcat/internal/logging"
)

// GetOrCreateCategory returns the id of the category named name under
// parentID (0 for a root category), creating it if needed. Concurrent callers
// converge on the same row: the insert ignores uniqueness conflicts and the
// row is then read back.
func (d *Database) GetOrCreateCategory(ctx context.Context, tx *sql.Tx, name string, parentID int64) (int64, error) {
	done := observeQuery("get_or_create_category")

	name = strings.TrimSpace(name)
	if name == "" {
		err := errors.New("category name cannot be empty")
		done(err)
		return 0, err
	}

	q := d.q(tx)
	if _, err := q.ExecContext(ctx,
		"INSERT INTO categories (name, parent_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		name, nullID(parentID),
	); err != nil {
		err = fmt.Errorf("failed to create category %q: %w", name, err)
		done(err)
		return 0, err
	}

	var id int64
	err := q.QueryRowContext(ctx,
		"SELECT id FROM categories WHERE name = ? AND parent_id IS ?",
		name, nullID(parentID),
	).Scan(&id)
	if err != nil {
		err = fmt.Errorf("failed to read category %q: %w", name, err)
	}
	done(err)
	return id, err
}

// ClearModelCategories removes every category link of a model.
func (d *Database) ClearModelCategories(ctx context.Context, tx *sql.Tx, modelID int64) error {
	_, err := d.q(tx).ExecContext(ctx, "DELETE FROM model_categories WHERE model_id = ?", modelID)
	return err
}

// LinkModelCategory links a model to a category. Linking twice is a no-op.
func (d *Database) LinkModelCategory(ctx context.Context, tx *sql.Tx, modelID, categoryID int64) error {
	_, err := d.q(tx).ExecContext(ctx,
		"INSERT OR IGNORE INTO model_categories (model_id, category_id) VALUES (?, ?)",
		modelID, categoryID)
	return err
}

// GetModelCategories returns the categories linked to a model, roots first.
func (d *Database) GetModelCategories(ctx context.Context, tx *sql.Tx, modelID int64) ([]Category, error) {
	// A recursive walk from each linked category up to its root gives the depth
	// used for ordering.
	rows, err := d.q(tx).QueryContext(ctx, `
		WITH RECURSIVE ancestry(category_id, ancestor_id, depth) AS (
			SELECT c.id, c.parent_id, 0
			FROM categories c
			JOIN model_categories mc ON mc.category_id = c.id
			WHERE mc.model_id = ?
			UNION ALL
			SELECT a.category_id, p.parent_id, a.depth + 1
			FROM ancestry a
			JOIN categories p ON p.id = a.ancestor_id
		)
		SELECT c.id, c.name, c.parent_id, MAX(a.depth) AS depth
		FROM ancestry a
		JOIN categories c ON c.id = a.category_id
		GROUP BY c.id
		ORDER BY depth, c.name
	`, modelID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Error("error closing rows: %v", err)
		}
	}()

	var categories []Category
	for rows.Next() {
		var c Category
		var parent sql.NullInt64
		var depth int
		if err := rows.Scan(&c.ID, &c.Name, &parent, &depth); err != nil {
			return nil, err
		}
		c.ParentID = parent.Int64
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetModelCategoryNames returns the names of a model's categories, roots first.
func (d *Database) GetModelCategoryNames(ctx context.Context, tx *sql.Tx, modelID int64) ([]string, error) {
	categories, err := d.GetModelCategories(ctx, tx, modelID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	return names, nil
}

// CountCategories returns the number of categories.
func (d *Database) CountCategories(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&n)
	return n, err
}
