package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modelcat/internal/logging"
)

// GetOrCreateTag gets an existing tag or creates a new one. Names are
// case-insensitive.
func (d *Database) GetOrCreateTag(ctx context.Context, tx *sql.Tx, name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("tag name cannot be empty")
	}

	q := d.q(tx)

	var tag Tag
	var createdAt int64
	var color sql.NullString

	err := q.QueryRowContext(ctx,
		"SELECT id, name, color, created_at FROM tags WHERE name = ? COLLATE NOCASE",
		name,
	).Scan(&tag.ID, &tag.Name, &color, &createdAt)

	if err == nil {
		tag.CreatedAt = time.Unix(createdAt, 0)
		tag.Color = color.String
		return &tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	result, err := q.ExecContext(ctx, "INSERT INTO tags (name) VALUES (?)", name)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}

	tag.ID, _ = result.LastInsertId()
	tag.Name = name
	tag.CreatedAt = time.Now()

	return &tag, nil
}

// AddTagToModel tags a model, creating the tag if needed.
func (d *Database) AddTagToModel(ctx context.Context, modelID int64, tagName string) error {
	done := observeQuery("add_tag_to_model")

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		tag, err := d.GetOrCreateTag(ctx, tx, tagName)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO model_tags (model_id, tag_id) VALUES (?, ?)",
			modelID, tag.ID)
		return err
	})
	done(err)
	return err
}

// RemoveTagFromModel removes a tag from a model.
func (d *Database) RemoveTagFromModel(ctx context.Context, modelID int64, tagName string) error {
	done := observeQuery("remove_tag_from_model")

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM model_tags
			WHERE model_id = ? AND tag_id = (SELECT id FROM tags WHERE name = ? COLLATE NOCASE)
		`, modelID, strings.TrimSpace(tagName))
		return err
	})
	done(err)
	return err
}

// GetModelTags returns all tag names for a model, sorted case-insensitively.
func (d *Database) GetModelTags(ctx context.Context, modelID int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT t.name
		FROM tags t
		INNER JOIN model_tags mt ON t.id = mt.tag_id
		WHERE mt.model_id = ?
		ORDER BY t.name COLLATE NOCASE
	`, modelID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Error("error closing rows: %v", err)
		}
	}()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// SetModelTags replaces all tags for a model.
func (d *Database) SetModelTags(ctx context.Context, modelID int64, tagNames []string) error {
	done := observeQuery("set_model_tags")

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM model_tags WHERE model_id = ?", modelID); err != nil {
			return err
		}
		for _, name := range tagNames {
			if strings.TrimSpace(name) == "" {
				continue
			}
			tag, err := d.GetOrCreateTag(ctx, tx, name)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO model_tags (model_id, tag_id) VALUES (?, ?)",
				modelID, tag.ID,
			); err != nil {
				return err
			}
		}
		return nil
	})
	done(err)
	return err
}

// GetAllTags returns all tags with their model counts.
func (d *Database) GetAllTags(ctx context.Context) ([]Tag, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.color, t.created_at, COUNT(mt.model_id)
		FROM tags t
		LEFT JOIN model_tags mt ON t.id = mt.tag_id
		GROUP BY t.id
		ORDER BY t.name COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Error("error closing rows: %v", err)
		}
	}()

	var tags []Tag
	for rows.Next() {
		var tag Tag
		var color sql.NullString
		var createdAt int64
		if err := rows.Scan(&tag.ID, &tag.Name, &color, &createdAt, &tag.ItemCount); err != nil {
			return nil, err
		}
		tag.Color = color.String
		tag.CreatedAt = time.Unix(createdAt, 0)
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
