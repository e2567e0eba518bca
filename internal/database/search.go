package database

import (
	"context"
	"database/sql"
	"strings"
)

// UpdateSearchIndex refreshes the full-text entry of one model. Active rows
// are (re)indexed; missing or deleted rows are removed from the index.
func (d *Database) UpdateSearchIndex(ctx context.Context, tx *sql.Tx, id int64) error {
	done := observeQuery("update_search_index")

	q := d.q(tx)
	if _, err := q.ExecContext(ctx, "DELETE FROM models_fts WHERE docid = ?", id); err != nil {
		done(err)
		return err
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO models_fts (docid, name, file_path)
		SELECT id, name, file_path FROM models WHERE id = ? AND status = 'active'
	`, id)
	done(err)
	return err
}

// RemoveFromSearchIndex drops the full-text entry of one model.
func (d *Database) RemoveFromSearchIndex(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := d.q(tx).ExecContext(ctx, "DELETE FROM models_fts WHERE docid = ?", id)
	return err
}

// RebuildSearchIndex replaces the whole full-text index from the models table.
func (d *Database) RebuildSearchIndex(ctx context.Context) error {
	done := observeQuery("rebuild_search_index")
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM models_fts"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO models_fts (docid, name, file_path)
			SELECT id, name, file_path FROM models WHERE status = 'active'
		`)
		return err
	})
	done(err)
	return err
}

// Search returns active models matching every word of query as a prefix
// in their name or path.
func (d *Database) Search(ctx context.Context, query string, limit int) ([]*Model, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	return d.queryModels(ctx, nil, "search", `
		WHERE id IN (SELECT docid FROM models_fts WHERE models_fts MATCH ?)
		ORDER BY name COLLATE NOCASE
		LIMIT ?
	`, match, limit)
}

// buildMatchQuery turns free text into an FTS4 MATCH expression of quoted
// prefix terms. FTS operators in the input are neutralized.
func buildMatchQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !(r == '_' || r == '-' || isWordRune(r))
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-_")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, "")+`*"`)
	}
	return strings.Join(terms, " ")
}

func isWordRune(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 127
}
