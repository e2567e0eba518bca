package database

import (
	"context"
	"database/sql"
	"time"
)

// PurgeMissing hard-deletes rows that have been missing for at least olderThan,
// together with their search entries, tag links and category links. It returns
// the purged rows so the caller can remove their thumbnail files.
func (d *Database) PurgeMissing(ctx context.Context, olderThan time.Duration) ([]PurgedModel, error) {
	done := observeQuery("purge_missing")

	cutoff := time.Now().Add(-olderThan).Unix()
	var purged []PurgedModel

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, file_path, COALESCE(thumbnail, '')
			FROM models
			WHERE status = 'missing' AND COALESCE(missing_since, updated_at) <= ?
			ORDER BY id
		`, cutoff)
		if err != nil {
			return err
		}
		for rows.Next() {
			var p PurgedModel
			if err := rows.Scan(&p.ID, &p.FilePath, &p.Thumbnail); err != nil {
				rows.Close()
				return err
			}
			purged = append(purged, p)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, p := range purged {
			if _, err := tx.ExecContext(ctx, "DELETE FROM models_fts WHERE docid = ?", p.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM models WHERE id = ?", p.ID); err != nil {
				return err
			}
		}

		// Categories left without models or children are dropped, deepest first
		for {
			result, err := tx.ExecContext(ctx, `
				DELETE FROM categories
				WHERE id NOT IN (SELECT category_id FROM model_categories)
				  AND id NOT IN (SELECT parent_id FROM categories WHERE parent_id IS NOT NULL)
			`)
			if err != nil {
				return err
			}
			if n, _ := result.RowsAffected(); n == 0 {
				return nil
			}
		}
	})
	done(err)
	if err != nil {
		return nil, err
	}
	return purged, nil
}
