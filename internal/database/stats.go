package database

import (
	"context"

	"modelcat/internal/logging"
	"modelcat/internal/metrics"
)

// CatalogStats returns catalog totals for the metrics collector.
func (d *Database) CatalogStats(ctx context.Context) (metrics.Stats, error) {
	stats := metrics.Stats{ByFormat: make(map[string]int)}

	rows, err := d.db.QueryContext(ctx, `
		SELECT status, file_format, COUNT(*) FROM models GROUP BY status, file_format
	`)
	if err != nil {
		return stats, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Error("error closing rows: %v", err)
		}
	}()

	for rows.Next() {
		var status, format string
		var n int
		if err := rows.Scan(&status, &format, &n); err != nil {
			return stats, err
		}
		switch Status(status) {
		case StatusActive:
			stats.Active += n
			if format == "" {
				format = "unknown"
			}
			stats.ByFormat[format] += n
		case StatusMissing:
			stats.Missing += n
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if stats.Categories, err = d.CountCategories(ctx); err != nil {
		return stats, err
	}
	for query, dest := range map[string]*int{
		"SELECT COUNT(*) FROM tags":      &stats.Tags,
		"SELECT COUNT(*) FROM libraries": &stats.Libraries,
	} {
		if err := d.db.QueryRowContext(ctx, query).Scan(dest); err != nil {
			return stats, err
		}
	}

	d.UpdateDBMetrics()
	return stats, nil
}
