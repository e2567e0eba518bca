package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"modelcat/internal/logging"
)

// RecordScanRun stores the outcome of a scan pass, assigning an id when empty.
func (d *Database) RecordScanRun(ctx context.Context, run *ScanRun) error {
	done := observeQuery("record_scan_run")

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Source == "" {
		run.Source = "manual"
	}

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scan_runs (id, source, started_at, finished_at, total_files, new_files,
				moved_files, missing_files, reactivated_files, errors)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, run.Source, run.StartedAt.Unix(), run.FinishedAt.Unix(), run.TotalFiles, run.NewFiles,
			run.MovedFiles, run.MissingFiles, run.ReactivatedFiles, run.Errors)
		return err
	})
	done(err)
	return err
}

// ListScanRuns returns the most recent scan runs, newest first.
func (d *Database) ListScanRuns(ctx context.Context, limit int) ([]ScanRun, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, source, started_at, finished_at, total_files, new_files,
			moved_files, missing_files, reactivated_files, errors
		FROM scan_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Error("error closing rows: %v", err)
		}
	}()

	var runs []ScanRun
	for rows.Next() {
		var r ScanRun
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Source, &started, &finished, &r.TotalFiles, &r.NewFiles,
			&r.MovedFiles, &r.MissingFiles, &r.ReactivatedFiles, &r.Errors); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0)
		r.FinishedAt = time.Unix(finished, 0)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastScanRun returns the most recent scan run or ErrNotFound.
func (d *Database) LastScanRun(ctx context.Context) (*ScanRun, error) {
	runs, err := d.ListScanRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return &runs[0], nil
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
