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

const modelColumns = `id, name, file_path, content_hash, status, library_id, archive_path, archive_entry,
	file_format, file_size, vertex_count, face_count, dim_x, dim_y, dim_z, volume, surface_area,
	thumbnail, missing_since, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*Model, error) {
	var (
		m                                      Model
		hash, archivePath, archiveEntry, thumb sql.NullString
		libraryID, vertices, faces             sql.NullInt64
		dimX, dimY, dimZ, volume, area         sql.NullFloat64
		missingSince                           sql.NullInt64
		status                                 string
		createdAt, updatedAt                   int64
	)

	err := row.Scan(
		&m.ID, &m.Name, &m.FilePath, &hash, &status, &libraryID, &archivePath, &archiveEntry,
		&m.Metadata.Format, &m.Metadata.FileSize, &vertices, &faces, &dimX, &dimY, &dimZ, &volume, &area,
		&thumb, &missingSince, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.ContentHash = hash.String
	m.Status = Status(status)
	m.LibraryID = libraryID.Int64
	m.ArchivePath = archivePath.String
	m.ArchiveEntry = archiveEntry.String
	m.Thumbnail = thumb.String
	m.Metadata.HasGeometry = vertices.Valid
	m.Metadata.VertexCount = vertices.Int64
	m.Metadata.FaceCount = faces.Int64
	m.Metadata.DimX = dimX.Float64
	m.Metadata.DimY = dimY.Float64
	m.Metadata.DimZ = dimZ.Float64
	m.Metadata.Volume = volume.Float64
	m.Metadata.SurfaceArea = area.Float64
	if missingSince.Valid {
		m.MissingSince = time.Unix(missingSince.Int64, 0)
	}
	m.CreatedAt = time.Unix(createdAt, 0)
	m.UpdatedAt = time.Unix(updatedAt, 0)

	return &m, nil
}

func (d *Database) queryModels(ctx context.Context, tx *sql.Tx, operation, where string, args ...any) ([]*Model, error) {
	done := observeQuery(operation)

	rows, err := d.q(tx).QueryContext(ctx, "SELECT "+modelColumns+" FROM models "+where, args...)
	if err != nil {
		done(err)
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Error("error closing rows: %v", err)
		}
	}()

	var models []*Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			done(err)
			return nil, err
		}
		models = append(models, m)
	}
	err = rows.Err()
	done(err)
	return models, err
}

func (d *Database) queryModel(ctx context.Context, tx *sql.Tx, operation, where string, args ...any) (*Model, error) {
	done := observeQuery(operation)

	m, err := scanModel(d.q(tx).QueryRowContext(ctx, "SELECT "+modelColumns+" FROM models "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	done(err)
	return m, err
}

// GetModelByPath returns the row for a file path or synthetic archive path.
// It returns ErrNotFound when no row exists.
func (d *Database) GetModelByPath(ctx context.Context, tx *sql.Tx, path string) (*Model, error) {
	return d.queryModel(ctx, tx, "get_model_by_path", "WHERE file_path = ?", path)
}

// GetModel returns the row with the given id or ErrNotFound.
func (d *Database) GetModel(ctx context.Context, tx *sql.Tx, id int64) (*Model, error) {
	return d.queryModel(ctx, tx, "get_model", "WHERE id = ?", id)
}

// ListRegularModels returns every row that is not an archive entry, in id order.
func (d *Database) ListRegularModels(ctx context.Context, tx *sql.Tx) ([]*Model, error) {
	return d.queryModels(ctx, tx, "list_models", "WHERE archive_path IS NULL ORDER BY id")
}

// ListArchiveModels returns every archive entry row, in id order.
func (d *Database) ListArchiveModels(ctx context.Context, tx *sql.Tx) ([]*Model, error) {
	return d.queryModels(ctx, tx, "list_models", "WHERE archive_path IS NOT NULL ORDER BY id")
}

// ListLibraryModels returns the rows owned by a library in id order: regular
// files when archived is false, archive entries otherwise.
func (d *Database) ListLibraryModels(ctx context.Context, tx *sql.Tx, libraryID int64, archived bool) ([]*Model, error) {
	where := "WHERE library_id = ? AND archive_path IS NULL ORDER BY id"
	if archived {
		where = "WHERE library_id = ? AND archive_path IS NOT NULL ORDER BY id"
	}
	return d.queryModels(ctx, tx, "list_library_models", where, libraryID)
}

// ListModelsByStatus returns rows with the given status, in id order.
func (d *Database) ListModelsByStatus(ctx context.Context, tx *sql.Tx, status Status) ([]*Model, error) {
	return d.queryModels(ctx, tx, "list_models", "WHERE status = ? ORDER BY id", string(status))
}

// FindByHash returns rows with the given content hash, in id order.
func (d *Database) FindByHash(ctx context.Context, tx *sql.Tx, hash string) ([]*Model, error) {
	if hash == "" {
		return nil, nil
	}
	return d.queryModels(ctx, tx, "find_by_hash", "WHERE content_hash = ? ORDER BY id", hash)
}

// InsertModel inserts m and sets m.ID. Timestamps are set to now.
func (d *Database) InsertModel(ctx context.Context, tx *sql.Tx, m *Model) error {
	done := observeQuery("insert_model")

	if m.Status == "" {
		m.Status = StatusActive
	}
	now := time.Now()
	if m.Status == StatusMissing && m.MissingSince.IsZero() {
		m.MissingSince = now
	}

	g := geometryArgs(m.Metadata)
	result, err := d.q(tx).ExecContext(ctx, `
		INSERT INTO models (name, file_path, content_hash, status, library_id, archive_path, archive_entry,
			file_format, file_size, vertex_count, face_count, dim_x, dim_y, dim_z, volume, surface_area,
			thumbnail, missing_since, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.Name, m.FilePath, nullString(m.ContentHash), string(m.Status), nullID(m.LibraryID),
		nullString(m.ArchivePath), nullString(m.ArchiveEntry),
		m.Metadata.Format, m.Metadata.FileSize,
		g[0], g[1], g[2], g[3], g[4], g[5], g[6],
		nullString(m.Thumbnail), unixOrNil(m.MissingSince), now.Unix(), now.Unix(),
	)
	if err != nil {
		err = fmt.Errorf("failed to insert model %s: %w", m.FilePath, err)
		done(err)
		return err
	}

	m.ID, err = result.LastInsertId()
	m.CreatedAt = time.Unix(now.Unix(), 0)
	m.UpdatedAt = m.CreatedAt
	done(err)
	return err
}

// geometryArgs returns vertex_count, face_count, dim_x, dim_y, dim_z, volume
// and surface_area bind values, all NULL when the metadata has no geometry.
func geometryArgs(md Metadata) []any {
	if !md.HasGeometry {
		return []any{nil, nil, nil, nil, nil, nil, nil}
	}
	return []any{md.VertexCount, md.FaceCount, md.DimX, md.DimY, md.DimZ, md.Volume, md.SurfaceArea}
}

// UpdateModel rewrites every mutable column of the row identified by m.ID.
// missing_since is maintained from m.Status.
func (d *Database) UpdateModel(ctx context.Context, tx *sql.Tx, m *Model) error {
	done := observeQuery("update_model")

	now := time.Now()
	if m.Status == StatusMissing {
		if m.MissingSince.IsZero() {
			m.MissingSince = now
		}
	} else {
		m.MissingSince = time.Time{}
	}

	g := geometryArgs(m.Metadata)
	result, err := d.q(tx).ExecContext(ctx, `
		UPDATE models SET
			name = ?, file_path = ?, content_hash = ?, status = ?, library_id = ?,
			archive_path = ?, archive_entry = ?, file_format = ?, file_size = ?,
			vertex_count = ?, face_count = ?, dim_x = ?, dim_y = ?, dim_z = ?, volume = ?, surface_area = ?,
			thumbnail = ?, missing_since = ?, updated_at = ?
		WHERE id = ?
	`,
		m.Name, m.FilePath, nullString(m.ContentHash), string(m.Status), nullID(m.LibraryID),
		nullString(m.ArchivePath), nullString(m.ArchiveEntry), m.Metadata.Format, m.Metadata.FileSize,
		g[0], g[1], g[2], g[3], g[4], g[5], g[6],
		nullString(m.Thumbnail), unixOrNil(m.MissingSince), now.Unix(),
		m.ID,
	)
	if err == nil {
		err = expectOneRow(result, m.ID)
	}
	if err != nil {
		err = fmt.Errorf("failed to update model %d: %w", m.ID, err)
	} else {
		m.UpdatedAt = time.Unix(now.Unix(), 0)
	}
	done(err)
	return err
}

// SetModelStatus changes a row's status, stamping missing_since when it
// becomes missing and clearing it when it becomes active again.
func (d *Database) SetModelStatus(ctx context.Context, tx *sql.Tx, id int64, status Status) error {
	done := observeQuery("set_status")

	now := time.Now().Unix()
	result, err := d.q(tx).ExecContext(ctx, `
		UPDATE models SET
			status = ?,
			missing_since = CASE
				WHEN ? = 'missing' THEN COALESCE(missing_since, ?)
				ELSE NULL
			END,
			updated_at = ?
		WHERE id = ?
	`, string(status), string(status), now, now, id)
	if err == nil {
		err = expectOneRow(result, id)
	}
	done(err)
	return err
}

// SetThumbnail records the generated thumbnail filename for a row.
func (d *Database) SetThumbnail(ctx context.Context, tx *sql.Tx, id int64, filename string) error {
	done := observeQuery("set_thumbnail")
	_, err := d.q(tx).ExecContext(ctx,
		"UPDATE models SET thumbnail = ? WHERE id = ?", nullString(filename), id)
	done(err)
	return err
}

// CountModels returns the number of rows, optionally filtered by status.
func (d *Database) CountModels(ctx context.Context, status Status) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := "SELECT COUNT(*) FROM models"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}

	var n int
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// ListModels returns models ordered by path, optionally filtered by status and
// a case-insensitive path prefix.
func (d *Database) ListModels(ctx context.Context, status Status, pathPrefix string, limit int) ([]*Model, error) {
	var conds []string
	var args []any
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(status))
	}
	if pathPrefix != "" {
		conds = append(conds, "file_path LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(pathPrefix)+"%")
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	where += " ORDER BY file_path"
	if limit > 0 {
		where += " LIMIT ?"
		args = append(args, limit)
	}

	return d.queryModels(ctx, nil, "list_models", where, args...)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func expectOneRow(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("model %d: %w", id, ErrNotFound)
	}
	return nil
}
