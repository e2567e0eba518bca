package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"modelcat/internal/database/migrations"
	"modelcat/internal/logging"
	"modelcat/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Database manages all catalog storage operations.
type Database struct {
	db     *sql.DB
	dbPath string

	// writeMu serializes write transactions for their whole lifetime.
	writeMu sync.Mutex

	txMu     sync.Mutex
	txStarts map[*sql.Tx]time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (creating if needed) the catalog database and applies migrations.
// dbPath is the full path to the database FILE; its parent directory must
// already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout guards against other processes (e.g. a CLI scan next to a
	// running server); _txlock=immediate takes the write lock at BEGIN.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:       db,
		dbPath:   dbPath,
		txStarts: make(map[*sql.Tx]time.Time),
	}

	start := time.Now()
	err = migrations.MigrateUp(db)
	recordQuery("migrate", start, err)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after migration failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	if version, _, err := migrations.Version(db); err == nil {
		logging.Debug("Database schema at version %d", version)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Ping checks that the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// q returns tx when non-nil and the connection pool otherwise.
func (d *Database) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return d.db
}

// BeginBatch starts a write transaction for batch operations.
// The caller is responsible for calling EndBatch when done. Other writers
// block until EndBatch.
func (d *Database) BeginBatch() (*sql.Tx, error) {
	return d.BeginBatchContext(context.Background())
}

// BeginBatchContext is BeginBatch with a context governing the transaction.
func (d *Database) BeginBatchContext(ctx context.Context) (*sql.Tx, error) {
	start := time.Now()
	d.writeMu.Lock()

	tx, err := d.db.BeginTx(ctx, nil)
	recordQuery("begin_transaction", start, err)
	if err != nil {
		d.writeMu.Unlock()
		return nil, err
	}

	d.txMu.Lock()
	d.txStarts[tx] = start
	d.txMu.Unlock()

	return tx, nil
}

// EndBatch commits the transaction when err is nil and rolls it back
// otherwise, returning err joined with any rollback failure.
func (d *Database) EndBatch(tx *sql.Tx, err error) error {
	defer d.writeMu.Unlock()

	d.txMu.Lock()
	txStart, ok := d.txStarts[tx]
	delete(d.txStarts, tx)
	d.txMu.Unlock()
	if !ok {
		txStart = time.Now()
	}
	duration := time.Since(txStart).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		start := time.Now()
		rbErr := tx.Rollback()
		recordQuery("rollback", start, rbErr)
		if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	start := time.Now()
	commitErr := tx.Commit()
	recordQuery("commit", start, commitErr)
	return commitErr
}

// WithTx runs fn inside a write transaction, committing when fn returns nil.
// A panic in fn rolls the transaction back and releases the write lock
// before it propagates.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginBatchContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	done := false
	defer func() {
		if done {
			return
		}
		// fn panicked or its goroutine exited
		p := recover()
		abort := errors.New("transaction aborted")
		if p != nil {
			abort = fmt.Errorf("panic in transaction: %v", p)
		}
		if rbErr := d.EndBatch(tx, abort); rbErr != nil {
			logging.Error("Rolled back transaction: %v", rbErr)
		}
		if p != nil {
			panic(p)
		}
	}()

	err = fn(tx)
	done = true
	return d.EndBatch(tx, err)
}

// Savepoint runs fn inside a savepoint of tx. When fn fails, everything it
// wrote is rolled back and the rest of the transaction carries on.
func (d *Database) Savepoint(ctx context.Context, tx *sql.Tx, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT item"); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	if err := fn(); err != nil {
		start := time.Now()
		_, rbErr := tx.ExecContext(ctx, "ROLLBACK TO item")
		recordQuery("rollback_savepoint", start, rbErr)
		if rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint also failed: %w", rbErr))
		}
		// ROLLBACK TO keeps the savepoint on the stack
		if _, relErr := tx.ExecContext(ctx, "RELEASE item"); relErr != nil {
			return errors.Join(err, fmt.Errorf("failed to release savepoint: %w", relErr))
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, "RELEASE item"); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// recordQuery records metrics for a database query.
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// observeQuery starts timing operation and returns a func that records the
// outcome.
func observeQuery(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		recordQuery(operation, start, err)
	}
}

// UpdateDBMetrics updates database file size metrics.
func (d *Database) UpdateDBMetrics() {
	for label, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
		size := int64(0)
		if info, err := os.Stat(d.dbPath + suffix); err == nil {
			size = info.Size()
		}
		metrics.DBSizeBytes.WithLabelValues(label).Set(float64(size))
	}
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", p, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("Database file %s is read-only! Mode: %v", p, info.Mode())
		if p == dbPath {
			continue
		}
		// WAL and SHM files are recreated by SQLite and safe to fix in place
		if chmodErr := os.Chmod(p, 0o600); chmodErr != nil {
			logging.Error("Failed to fix permissions on %s: %v", p, chmodErr)
		} else {
			logging.Info("Fixed permissions on %s", p)
		}
	}

	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func unixOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
