// Package database provides SQLite storage for the model catalog.
//
// It handles storage and retrieval of:
//   - Libraries (configured directory roots)
//   - Catalog entries for model files and archive entries
//   - The folder-derived category tree and model/category links
//   - Tags keyed by model id, so they follow a model across moves
//   - Scan run history
//   - The FTS4 full-text search index
//
// The schema is applied with golang-migrate from embedded SQL files (see the
// migrations subpackage). The database uses WAL mode so readers are not
// blocked by the long write transaction of a scan pass.
//
// Writes go through BeginBatch/EndBatch or WithTx. Write transactions are
// serialized in-process, so a watcher event waits for a running scan to
// commit instead of failing with SQLITE_BUSY. Methods that take a *sql.Tx
// fall back to the connection pool when tx is nil, which is only appropriate
// for reads.
package database
