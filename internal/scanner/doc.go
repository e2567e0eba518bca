// Package scanner reconciles the catalog with the model libraries on disk.
//
// A pass walks every library, hashes and inspects files that are not yet
// catalogued, and then applies the result in a single transaction:
//   - files with a row at their path are left alone (missing rows are reactivated)
//   - a new file whose content hash matches a vanished row takes over that row
//   - other new files get a new row
//   - rows whose file is gone and was not claimed become missing
//
// Archive entries are catalogued under a synthetic path and are matched by
// path only. Thumbnails are rendered after the pass commits.
package scanner
