// Package watcher applies filesystem notifications to the catalog as they
// happen.
//
// Raw fsnotify events are coalesced per path for a debounce window, with a
// Rename followed closely by a Create paired into a single move. Due events
// pass through a bounded queue to one reconciliation goroutine, which
// handles Created, Modified, Deleted and Moved with the same identity rules
// as the scanner: rows keep their id across moves and deletions only mark
// them missing.
package watcher
