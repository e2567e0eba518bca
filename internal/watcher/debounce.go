package watcher

import (
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"modelcat/internal/modeltypes"
)

// rename is a Rename notification still waiting for its Create.
type rename struct {
	path string
	at   time.Time
}

// debouncer coalesces raw notifications into at most one pending Event per
// source path. An event is due once it has been quiet for the window.
type debouncer struct {
	window     time.Duration
	pairWindow time.Duration
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]Event
	renames []rename
}

func newDebouncer(window, pairWindow time.Duration) *debouncer {
	return &debouncer{
		window:     window,
		pairWindow: pairWindow,
		now:        time.Now,
		pending:    make(map[string]Event),
	}
}

func eligible(path string) bool {
	return path != "" && modeltypes.IsModelFile(path)
}

// record applies one raw notification. isDir reports whether path is (or,
// for removals, was) a watched directory.
func (d *debouncer) record(op fsnotify.Op, path string, isDir bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.pruneRenames(now)

	switch {
	case op.Has(fsnotify.Create):
		src, paired := d.takeRename(now)
		if isDir {
			// Files of a created or renamed-in directory are enqueued by the caller
			return
		}
		if paired && (eligible(src) || eligible(path)) {
			d.put(Event{Kind: Moved, Path: src, Dest: path, At: now})
			return
		}
		if eligible(path) {
			d.put(Event{Kind: Created, Path: path, At: now})
		}

	case op.Has(fsnotify.Rename):
		d.renames = append(d.renames, rename{path: path, at: now})
		// Promoted as Deleted unless a Create pairs with it first
		if isDir || eligible(path) {
			d.put(Event{Kind: Deleted, Path: path, Dir: isDir, At: now})
		}

	case op.Has(fsnotify.Remove):
		if isDir || eligible(path) {
			d.put(Event{Kind: Deleted, Path: path, Dir: isDir, At: now})
		}

	case op.Has(fsnotify.Write):
		if !eligible(path) {
			return
		}
		// A pending Created stays Created; Modified on an untracked path is the same thing
		if prev, ok := d.pending[path]; ok && prev.Kind == Created {
			prev.At = now
			d.pending[path] = prev
			return
		}
		d.put(Event{Kind: Modified, Path: path, At: now})
	}
}

// add queues ev directly, replacing any pending event for its path.
func (d *debouncer) add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	d.put(ev)
}

func (d *debouncer) put(ev Event) {
	d.pending[ev.Path] = ev
}

// takeRename pops the most recent unpaired rename inside the pairing window.
func (d *debouncer) takeRename(now time.Time) (string, bool) {
	if len(d.renames) == 0 {
		return "", false
	}
	last := d.renames[len(d.renames)-1]
	if now.Sub(last.at) > d.pairWindow {
		return "", false
	}
	d.renames = d.renames[:len(d.renames)-1]
	return last.path, true
}

func (d *debouncer) pruneRenames(now time.Time) {
	keep := d.renames[:0]
	for _, r := range d.renames {
		if now.Sub(r.at) <= d.pairWindow {
			keep = append(keep, r)
		}
	}
	d.renames = keep
}

// promote hands every due event to send, oldest first, and forgets it.
// When send refuses an event, that event and all later ones stay pending.
func (d *debouncer) promote(send func(Event) bool) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.pruneRenames(now)

	var due []Event
	for _, ev := range d.pending {
		if now.Sub(ev.At) >= d.window {
			due = append(due, ev)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].At.Equal(due[j].At) {
			return due[i].Path < due[j].Path
		}
		return due[i].At.Before(due[j].At)
	})

	sent := 0
	for _, ev := range due {
		if !send(ev) {
			break
		}
		delete(d.pending, ev.Path)
		sent++
	}
	return sent
}

// size returns the number of pending events.
func (d *debouncer) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
