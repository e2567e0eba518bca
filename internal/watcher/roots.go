package watcher

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"modelcat/internal/database"
)

// rootSet maps watched library roots to their libraries. Lookups pick the
// longest root that contains the path, so nested libraries resolve to the
// innermost one.
type rootSet struct {
	mu    sync.RWMutex
	roots map[string]database.Library
}

func newRootSet() *rootSet {
	return &rootSet{roots: make(map[string]database.Library)}
}

func (r *rootSet) add(lib database.Library) {
	r.mu.Lock()
	r.roots[filepath.Clean(lib.RootPath)] = lib
	r.mu.Unlock()
}

func (r *rootSet) remove(root string) (database.Library, bool) {
	root = filepath.Clean(root)
	r.mu.Lock()
	defer r.mu.Unlock()
	lib, ok := r.roots[root]
	delete(r.roots, root)
	return lib, ok
}

// resolve returns the library owning path.
func (r *rootSet) resolve(path string) (database.Library, bool) {
	path = filepath.Clean(path)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best database.Library
	bestLen := -1
	for root, lib := range r.roots {
		if within(root, path) && len(root) > bestLen {
			best, bestLen = lib, len(root)
		}
	}
	return best, bestLen >= 0
}

func (r *rootSet) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.roots))
	for root := range r.roots {
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// hiddenBelow reports whether any component of path below root is hidden.
func hiddenBelow(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
