package filesystem

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Root is a named directory tree, typically a library root.
type Root struct {
	Name string
	Path string
}

// RootResolver maps file paths to the most specific configured root.
// It uses longest-prefix matching on absolute paths and is safe for concurrent use.
type RootResolver struct {
	mu sync.RWMutex
	// roots is sorted by path length descending for longest-prefix matching
	roots []rootEntry
}

type rootEntry struct {
	prefix string // absolute path with trailing separator (e.g., "/models/")
	root   Root
}

// NewRootResolver creates a resolver from a map of root name → path.
//
//	NewRootResolver(map[string]string{
//	    "printables": "/models/printables",
//	    "scans":      "/models/scans",
//	})
func NewRootResolver(roots map[string]string) *RootResolver {
	rr := &RootResolver{}
	for name, path := range roots {
		rr.Add(name, path)
	}
	return rr
}

func normalizeRoot(path string) (string, string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = filepath.Clean(path)
	}
	prefix := absPath
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return absPath, prefix
}

// Add registers a root, replacing any previous root with the same path.
func (rr *RootResolver) Add(name, path string) {
	absPath, prefix := normalizeRoot(path)

	rr.mu.Lock()
	defer rr.mu.Unlock()

	for i, e := range rr.roots {
		if e.prefix == prefix {
			rr.roots[i].root = Root{Name: name, Path: absPath}
			return
		}
	}
	rr.roots = append(rr.roots, rootEntry{prefix: prefix, root: Root{Name: name, Path: absPath}})

	// Sort by path length descending so the most specific prefix matches first
	sort.SliceStable(rr.roots, func(i, j int) bool {
		return len(rr.roots[i].prefix) > len(rr.roots[j].prefix)
	})
}

// Remove unregisters the root at path. It reports whether a root was removed.
func (rr *RootResolver) Remove(path string) bool {
	_, prefix := normalizeRoot(path)

	rr.mu.Lock()
	defer rr.mu.Unlock()

	for i, e := range rr.roots {
		if e.prefix == prefix {
			rr.roots = append(rr.roots[:i], rr.roots[i+1:]...)
			return true
		}
	}
	return false
}

// Match returns the most specific root containing path.
func (rr *RootResolver) Match(path string) (Root, bool) {
	if rr == nil {
		return Root{}, false
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Root{}, false
	}

	rr.mu.RLock()
	defer rr.mu.RUnlock()

	// Appending the separator also matches the root directory itself
	candidate := absPath + string(filepath.Separator)
	for _, e := range rr.roots {
		if strings.HasPrefix(candidate, e.prefix) {
			return e.root, true
		}
	}
	return Root{}, false
}

// Resolve returns the root name for a path, or "unknown" when no root matches.
// It is used as the volume label on filesystem metrics.
func (rr *RootResolver) Resolve(path string) string {
	if root, ok := rr.Match(path); ok {
		return root.Name
	}
	return "unknown"
}

// Roots returns a snapshot of the registered roots, most specific first.
func (rr *RootResolver) Roots() []Root {
	if rr == nil {
		return nil
	}
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	out := make([]Root, len(rr.roots))
	for i, e := range rr.roots {
		out[i] = e.root
	}
	return out
}

// Len returns the number of registered roots.
func (rr *RootResolver) Len() int {
	if rr == nil {
		return 0
	}
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return len(rr.roots)
}

var (
	defaultResolverMu sync.RWMutex
	defaultResolver   *RootResolver
)

// SetDefaultRootResolver sets the package-level resolver used to label metrics.
// Call this once at startup after loading the library list.
func SetDefaultRootResolver(rr *RootResolver) {
	defaultResolverMu.Lock()
	defaultResolver = rr
	defaultResolverMu.Unlock()
}

func defaultRootResolver() *RootResolver {
	defaultResolverMu.RLock()
	defer defaultResolverMu.RUnlock()
	return defaultResolver
}
