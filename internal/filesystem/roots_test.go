package filesystem

import (
	"path/filepath"
	"testing"
)

func TestRootResolver_Match(t *testing.T) {
	rr := NewRootResolver(map[string]string{
		"models":  "/data/models",
		"prints":  "/data/models/prints",
		"scans":   "/scans",
		"archive": "/data/models-archive",
	})

	tests := []struct {
		name     string
		path     string
		wantName string
		wantOK   bool
	}{
		{name: "root itself", path: "/scans", wantName: "scans", wantOK: true},
		{name: "nested file", path: "/scans/a/b/c.stl", wantName: "scans", wantOK: true},
		{name: "longest prefix wins", path: "/data/models/prints/benchy.stl", wantName: "prints", wantOK: true},
		{name: "parent root", path: "/data/models/other/x.obj", wantName: "models", wantOK: true},
		{name: "sibling with shared prefix", path: "/data/models-archive/x.stl", wantName: "archive", wantOK: true},
		{name: "no partial component match", path: "/scansX/a.stl", wantOK: false},
		{name: "outside all roots", path: "/tmp/a.stl", wantOK: false},
		{name: "unclean path", path: "/scans/a/../b.stl", wantName: "scans", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, ok := rr.Match(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if ok && root.Name != tt.wantName {
				t.Errorf("Match(%q) = %q, want %q", tt.path, root.Name, tt.wantName)
			}
		})
	}
}

func TestRootResolver_Resolve(t *testing.T) {
	rr := NewRootResolver(map[string]string{"models": "/data/models"})

	if got := rr.Resolve("/data/models/a.stl"); got != "models" {
		t.Errorf("Expected models, got %q", got)
	}
	if got := rr.Resolve("/elsewhere/a.stl"); got != "unknown" {
		t.Errorf("Expected unknown, got %q", got)
	}

	var nilResolver *RootResolver
	if got := nilResolver.Resolve("/data/models/a.stl"); got != "unknown" {
		t.Errorf("Expected unknown from nil resolver, got %q", got)
	}
}

func TestRootResolver_AddRemove(t *testing.T) {
	rr := NewRootResolver(nil)
	dir := t.TempDir()

	rr.Add("lib", dir)
	if rr.Len() != 1 {
		t.Fatalf("Expected 1 root, got %d", rr.Len())
	}

	// Re-adding the same path renames instead of duplicating
	rr.Add("renamed", dir+string(filepath.Separator))
	if rr.Len() != 1 {
		t.Fatalf("Expected 1 root after re-add, got %d", rr.Len())
	}
	root, ok := rr.Match(filepath.Join(dir, "x.stl"))
	if !ok || root.Name != "renamed" {
		t.Errorf("Expected renamed root, got %+v (ok=%v)", root, ok)
	}
	if root.Path != dir {
		t.Errorf("Expected root path %q, got %q", dir, root.Path)
	}

	if !rr.Remove(dir) {
		t.Error("Expected Remove to report removal")
	}
	if rr.Remove(dir) {
		t.Error("Expected second Remove to report nothing removed")
	}
	if _, ok := rr.Match(filepath.Join(dir, "x.stl")); ok {
		t.Error("Expected no match after removal")
	}
}

func TestRootResolver_RootsOrder(t *testing.T) {
	rr := NewRootResolver(map[string]string{
		"a": "/a",
		"b": "/a/b/c",
		"c": "/a/b",
	})

	roots := rr.Roots()
	if len(roots) != 3 {
		t.Fatalf("Expected 3 roots, got %d", len(roots))
	}
	for i := 1; i < len(roots); i++ {
		if len(roots[i-1].Path) < len(roots[i].Path) {
			t.Errorf("Roots not ordered most specific first: %v", roots)
		}
	}
}

func BenchmarkRootResolver_Match(b *testing.B) {
	rr := NewRootResolver(map[string]string{
		"models": "/data/models",
		"prints": "/data/models/prints",
		"scans":  "/scans",
	})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr.Match("/data/models/prints/2024/benchy/benchy.stl")
	}
}
