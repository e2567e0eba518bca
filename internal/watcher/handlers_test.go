package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"modelcat/internal/database"
	"modelcat/internal/thumbnail"
)

type testEnv struct {
	t        *testing.T
	ctx      context.Context
	db       *database.Database
	root     string
	thumbDir string
	lib      *database.Library
	w        *Watcher
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := database.New(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	root := t.TempDir()
	lib, err := db.UpsertLibrary(ctx, "models", root)
	if err != nil {
		t.Fatalf("Failed to create library: %v", err)
	}

	thumbDir := t.TempDir()
	w, err := New(db, thumbnail.NewGenerator(thumbDir, true), cfg)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	if err := w.AddRoot(*lib); err != nil {
		t.Fatalf("AddRoot failed: %v", err)
	}

	return &testEnv{t: t, ctx: ctx, db: db, root: root, thumbDir: thumbDir, lib: lib, w: w}
}

func stl(seed int) []byte {
	return []byte(fmt.Sprintf("solid t\nfacet normal 0 0 1\nouter loop\nvertex 0 0 0\nvertex %d 0 0\nvertex 0 %d 0\nendloop\nendfacet\nendsolid t\n", seed+1, seed+2))
}

func (e *testEnv) path(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}

func (e *testEnv) write(rel string, content []byte) string {
	e.t.Helper()
	p := e.path(rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		e.t.Fatal(err)
	}
	if err := os.WriteFile(p, content, 0644); err != nil {
		e.t.Fatal(err)
	}
	return p
}

func (e *testEnv) move(from, to string) string {
	e.t.Helper()
	dst := e.path(to)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		e.t.Fatal(err)
	}
	if err := os.Rename(e.path(from), dst); err != nil {
		e.t.Fatal(err)
	}
	return dst
}

func (e *testEnv) model(path string) *database.Model {
	e.t.Helper()
	m, err := e.db.GetModelByPath(e.ctx, nil, path)
	if err != nil {
		e.t.Fatalf("Expected a row for %s: %v", path, err)
	}
	return m
}

func (e *testEnv) noModel(path string) {
	e.t.Helper()
	if _, err := e.db.GetModelByPath(e.ctx, nil, path); !errors.Is(err, database.ErrNotFound) {
		e.t.Errorf("Expected no row for %s, got %v", path, err)
	}
}

func (e *testEnv) categories(id int64) []string {
	e.t.Helper()
	names, err := e.db.GetModelCategoryNames(e.ctx, nil, id)
	if err != nil {
		e.t.Fatal(err)
	}
	if names == nil {
		names = []string{}
	}
	return names
}

func (e *testEnv) handle(ev Event) {
	e.t.Helper()
	if err := e.w.handle(e.ctx, ev); err != nil {
		e.t.Fatalf("Handling %v failed: %v", ev, err)
	}
}

func (e *testEnv) searchCount(q string) int {
	e.t.Helper()
	results, err := e.db.Search(e.ctx, q, 10)
	if err != nil {
		e.t.Fatal(err)
	}
	return len(results)
}

func TestHandleCreated(t *testing.T) {
	e := newTestEnv(t, Config{})
	p := e.write("dragons/red.stl", stl(1))

	e.handle(Event{Kind: Created, Path: p})

	m := e.model(p)
	if m.Status != database.StatusActive || m.Name != "red" || m.LibraryID != e.lib.ID {
		t.Errorf("Unexpected row %+v", m)
	}
	if m.ContentHash == "" || !m.Metadata.HasGeometry || m.Metadata.FaceCount != 1 {
		t.Errorf("Expected hash and geometry, got %+v", m)
	}
	if got := e.categories(m.ID); !reflect.DeepEqual(got, []string{"dragons"}) {
		t.Errorf("Expected [dragons], got %v", got)
	}
	if m.Thumbnail != fmt.Sprintf("%d.png", m.ID) {
		t.Errorf("Expected thumbnail %d.png, got %q", m.ID, m.Thumbnail)
	}
	if _, err := os.Stat(filepath.Join(e.thumbDir, m.Thumbnail)); err != nil {
		t.Errorf("Expected thumbnail file: %v", err)
	}
	if n := e.searchCount("red"); n != 1 {
		t.Errorf("Expected 1 search hit, got %d", n)
	}

	// Replaying is a no-op
	e.handle(Event{Kind: Created, Path: p})
	if n, _ := e.db.CountModels(e.ctx, ""); n != 1 {
		t.Errorf("Expected 1 row, got %d", n)
	}
}

func TestHandleCreated_VanishedFile(t *testing.T) {
	e := newTestEnv(t, Config{})
	p := e.path("gone.stl")

	e.handle(Event{Kind: Created, Path: p})
	e.noModel(p)
}

func TestHandleCreated_OutsideRoots(t *testing.T) {
	e := newTestEnv(t, Config{})
	p := filepath.Join(t.TempDir(), "elsewhere.stl")
	if err := os.WriteFile(p, stl(1), 0644); err != nil {
		t.Fatal(err)
	}

	e.handle(Event{Kind: Created, Path: p})
	e.noModel(p)
}

func TestHandleCreated_RecoversMove(t *testing.T) {
	e := newTestEnv(t, Config{})
	p := e.write("a/knight.stl", stl(1))
	e.handle(Event{Kind: Created, Path: p})
	original := e.model(p)
	if err := e.db.AddTagToModel(e.ctx, original.ID, "painted"); err != nil {
		t.Fatal(err)
	}

	// Directory renames surface as a plain create at the new location
	moved := e.move("a/knight.stl", "b/c/paladin.stl")
	e.handle(Event{Kind: Created, Path: moved})

	m := e.model(moved)
	if m.ID != original.ID || m.Name != "paladin" {
		t.Errorf("Expected row %d renamed to paladin, got id %d name %s", original.ID, m.ID, m.Name)
	}
	if got := e.categories(m.ID); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("Expected [b c], got %v", got)
	}
	if tags, _ := e.db.GetModelTags(e.ctx, m.ID); !reflect.DeepEqual(tags, []string{"painted"}) {
		t.Errorf("Expected tags to survive, got %v", tags)
	}
	e.noModel(p)
}

func TestHandleCreated_CopyIsNewRow(t *testing.T) {
	e := newTestEnv(t, Config{})
	a := e.write("a.stl", stl(1))
	e.handle(Event{Kind: Created, Path: a})

	b := e.write("b.stl", stl(1))
	e.handle(Event{Kind: Created, Path: b})

	if e.model(a).ID == e.model(b).ID {
		t.Error("Expected a copy to get its own row")
	}
}

func TestHandleCreated_ReactivatesMissingRow(t *testing.T) {
	e := newTestEnv(t, Config{})
	p := e.write("a.stl", stl(1))
	e.handle(Event{Kind: Created, Path: p})
	id := e.model(p).ID

	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	e.handle(Event{Kind: Deleted, Path: p})
	if m := e.model(p); m.Status != database.StatusMissing {
		t.Fatalf("Expected missing, got %s", m.Status)
	}

	e.write("a.stl", stl(2))
	e.handle(Event{Kind: Created, Path: p})
	m := e.model(p)
	if m.ID != id || m.Status != database.StatusActive {
		t.Errorf("Expected row %d active, got id %d status %s", id, m.ID, m.Status)
	}
}

func TestHandleModified(t *testing.T) {
	e := newTestEnv(t, Config{})
	p := e.write("ships/frigate.stl", stl(1))

	// Untracked behaves like created
	e.handle(Event{Kind: Modified, Path: p})
	before := e.model(p)

	// Category changes on disk are not picked up by a modify
	if _, err := e.w.deriver.Assign(e.ctx, nil, before.ID, []string{"manual"}); err != nil {
		t.Fatal(err)
	}

	e.write("ships/frigate.stl", stl(5))
	e.handle(Event{Kind: Modified, Path: p})

	after := e.model(p)
	if after.ID != before.ID {
		t.Errorf("Expected id %d, got %d", before.ID, after.ID)
	}
	if after.ContentHash == before.ContentHash {
		t.Error("Expected hash to be refreshed")
	}
	if after.Metadata.DimX == before.Metadata.DimX {
		t.Errorf("Expected dimensions to be refreshed, got %v", after.Metadata.DimX)
	}
	if got := e.categories(after.ID); !reflect.DeepEqual(got, []string{"manual"}) {
		t.Errorf("Expected categories untouched, got %v", got)
	}
}

func TestHandleDeleted(t *testing.T) {
	e := newTestEnv(t, Config{})
	p := e.write("dragon.stl", stl(1))
	e.handle(Event{Kind: Created, Path: p})
	m := e.model(p)
	if err := e.db.AddTagToModel(e.ctx, m.ID, "favorite"); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	e.handle(Event{Kind: Deleted, Path: p})

	after := e.model(p)
	if after.Status != database.StatusMissing || after.MissingSince.IsZero() {
		t.Errorf("Expected missing with timestamp, got %s %v", after.Status, after.MissingSince)
	}
	if after.ContentHash != m.ContentHash || after.Thumbnail != m.Thumbnail {
		t.Error("Expected hash and thumbnail to be kept")
	}
	if _, err := os.Stat(filepath.Join(e.thumbDir, m.Thumbnail)); err != nil {
		t.Errorf("Expected thumbnail file to be kept: %v", err)
	}
	if tags, _ := e.db.GetModelTags(e.ctx, m.ID); len(tags) != 1 {
		t.Errorf("Expected tags to be kept, got %v", tags)
	}
	if n := e.searchCount("dragon"); n != 0 {
		t.Errorf("Expected no search hits, got %d", n)
	}

	// Deleting again and deleting untracked paths are no-ops
	e.handle(Event{Kind: Deleted, Path: p})
	e.handle(Event{Kind: Deleted, Path: e.path("never.stl")})
}

func TestHandleDeleted_FileReplaced(t *testing.T) {
	e := newTestEnv(t, Config{})
	p := e.write("a.stl", stl(1))
	e.handle(Event{Kind: Created, Path: p})
	before := e.model(p)

	e.write("a.stl", stl(2))
	e.handle(Event{Kind: Deleted, Path: p})

	after := e.model(p)
	if after.Status != database.StatusActive || after.ContentHash == before.ContentHash {
		t.Errorf("Expected a replaced file to be refreshed, got %s", after.Status)
	}
}

func TestHandleDirDeleted(t *testing.T) {
	e := newTestEnv(t, Config{})
	a := e.write("set/a.stl", stl(1))
	b := e.write("set/deep/b.stl", stl(2))
	c := e.write("settings/c.stl", stl(3))
	for _, p := range []string{a, b, c} {
		e.handle(Event{Kind: Created, Path: p})
	}

	if err := os.RemoveAll(e.path("set")); err != nil {
		t.Fatal(err)
	}
	e.handle(Event{Kind: Deleted, Path: e.path("set"), Dir: true})

	for _, p := range []string{a, b} {
		if m := e.model(p); m.Status != database.StatusMissing {
			t.Errorf("Expected %s missing, got %s", p, m.Status)
		}
	}
	if m := e.model(c); m.Status != database.StatusActive {
		t.Errorf("Expected sibling with shared prefix to stay active, got %s", m.Status)
	}
}

func TestHandleMoved(t *testing.T) {
	e := newTestEnv(t, Config{})
	p := e.write("a/rook.stl", stl(1))
	e.handle(Event{Kind: Created, Path: p})
	original := e.model(p)

	dst := e.move("a/rook.stl", "b/castle.stl")
	e.handle(Event{Kind: Moved, Path: p, Dest: dst})

	m := e.model(dst)
	if m.ID != original.ID || m.Name != "castle" || m.ContentHash != original.ContentHash {
		t.Errorf("Expected row %d moved and renamed, got %+v", original.ID, m)
	}
	if m.Thumbnail != original.Thumbnail {
		t.Errorf("Expected thumbnail %q to be kept, got %q", original.Thumbnail, m.Thumbnail)
	}
	if got := e.categories(m.ID); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Expected [b], got %v", got)
	}
	if n := e.searchCount("castle"); n != 1 {
		t.Errorf("Expected search index to follow the rename, got %d hits", n)
	}
	e.noModel(p)
}

func TestHandleMoved_MispairedRename(t *testing.T) {
	e := newTestEnv(t, Config{})
	x := e.write("x.stl", stl(1))
	e.handle(Event{Kind: Created, Path: x})
	original := e.model(x)

	// x leaves the library while an unrelated file arrives as y
	if err := os.Remove(x); err != nil {
		t.Fatal(err)
	}
	y := e.write("y.stl", stl(9))
	e.handle(Event{Kind: Moved, Path: x, Dest: y})

	if m := e.model(x); m.ID != original.ID || m.Status != database.StatusMissing {
		t.Errorf("Expected row %d kept at %s as missing, got id %d status %s", original.ID, x, m.ID, m.Status)
	}
	m := e.model(y)
	if m.ID == original.ID {
		t.Fatalf("Expected %s to get its own row, got row %d", y, m.ID)
	}
	want, err := e.w.hashFile(y)
	if err != nil {
		t.Fatal(err)
	}
	if m.ContentHash != want || m.ContentHash == original.ContentHash {
		t.Errorf("Expected hash %s for %s, got %s", want, y, m.ContentHash)
	}
	if m.Status != database.StatusActive {
		t.Errorf("Expected %s active, got %s", y, m.Status)
	}
}

func TestHandleMoved_IneligibleDestination(t *testing.T) {
	e := newTestEnv(t, Config{})
	p := e.write("a.stl", stl(1))
	e.handle(Event{Kind: Created, Path: p})

	dst := e.move("a.stl", "a.stl.bak")
	e.handle(Event{Kind: Moved, Path: p, Dest: dst})

	if m := e.model(p); m.Status != database.StatusMissing {
		t.Errorf("Expected source missing, got %s", m.Status)
	}
	e.noModel(dst)
}

func TestHandleMoved_UntrackedSource(t *testing.T) {
	e := newTestEnv(t, Config{})
	e.write("a.tmp", stl(1))
	dst := e.move("a.tmp", "a.stl")

	e.handle(Event{Kind: Moved, Path: e.path("a.tmp"), Dest: dst})
	if m := e.model(dst); m.Status != database.StatusActive {
		t.Errorf("Expected destination catalogued, got %s", m.Status)
	}
}

func TestHandleMoved_OntoTrackedFile(t *testing.T) {
	e := newTestEnv(t, Config{})
	a := e.write("a.stl", stl(1))
	b := e.write("b.stl", stl(2))
	e.handle(Event{Kind: Created, Path: a})
	e.handle(Event{Kind: Created, Path: b})
	idA, idB := e.model(a).ID, e.model(b).ID

	e.move("a.stl", "b.stl")
	e.handle(Event{Kind: Moved, Path: a, Dest: b})

	if m := e.model(a); m.ID != idA || m.Status != database.StatusMissing {
		t.Errorf("Expected source row missing, got id %d status %s", m.ID, m.Status)
	}
	m := e.model(b)
	if m.ID != idB || m.ContentHash != e.model(a).ContentHash {
		t.Errorf("Expected destination row %d refreshed with the moved content", idB)
	}
}

func TestHandle_InspectFailure(t *testing.T) {
	e := newTestEnv(t, Config{})
	p := e.write("a.stl", stl(1))
	e.w.hashFile = func(string) (string, error) { return "", errors.New("disk on fire") }

	if err := e.w.handle(e.ctx, Event{Kind: Created, Path: p}); err == nil {
		t.Fatal("Expected an error when hashing fails")
	}
	e.noModel(p)

	// dispatch logs and carries on
	e.w.dispatch(e.ctx, Event{Kind: Created, Path: p})
}
