package store_test

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/nanomodel/storage"
	"github.com/arthur-debert/nanomodel/nanomodel/store"
	"github.com/arthur-debert/nanomodel/types"
)

func fixedTime() time.Time {
	return time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
}

func openMemory(t *testing.T, fsys store.FileSystem, locks store.LockFactory) *storage.Engine {
	t.Helper()
	e, err := store.Open("data.json",
		store.WithFileSystem(fsys),
		store.WithLocks(locks),
		store.WithTimeFunc(fixedTime),
	)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return e
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	fsys := store.NewMemoryFileSystem()
	locks := store.NewLocalLocks()

	e := openMemory(t, fsys, locks)
	if _, err := fsys.Stat("data.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected no file before the first write, got %v", err)
	}

	users, _ := e.Collection(ctx, "users", nil)
	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	id, err := users.Insert(ctx, types.Document{
		"name":    "Al",
		"age":     int64(42),
		"score":   1.5,
		"joined":  when,
		"tags":    []any{"a", "b"},
		"address": map[string]any{"city": "Lisbon"},
		"avatar":  []byte{1, 2, 3},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := users.EnsureIndex(ctx, driver.Asc("name"), &driver.IndexOptions{Unique: true}); err != nil {
		t.Fatal(err)
	}
	_ = e.Close(ctx)

	reopened := openMemory(t, fsys, locks)
	users, _ = reopened.Collection(ctx, "users", nil)
	doc, err := users.FindOne(ctx, types.Document{"_id": id}, nil)
	if err != nil || doc == nil {
		t.Fatalf("expected document after reopen, got %v (%v)", doc, err)
	}

	want := types.Document{
		"_id":     id,
		"name":    "Al",
		"age":     int64(42),
		"score":   1.5,
		"joined":  when,
		"tags":    []any{"a", "b"},
		"address": map[string]any{"city": "Lisbon"},
		"avatar":  []byte{1, 2, 3},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("document changed across reopen (-want +got):\n%s", diff)
	}

	// the unique index survived too
	if _, err := users.Insert(ctx, types.Document{"name": "Al"}, nil); !types.IsDuplicateKey(err) {
		t.Errorf("expected duplicate key after reopen, got %v", err)
	}
}

func TestWritersSharingAFileKeepEachOthersWrites(t *testing.T) {
	ctx := context.Background()
	fsys := store.NewMemoryFileSystem()
	locks := store.NewLocalLocks()

	first := openMemory(t, fsys, locks)
	second := openMemory(t, fsys, locks)
	a, _ := first.Collection(ctx, "notes", nil)
	b, _ := second.Collection(ctx, "notes", nil)

	if _, err := a.Insert(ctx, types.Document{"text": "from first"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Insert(ctx, types.Document{"text": "from second"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Insert(ctx, types.Document{"text": "first again"}, nil); err != nil {
		t.Fatal(err)
	}

	reopened := openMemory(t, fsys, locks)
	notes, _ := reopened.Collection(ctx, "notes", nil)
	docs, err := notes.Find(ctx, types.Document{}, &driver.FindOptions{Sort: []types.SortField{{Field: "text"}}})
	if err != nil {
		t.Fatal(err)
	}
	var texts []any
	for _, d := range docs {
		texts = append(texts, d["text"])
	}
	if diff := cmp.Diff([]any{"first again", "from first", "from second"}, texts); diff != "" {
		t.Errorf("stored notes mismatch (-want +got):\n%s", diff)
	}

	// the second writer picked up the first writer's document on its write
	if n, _ := b.Count(ctx, types.Document{"text": "from first"}); n != 1 {
		t.Errorf("expected the second engine to see the first write, got %d", n)
	}
}

func TestEncodeDecode(t *testing.T) {
	data := storage.NewStoreData(fixedTime())
	id := types.NewID()
	data.Collections["things"] = &storage.CollectionData{
		Documents: []types.Document{{"_id": id, "n": int64(7), "nested": map[string]any{"list": []any{int64(1)}}}},
	}

	raw, err := store.Encode(data, true)
	if err != nil {
		t.Fatal(err)
	}
	for _, marker := range []string{`"$oid"`, `"$numberLong"`, `"collections"`} {
		if !strings.Contains(string(raw), marker) {
			t.Errorf("expected %s in canonical output", marker)
		}
	}

	decoded, err := store.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(data.Collections["things"].Documents, decoded.Collections["things"].Documents); diff != "" {
		t.Errorf("documents mismatch (-want +got):\n%s", diff)
	}
	if !decoded.Metadata.CreatedAt.Equal(fixedTime()) || decoded.Metadata.Version != storage.FormatVersion {
		t.Errorf("unexpected metadata %+v", decoded.Metadata)
	}

	relaxed, _ := store.Encode(data, false)
	if strings.Contains(string(relaxed), `"$numberLong"`) {
		t.Error("relaxed output should use plain numbers")
	}

	if _, err := store.Decode([]byte("{not json")); err == nil {
		t.Error("expected a parse error")
	}
}

// failingFS wraps a FileSystem and fails renames on demand.
type failingFS struct {
	store.FileSystem
	renameErr error
	removed   []string
}

func (f *failingFS) Rename(oldpath, newpath string) error {
	if f.renameErr != nil {
		return f.renameErr
	}
	return f.FileSystem.Rename(oldpath, newpath)
}

func (f *failingFS) Remove(name string) error {
	f.removed = append(f.removed, name)
	return f.FileSystem.Remove(name)
}

func TestWriteFailureCleansUpAndRollsBack(t *testing.T) {
	ctx := context.Background()
	fsys := &failingFS{FileSystem: store.NewMemoryFileSystem()}
	e := openMemory(t, fsys, store.NewLocalLocks())
	c, _ := e.Collection(ctx, "c", nil)

	fsys.renameErr = errors.New("rename denied")
	_, err := c.Insert(ctx, types.Document{"a": 1}, nil)
	if err == nil || !strings.Contains(err.Error(), "failed to rename file") {
		t.Fatalf("expected rename failure, got %v", err)
	}
	if diff := cmp.Diff([]string{"data.json.tmp"}, fsys.removed); diff != "" {
		t.Errorf("temp file cleanup mismatch (-want +got):\n%s", diff)
	}
	if n, _ := c.Count(ctx, types.Document{}); n != 0 {
		t.Errorf("expected the failed insert to be rolled back, have %d documents", n)
	}
}

func TestFlockOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")

	e, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := e.Collection(ctx, "notes", nil)
	if _, err := c.Insert(ctx, types.Document{"title": "hello"}, nil); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	again, err := store.Open(path, store.WithRelaxedJSON())
	if err != nil {
		t.Fatal(err)
	}
	c, _ = again.Collection(ctx, "notes", nil)
	n, err := c.Count(ctx, types.Document{"title": "hello"})
	if err != nil || n != 1 {
		t.Errorf("expected the note on disk, got %d (%v)", n, err)
	}
}
