package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/nanomodel/storage"
	"github.com/arthur-debert/nanomodel/types"
)

func newCollection(t *testing.T) driver.Collection {
	t.Helper()
	e := storage.NewMemory()
	c, err := e.Collection(context.Background(), "people", nil)
	if err != nil {
		t.Fatalf("failed to open collection: %v", err)
	}
	return c
}

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t)

	id, err := c.Insert(ctx, types.Document{"name": "Al", "age": 30}, nil)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if id.IsZero() {
		t.Fatal("expected an assigned id")
	}

	given := types.NewID()
	if _, err := c.Insert(ctx, types.Document{"_id": given.Hex(), "name": "Bo", "age": 20}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Insert(ctx, types.Document{"_id": given, "name": "dup"}, nil); !types.IsDuplicateKey(err) {
		t.Errorf("expected duplicate key error, got %v", err)
	}
	if _, err := c.Insert(ctx, types.Document{"_id": "nope"}, nil); !types.IsInvalidIdentifier(err) {
		t.Errorf("expected invalid identifier, got %v", err)
	}

	doc, err := c.FindOne(ctx, types.Document{"_id": given}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if doc["name"] != "Bo" {
		t.Errorf("expected Bo, got %v", doc)
	}

	doc, err = c.FindOne(ctx, types.Document{"name": "Zed"}, nil)
	if err != nil || doc != nil {
		t.Errorf("expected (nil, nil) for no match, got %v, %v", doc, err)
	}

	docs, err := c.Find(ctx, types.Document{}, &driver.FindOptions{
		Sort:   []types.SortField{{Field: "age"}},
		Fields: []string{"name"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []types.Document{
		{"_id": given, "name": "Bo"},
		{"_id": id, "name": "Al"},
	}
	if diff := cmp.Diff(want, docs); diff != "" {
		t.Errorf("find mismatch (-want +got):\n%s", diff)
	}

	n, err := c.Count(ctx, types.Document{"age": map[string]any{"$gt": 25}})
	if err != nil || n != 1 {
		t.Errorf("expected count 1, got %d (%v)", n, err)
	}
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t)
	in := types.Document{"tags": []any{"a"}}
	id, _ := c.Insert(ctx, in, nil)
	in["tags"].([]any)[0] = "changed"

	doc, _ := c.FindOne(ctx, types.Document{"_id": id}, nil)
	doc["tags"].([]any)[0] = "mutated"

	again, _ := c.FindOne(ctx, types.Document{"_id": id}, nil)
	if diff := cmp.Diff([]any{"a"}, again["tags"]); diff != "" {
		t.Errorf("stored document leaked (-want +got):\n%s", diff)
	}
}

func TestUpdateSaveRemove(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t)
	for _, name := range []string{"a", "b", "c"} {
		if _, err := c.Insert(ctx, types.Document{"name": name, "group": "x"}, nil); err != nil {
			t.Fatal(err)
		}
	}

	n, err := c.Update(ctx, types.Document{"group": "x"}, types.Document{"$set": map[string]any{"seen": true}}, nil)
	if err != nil || n != 1 {
		t.Fatalf("expected single update, got %d (%v)", n, err)
	}
	n, _ = c.Update(ctx, types.Document{"group": "x"}, types.Document{"$inc": map[string]any{"hits": 1}}, &driver.UpdateOptions{Multi: true})
	if n != 3 {
		t.Errorf("expected multi update of 3, got %d", n)
	}
	n, _ = c.Update(ctx, types.Document{"name": "z"}, types.Document{"$set": map[string]any{"group": "y"}}, &driver.UpdateOptions{Upsert: true})
	if n != 1 {
		t.Errorf("expected upsert, got %d", n)
	}
	upserted, _ := c.FindOne(ctx, types.Document{"name": "z"}, nil)
	if upserted == nil || upserted["group"] != "y" {
		t.Errorf("expected upserted document, got %v", upserted)
	}

	doc, _ := c.FindOne(ctx, types.Document{"name": "a"}, nil)
	doc["name"] = "a2"
	if err := c.Save(ctx, doc, nil); err != nil {
		t.Fatal(err)
	}
	if cnt, _ := c.Count(ctx, types.Document{}); cnt != 4 {
		t.Errorf("save should replace, found %d documents", cnt)
	}

	removed, err := c.Remove(ctx, types.Document{"group": "x"}, types.Options{"single": true})
	if err != nil || removed != 1 {
		t.Errorf("expected single removal, got %d (%v)", removed, err)
	}
	removed, _ = c.Remove(ctx, types.Document{"group": "x"}, nil)
	if removed != 2 {
		t.Errorf("expected 2 removals, got %d", removed)
	}

	if _, err := c.Update(ctx, types.Document{"a": nil}, types.Document{"$set": map[string]any{}}, nil); !types.IsBadQuery(err) {
		t.Errorf("expected BadQuery, got %v", err)
	}
}

func TestUniqueIndex(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t)

	if err := c.EnsureIndex(ctx, driver.Asc("email"), &driver.IndexOptions{Unique: true, Sparse: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Insert(ctx, types.Document{"email": "a@b.c"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Insert(ctx, types.Document{"email": "a@b.c"}, nil); !types.IsDuplicateKey(err) {
		t.Errorf("expected duplicate key, got %v", err)
	}
	// sparse: documents without the field do not collide
	for i := 0; i < 2; i++ {
		if _, err := c.Insert(ctx, types.Document{"name": "anon"}, nil); err != nil {
			t.Fatalf("sparse insert %d failed: %v", i, err)
		}
	}

	// a failing multi update leaves every document untouched
	_, err := c.Update(ctx, types.Document{"name": "anon"}, types.Document{"$set": map[string]any{"email": "x@y.z"}}, &driver.UpdateOptions{Multi: true})
	if !types.IsDuplicateKey(err) {
		t.Fatalf("expected duplicate key, got %v", err)
	}
	if n, _ := c.Count(ctx, types.Document{"email": "x@y.z"}); n != 0 {
		t.Errorf("expected rollback, %d documents were changed", n)
	}

	other := newCollection(t)
	_, _ = other.Insert(ctx, types.Document{"k": 1}, nil)
	_, _ = other.Insert(ctx, types.Document{"k": 1}, nil)
	if err := other.EnsureIndex(ctx, driver.Asc("k"), &driver.IndexOptions{Unique: true}); !types.IsDuplicateKey(err) {
		t.Errorf("expected index build to fail on existing duplicates, got %v", err)
	}
}

type failingBackend struct {
	saves int
	fail  bool
	data  *storage.StoreData
}

func (b *failingBackend) Load() (*storage.StoreData, error) { return b.data, nil }

func (b *failingBackend) Save(data *storage.StoreData) error {
	if b.fail {
		return errors.New("disk full")
	}
	b.saves++
	return nil
}

func (b *failingBackend) Close() error { return nil }

func TestBackendFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{}
	e, err := storage.New(storage.WithBackend(backend))
	if err != nil {
		t.Fatal(err)
	}
	c, _ := e.Collection(ctx, "things", nil)
	if _, err := c.Insert(ctx, types.Document{"n": 1}, nil); err != nil {
		t.Fatal(err)
	}
	if backend.saves != 1 {
		t.Errorf("expected one save, got %d", backend.saves)
	}

	backend.fail = true
	if _, err := c.Insert(ctx, types.Document{"n": 2}, nil); err == nil || err.Error() != "disk full" {
		t.Fatalf("expected the backend error unchanged, got %v", err)
	}
	if n, _ := c.Count(ctx, types.Document{}); n != 1 {
		t.Errorf("expected failed write to be rolled back, have %d documents", n)
	}
}

func TestClosedEngine(t *testing.T) {
	ctx := context.Background()
	e := storage.NewMemory()
	c, _ := e.Collection(ctx, "x", nil)
	if err := e.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Find(ctx, types.Document{}, nil); !types.IsClosed(err) {
		t.Errorf("expected closed error, got %v", err)
	}
	if _, err := e.Collection(ctx, "x", nil); !types.IsClosed(err) {
		t.Errorf("expected closed error, got %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newCollection(t)
	cancel()
	if _, err := c.Insert(ctx, types.Document{}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
