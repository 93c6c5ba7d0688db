// Package testutil loads a small, fixed universe of users and posts for
// tests of the model runtime and its consumers.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/arthur-debert/nanomodel/nanomodel"
	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/nanomodel/schema"
	"github.com/arthur-debert/nanomodel/nanomodel/store"
	"github.com/arthur-debert/nanomodel/types"
)

// Fixed identities of the fixture documents.
var (
	AdaID     = mustID("650000000000000000000001")
	BobID     = mustID("650000000000000000000002")
	CyID      = mustID("650000000000000000000003")
	IntroID   = mustID("650000000000000000000101")
	DraftID   = mustID("650000000000000000000102")
	RoundupID = mustID("650000000000000000000103")

	// DanglingID is referenced by the Draft post but names no user.
	DanglingID = mustID("6500000000000000000000ff")
)

// Universe is the loaded fixture.
type Universe struct {
	Pool    *nanomodel.Pool
	Users   *nanomodel.Model
	Posts   *nanomodel.Model
	Counter *CountingDriver
	FS      store.FileSystem
}

// UserSchema returns a fresh users schema.
//
//	name     string, required
//	email    string (unique index)
//	age      number
//	address  {city, zip}
//	tags     [string]
//	joined   date
//	role     string, defaults to "member"
func UserSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New("users", schema.Definition{
		"name":    schema.Field{Type: schema.String, Required: true},
		"email":   schema.String,
		"age":     schema.Number,
		"address": schema.Definition{"city": schema.String, "zip": schema.String},
		"tags":    []any{schema.String},
		"joined":  schema.Date,
		"role":    schema.Field{Type: schema.String, Default: "member"},
	})
	if err != nil {
		t.Fatalf("failed to compile users schema: %v", err)
	}
	return s
}

// PostSchema returns a posts schema whose author and reviewers reference
// users.
func PostSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New("posts", schema.Definition{
		"title":     schema.Field{Type: schema.String, Required: true},
		"author":    schema.ObjectID,
		"reviewers": []any{schema.ObjectID},
		"comments": []any{schema.Definition{
			"author": schema.ObjectID,
			"text":   schema.String,
		}},
		"published": schema.Boolean,
	})
	if err != nil {
		t.Fatalf("failed to compile posts schema: %v", err)
	}
	return s
}

// LoadUniverse opens the fixture through the JSON file driver on an
// in-memory filesystem. Every driver call is counted. users.email carries
// a unique, sparse index.
func LoadUniverse(t *testing.T, opts ...nanomodel.Option) *Universe {
	t.Helper()
	ctx := context.Background()

	// Load fixture data - use runtime to find the correct path
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to get runtime caller info")
	}
	raw, err := os.ReadFile(filepath.Join(filepath.Dir(filename), "testdata", "universe.json"))
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}

	fsys := store.NewMemoryFileSystem()
	if err := fsys.WriteFile("universe.json", raw, 0644); err != nil {
		t.Fatalf("failed to stage fixture: %v", err)
	}
	engine, err := store.Open("universe.json",
		store.WithFileSystem(fsys),
		store.WithLocks(store.NewLocalLocks()),
		store.WithTimeFunc(func() time.Time { return time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("failed to open fixture store: %v", err)
	}

	counter := NewCountingDriver(engine)
	pool := nanomodel.NewPool(counter, opts...)
	t.Cleanup(func() { _ = pool.Close(ctx) })

	users, err := nanomodel.NewModel(pool, "users", UserSchema(t))
	if err != nil {
		t.Fatal(err)
	}
	posts, err := nanomodel.NewModel(pool, "posts", PostSchema(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := users.EnsureIndex(ctx, driver.Asc("email"), &driver.IndexOptions{Unique: true, Sparse: true}); err != nil {
		t.Fatalf("failed to index users: %v", err)
	}
	counter.Reset()

	return &Universe{
		Pool:    pool,
		Users:   users,
		Posts:   posts,
		Counter: counter,
		FS:      fsys,
	}
}

func mustID(hex string) types.ID {
	id, err := types.ParseID(hex)
	if err != nil {
		panic(err)
	}
	return id
}
