package testutil

import (
	"context"
	"sync"

	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/types"
)

// CountingDriver wraps a driver and counts collection calls by operation
// name (findOne, find, insert, update, save, remove, count, ensureIndex).
type CountingDriver struct {
	driver.Driver

	mu    sync.Mutex
	calls map[string]int
}

func NewCountingDriver(d driver.Driver) *CountingDriver {
	return &CountingDriver{Driver: d, calls: make(map[string]int)}
}

// Calls returns how often op was called since the last Reset.
func (d *CountingDriver) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Total returns the number of calls of any operation.
func (d *CountingDriver) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		n += c
	}
	return n
}

func (d *CountingDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = make(map[string]int)
}

func (d *CountingDriver) record(op string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[op]++
}

func (d *CountingDriver) Collection(ctx context.Context, name string, opts types.Options) (driver.Collection, error) {
	c, err := d.Driver.Collection(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	return &countingCollection{Collection: c, driver: d}, nil
}

type countingCollection struct {
	driver.Collection
	driver *CountingDriver
}

func (c *countingCollection) FindOne(ctx context.Context, query types.Document, opts *driver.FindOptions) (types.Document, error) {
	c.driver.record("findOne")
	return c.Collection.FindOne(ctx, query, opts)
}

func (c *countingCollection) Find(ctx context.Context, query types.Document, opts *driver.FindOptions) ([]types.Document, error) {
	c.driver.record("find")
	return c.Collection.Find(ctx, query, opts)
}

func (c *countingCollection) Insert(ctx context.Context, doc types.Document, opts types.Options) (types.ID, error) {
	c.driver.record("insert")
	return c.Collection.Insert(ctx, doc, opts)
}

func (c *countingCollection) Update(ctx context.Context, query, update types.Document, opts *driver.UpdateOptions) (int, error) {
	c.driver.record("update")
	return c.Collection.Update(ctx, query, update, opts)
}

func (c *countingCollection) Save(ctx context.Context, doc types.Document, opts types.Options) error {
	c.driver.record("save")
	return c.Collection.Save(ctx, doc, opts)
}

func (c *countingCollection) Remove(ctx context.Context, query types.Document, opts types.Options) (int, error) {
	c.driver.record("remove")
	return c.Collection.Remove(ctx, query, opts)
}

func (c *countingCollection) Count(ctx context.Context, query types.Document) (int, error) {
	c.driver.record("count")
	return c.Collection.Count(ctx, query)
}

func (c *countingCollection) EnsureIndex(ctx context.Context, spec driver.IndexSpec, opts *driver.IndexOptions) error {
	c.driver.record("ensureIndex")
	return c.Collection.EnsureIndex(ctx, spec, opts)
}
