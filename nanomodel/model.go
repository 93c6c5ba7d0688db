// Package nanomodel maps schema-validated documents onto a document store.
//
// A Model binds a compiled schema to one collection of a Pool. Class-level
// lookups (FindByID, FindBy, FindAll, LoadDbRef) go through a bounded TTL
// cache; everything returned is wrapped in an Instance that validates on
// Set and on Save.
//
//	pool := nanomodel.NewPool(storage.NewMemory())
//	users, _ := nanomodel.NewModel(pool, "users", userSchema)
//	u, _ := users.New(types.Document{"name": "Bob", "age": "42"})
//	id, _ := u.Save(ctx, nil)
//	again, _ := users.FindByID(ctx, id.Hex(), nil)
package nanomodel

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/arthur-debert/nanomodel/internal/optbag"
	"github.com/arthur-debert/nanomodel/internal/validation"
	"github.com/arthur-debert/nanomodel/nanomodel/cache"
	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/nanomodel/schema"
	"github.com/arthur-debert/nanomodel/types"
)

// FindOptions tunes a lookup. A nil *FindOptions means the zero value.
type FindOptions struct {
	// DirectObject skips schema coercion: instances wrap the stored
	// document as is.
	DirectObject bool
	// IncludeNotFound turns a by-id or unique miss into (nil, nil).
	IncludeNotFound bool
	// Unique overrides the index's unique flag for FindBy: a unique lookup
	// fails with NotFound on a miss.
	Unique *bool

	Fields []string
	Sort   []types.SortField
	Limit  int
	Skip   int

	// Driver is handed to the driver untouched.
	Driver types.Options
}

// ParseFindOptions reads FindOptions from an option bag, as decoded from
// flags or a config file. Unknown keys end up in Driver.
func ParseFindOptions(bag types.Options) *FindOptions {
	opts := &FindOptions{
		DirectObject:    optbag.Bool(bag, "directObject", false),
		IncludeNotFound: optbag.Bool(bag, "includeNotFound", false),
		Fields:          optbag.Strings(bag, "fields"),
		Sort:            optbag.Sort(bag, "sort"),
		Limit:           optbag.Int(bag, "limit", 0),
		Skip:            optbag.Int(bag, "skip", 0),
	}
	if optbag.Has(bag, "unique") {
		unique := optbag.Bool(bag, "unique", false)
		opts.Unique = &unique
	}
	extra := optbag.Without(bag, "directObject", "includeNotFound", "unique", "fields", "sort", "limit", "skip")
	if len(extra) > 0 {
		opts.Driver = extra
	}
	return opts
}

func (o *FindOptions) projected() bool { return len(o.Fields) > 0 }

// paged reports whether the options reshape a result list.
func (o *FindOptions) paged() bool {
	return len(o.Sort) > 0 || o.Limit > 0 || o.Skip > 0
}

func (o *FindOptions) driverOptions() *driver.FindOptions {
	return &driver.FindOptions{
		Fields: o.Fields,
		Sort:   o.Sort,
		Limit:  o.Limit,
		Skip:   o.Skip,
		Extra:  o.Driver,
	}
}

func findOptions(opts *FindOptions) *FindOptions {
	if opts == nil {
		return &FindOptions{}
	}
	return opts
}

// Model is the class-level handle of one collection.
type Model struct {
	name   string
	schema *schema.Schema
	pool   *Pool
	cache  *cache.Cache
	logger *slog.Logger
	flight singleflight.Group

	mu sync.RWMutex
	// indexes is the index key registry: field name to unique flag.
	indexes map[string]bool
	// finders maps a lowercased field name to the field.
	finders map[string]string

	cacheOpts []cache.Option
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithCache makes the model use c instead of building its own.
func WithCache(c *cache.Cache) ModelOption {
	return func(m *Model) {
		m.cache = c
	}
}

// WithCacheMetrics reports the model cache's events to metrics.
func WithCacheMetrics(metrics cache.Metrics) ModelOption {
	return func(m *Model) {
		m.cacheOpts = append(m.cacheOpts, cache.WithMetrics(metrics))
	}
}

// NewModel binds s to the named collection of pool. The collection is
// opened on first use.
func NewModel(pool *Pool, collection string, s *schema.Schema, opts ...ModelOption) (*Model, error) {
	if pool == nil {
		return nil, types.InvalidSchema("model %s: pool is nil", collection)
	}
	if s == nil {
		return nil, types.InvalidSchema("model %s: schema is nil", collection)
	}
	if err := validation.ValidateCollectionName(collection); err != nil {
		return nil, types.InvalidSchema("%v", err)
	}
	m := &Model{
		name:    collection,
		schema:  s,
		pool:    pool,
		logger:  pool.Logger().With("collection", collection),
		indexes: make(map[string]bool),
		finders: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = cache.New(pool.Config().CacheConfig(), m.cacheOpts...)
	}
	return m, nil
}

// Name returns the collection name.
func (m *Model) Name() string { return m.name }

func (m *Model) Schema() *schema.Schema { return m.schema }

func (m *Model) Cache() *cache.Cache { return m.cache }

func (m *Model) collection(ctx context.Context) (driver.Collection, error) {
	return m.pool.Collection(ctx, m.name)
}

// New validates doc and wraps it in a transient instance.
func (m *Model) New(doc types.Document) (*Instance, error) {
	validated, err := m.schema.Validate(doc)
	if err != nil {
		return nil, err
	}
	return m.wrap(validated, false, false), nil
}

// wrap builds an instance around a document the caller no longer uses.
func (m *Model) wrap(doc types.Document, raw, persisted bool) *Instance {
	inst := &Instance{
		model:     m,
		doc:       doc,
		raw:       raw,
		persisted: persisted,
	}
	if persisted {
		inst.original = types.Clone(doc)
	}
	return inst
}

// decode turns a stored document into its model form.
func (m *Model) decode(doc types.Document, opts *FindOptions) (types.Document, error) {
	switch {
	case opts.DirectObject:
		return doc, nil
	case opts.projected():
		return m.schema.ValidatePartial(doc)
	default:
		return m.schema.Validate(doc)
	}
}

// FindOne returns the first document matching query, or (nil, nil).
func (m *Model) FindOne(ctx context.Context, query types.Document, opts *FindOptions) (*Instance, error) {
	opts = findOptions(opts)
	doc, err := m.loadOne(ctx, query, opts)
	if err != nil || doc == nil {
		return nil, err
	}
	return m.wrap(doc, opts.DirectObject, true), nil
}

// FindOneRaw returns the first matching document as stored.
func (m *Model) FindOneRaw(ctx context.Context, query types.Document, opts *FindOptions) (types.Document, error) {
	opts = findOptions(opts)
	coll, err := m.collection(ctx)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("storage call", "op", "findOne")
	return coll.FindOne(ctx, query, opts.driverOptions())
}

func (m *Model) loadOne(ctx context.Context, query types.Document, opts *FindOptions) (types.Document, error) {
	doc, err := m.FindOneRaw(ctx, query, opts)
	if err != nil || doc == nil {
		return nil, err
	}
	return m.decode(doc, opts)
}

// Find returns every document matching query. Results are never cached.
func (m *Model) Find(ctx context.Context, query types.Document, opts *FindOptions) ([]*Instance, error) {
	opts = findOptions(opts)
	docs, err := m.loadMany(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return m.wrapAll(docs, opts), nil
}

func (m *Model) loadMany(ctx context.Context, query types.Document, opts *FindOptions) ([]types.Document, error) {
	coll, err := m.collection(ctx)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("storage call", "op", "find")
	docs, err := coll.Find(ctx, query, opts.driverOptions())
	if err != nil {
		return nil, err
	}
	for i, doc := range docs {
		if docs[i], err = m.decode(doc, opts); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (m *Model) wrapAll(docs []types.Document, opts *FindOptions) []*Instance {
	out := make([]*Instance, len(docs))
	for i, doc := range docs {
		out[i] = m.wrap(doc, opts.DirectObject, true)
	}
	return out
}

// Pluck returns one field's value from every matching document, nil where
// the field is absent.
func (m *Model) Pluck(ctx context.Context, query types.Document, field string, opts *FindOptions) ([]any, error) {
	o := *findOptions(opts)
	o.Fields = []string{field}
	docs, err := m.loadMany(ctx, query, &o)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(docs))
	for i, doc := range docs {
		out[i], _ = types.GetPath(doc, field)
	}
	return out, nil
}

// FindAll returns every document of the collection. The unpaged,
// unprojected result is cached.
func (m *Model) FindAll(ctx context.Context, opts *FindOptions) ([]*Instance, error) {
	opts = findOptions(opts)
	if opts.projected() || opts.paged() {
		return m.Find(ctx, types.Document{}, opts)
	}

	key := m.cacheKey(allKey, opts)
	if v, ok := m.cache.Get(key); ok {
		return m.wrapAll(cloneAll(v.([]types.Document)), opts), nil
	}
	v, err, _ := m.flight.Do(key, func() (any, error) {
		docs, err := m.loadMany(ctx, types.Document{}, opts)
		if err != nil {
			return nil, err
		}
		m.cache.Set(key, docs)
		return docs, nil
	})
	if err != nil {
		return nil, err
	}
	return m.wrapAll(cloneAll(v.([]types.Document)), opts), nil
}

// Count returns the number of documents matching query.
func (m *Model) Count(ctx context.Context, query types.Document) (int, error) {
	coll, err := m.collection(ctx)
	if err != nil {
		return 0, err
	}
	m.logger.Debug("storage call", "op", "count")
	return coll.Count(ctx, query)
}

// RemoveWhere deletes every document matching query and empties the
// model's cache.
func (m *Model) RemoveWhere(ctx context.Context, query types.Document) (int, error) {
	coll, err := m.collection(ctx)
	if err != nil {
		return 0, err
	}
	m.logger.Debug("storage call", "op", "remove")
	n, err := coll.Remove(ctx, query, nil)
	if err != nil {
		return 0, err
	}
	m.cache.Reset()
	return n, nil
}

func cloneAll(docs []types.Document) []types.Document {
	out := make([]types.Document, len(docs))
	for i, doc := range docs {
		out[i] = types.Clone(doc)
	}
	return out
}
