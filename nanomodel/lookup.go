package nanomodel

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/arthur-debert/nanomodel/internal/validation"
	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/types"
)

const (
	allKey    = "::all"
	rawSuffix = ":raw"
)

// missing is cached for lookups that found nothing.
type missing struct{}

var notFound = missing{}

func idKey(id types.ID) string { return fieldKey(types.IDField, id) }

// fieldKey renders <field>:<value>. Values are coerced through the schema
// before they get here, so equal values render equally.
func fieldKey(field string, v any) string {
	switch v := v.(type) {
	case types.ID:
		return field + ":" + v.Hex()
	case time.Time:
		return field + ":" + v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%s:%v", field, v)
	}
}

func (m *Model) cacheKey(key string, opts *FindOptions) string {
	if opts.DirectObject {
		return key + rawSuffix
	}
	return key
}

// cached resolves a single-document lookup through the cache. Concurrent
// misses on the same key share one storage call. Projected lookups bypass
// the cache. A miss yields (nil, nil).
func (m *Model) cached(ctx context.Context, key string, query types.Document, opts *FindOptions) (types.Document, error) {
	if opts.projected() {
		return m.loadOne(ctx, query, opts)
	}
	key = m.cacheKey(key, opts)
	if v, ok := m.cache.Get(key); ok {
		if v == notFound {
			return nil, nil
		}
		return types.Clone(v.(types.Document)), nil
	}

	v, err, _ := m.flight.Do(key, func() (any, error) {
		doc, err := m.loadOne(ctx, query, opts)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			m.cache.Set(key, notFound)
			return notFound, nil
		}
		m.cache.Set(key, doc)
		return doc, nil
	})
	if err != nil || v == notFound {
		return nil, err
	}
	return types.Clone(v.(types.Document)), nil
}

// miss decides what a lookup that found nothing returns.
func (m *Model) miss(key any, opts *FindOptions, unique bool) (*Instance, error) {
	if opts.IncludeNotFound || !unique {
		return nil, nil
	}
	return nil, types.NotFound(m.name, key)
}

// FindByID loads a document by identity. id is an ID or its 24-hex form;
// anything else fails with InvalidIdentifier before storage is touched. A
// miss is a NotFound error unless IncludeNotFound is set.
func (m *Model) FindByID(ctx context.Context, id any, opts *FindOptions) (*Instance, error) {
	opts = findOptions(opts)
	oid, err := types.ParseID(id)
	if err != nil {
		return nil, err
	}
	doc, err := m.cached(ctx, idKey(oid), types.Document{types.IDField: oid}, opts)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return m.miss(oid, opts, true)
	}
	return m.wrap(doc, opts.DirectObject, true), nil
}

// EnsureIndex creates an index. A single, non-dotted field also gets a
// findBy<Field> finder and its cache entries are purged on writes.
func (m *Model) EnsureIndex(ctx context.Context, spec driver.IndexSpec, opts *driver.IndexOptions) error {
	coll, err := m.collection(ctx)
	if err != nil {
		return err
	}
	m.logger.Debug("storage call", "op", "ensureIndex", "index", spec.Name())
	if err := coll.EnsureIndex(ctx, spec, opts); err != nil {
		return err
	}
	if len(spec) != 1 || strings.Contains(spec[0].Field, ".") {
		return nil
	}
	field := spec[0].Field
	unique := opts != nil && opts.Unique

	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[field] = unique
	m.finders[strings.ToLower(field)] = field
	return nil
}

// FinderFunc looks a document up by one indexed field.
type FinderFunc func(ctx context.Context, value any, opts *FindOptions) (*Instance, error)

// Finder returns the finder registered for a field. The name may be the
// field ("email"), its capitalized form ("Email") or the finder name
// ("findByEmail").
func (m *Model) Finder(name string) (FinderFunc, bool) {
	if _, _, ok := m.resolveFinder(name); !ok {
		return nil, false
	}
	return func(ctx context.Context, value any, opts *FindOptions) (*Instance, error) {
		return m.FindBy(ctx, name, value, opts)
	}, true
}

// Finders lists the registered finder names, such as findByEmail.
func (m *Model) Finders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.finders))
	for _, field := range m.finders {
		out = append(out, finderName(field))
	}
	return out
}

func (m *Model) resolveFinder(name string) (string, bool, bool) {
	key := strings.ToLower(strings.TrimPrefix(name, "findBy"))
	m.mu.RLock()
	defer m.mu.RUnlock()
	field, ok := m.finders[key]
	if !ok {
		return "", false, false
	}
	return field, m.indexes[field], true
}

func finderName(field string) string {
	r, size := utf8.DecodeRuneInString(field)
	return "findBy" + string(unicode.ToUpper(r)) + field[size:]
}

// FindBy runs the finder registered by EnsureIndex. Unique lookups (by
// default, those on a unique index) fail with NotFound on a miss; others
// return (nil, nil).
func (m *Model) FindBy(ctx context.Context, finder string, value any, opts *FindOptions) (*Instance, error) {
	opts = findOptions(opts)
	field, unique, ok := m.resolveFinder(finder)
	if !ok {
		return nil, types.BadQuery("%s has no finder %s", m.name, finder)
	}
	if err := validation.ValidateSimpleType(value, field); err != nil {
		return nil, types.BadQuery("%s", err.Error())
	}
	if _, declared := m.schema.Lookup(field); declared {
		coerced, err := m.schema.ValidatePath(field, value)
		if err != nil {
			return nil, err
		}
		value = coerced
	}
	if opts.Unique != nil {
		unique = *opts.Unique
	}

	doc, err := m.cached(ctx, fieldKey(field, value), types.Document{field: value}, opts)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return m.miss(value, opts, unique)
	}
	return m.wrap(doc, opts.DirectObject, true), nil
}

// purge drops the cache entries a write to the document with id may have
// made stale. docs are the document's states before and after the write;
// indexed field values are taken from both.
func (m *Model) purge(id types.ID, docs ...types.Document) {
	keys := []string{allKey}
	if !id.IsZero() {
		keys = append(keys, idKey(id))
	}
	m.mu.RLock()
	for field := range m.indexes {
		for _, doc := range docs {
			if v, ok := types.GetPath(doc, field); ok && v != nil {
				keys = append(keys, fieldKey(field, v))
			}
		}
	}
	m.mu.RUnlock()

	for _, key := range keys {
		m.cache.Del(key)
		m.cache.Del(key + rawSuffix)
	}
}
