package nanomodel

import (
	"context"

	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/types"
)

// LoadDbRef resolves a list of references in one storage round trip. The
// result has one slot per input id, in input order; a slot is nil when its
// id is nil or names no document. Repeated ids share one instance.
//
// Every id is checked before anything is loaded: a malformed one fails the
// whole call with InvalidIdentifier.
func (m *Model) LoadDbRef(ctx context.Context, ids []any, opts *FindOptions) ([]*Instance, error) {
	opts = findOptions(opts)
	parsed := make([]types.ID, len(ids))
	present := make([]bool, len(ids))
	var unique []types.ID
	seen := make(map[types.ID]bool, len(ids))
	for i, raw := range ids {
		if raw == nil {
			continue
		}
		id, err := types.ParseID(raw)
		if err != nil {
			return nil, err
		}
		parsed[i], present[i] = id, true
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	found := make(map[types.ID]types.Document, len(unique))
	var misses []types.ID
	for _, id := range unique {
		if opts.projected() {
			misses = append(misses, id)
			continue
		}
		v, ok := m.cache.Get(m.cacheKey(idKey(id), opts))
		switch {
		case !ok:
			misses = append(misses, id)
		case v != notFound:
			found[id] = types.Clone(v.(types.Document))
		}
	}

	if len(misses) > 0 {
		if err := m.loadRefs(ctx, misses, found, opts); err != nil {
			return nil, err
		}
	}

	instances := make(map[types.ID]*Instance, len(found))
	for id, doc := range found {
		instances[id] = m.wrap(doc, opts.DirectObject, true)
	}
	out := make([]*Instance, len(ids))
	for i := range ids {
		if present[i] {
			out[i] = instances[parsed[i]]
		}
	}
	return out, nil
}

// loadRefs fetches ids with a single $in query into found and caches the
// outcome of every id, hits and misses alike.
func (m *Model) loadRefs(ctx context.Context, ids []types.ID, found map[types.ID]types.Document, opts *FindOptions) error {
	coll, err := m.collection(ctx)
	if err != nil {
		return err
	}
	in := make([]any, len(ids))
	for i, id := range ids {
		in[i] = id
	}
	m.logger.Debug("storage call", "op", "find", "refs", len(ids))
	docs, err := coll.Find(ctx,
		types.Document{types.IDField: map[string]any{"$in": in}},
		&driver.FindOptions{Fields: opts.Fields, Extra: opts.Driver},
	)
	if err != nil {
		return err
	}

	for _, raw := range docs {
		id, ok := types.DocumentID(raw)
		if !ok {
			continue
		}
		doc, err := m.decode(raw, opts)
		if err != nil {
			return err
		}
		found[id] = doc
		if !opts.projected() {
			m.cache.Set(m.cacheKey(idKey(id), opts), types.Clone(doc))
		}
	}
	if !opts.projected() {
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				m.cache.Set(m.cacheKey(idKey(id), opts), notFound)
			}
		}
	}
	return nil
}

// LoadDbRefOne resolves a single reference. A nil id or a dangling
// reference yields (nil, nil).
func (m *Model) LoadDbRefOne(ctx context.Context, id any, opts *FindOptions) (*Instance, error) {
	out, err := m.LoadDbRef(ctx, []any{id}, opts)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
