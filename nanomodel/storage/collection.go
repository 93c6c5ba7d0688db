package storage

import (
	"context"

	"github.com/arthur-debert/nanomodel/internal/docops"
	"github.com/arthur-debert/nanomodel/internal/matching"
	"github.com/arthur-debert/nanomodel/internal/optbag"
	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/types"
)

// collection implements driver.Collection. Stored documents are never
// mutated in place: writes build a new document and swap it in, so a
// failed write can be rolled back by restoring the previous slice.
type collection struct {
	engine *Engine
	name   string
}

func (c *collection) Name() string { return c.name }

func (c *collection) FindOne(ctx context.Context, query types.Document, opts *driver.FindOptions) (types.Document, error) {
	sel := selection(query, opts)
	sel.Limit = 1
	docs, err := c.find(ctx, "findOne", sel)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (c *collection) Find(ctx context.Context, query types.Document, opts *driver.FindOptions) ([]types.Document, error) {
	return c.find(ctx, "find", selection(query, opts))
}

func (c *collection) find(ctx context.Context, op string, sel docops.Selection) ([]types.Document, error) {
	var out []types.Document
	err := c.engine.read(ctx, c.name, op, func(data *CollectionData) error {
		var err error
		out, err = docops.Select(data.Documents, sel)
		return err
	})
	return out, err
}

func (c *collection) Count(ctx context.Context, query types.Document) (int, error) {
	if err := matching.Validate(query); err != nil {
		return 0, err
	}
	n := 0
	err := c.engine.read(ctx, c.name, "count", func(data *CollectionData) error {
		for _, doc := range data.Documents {
			if matching.Match(query, doc) == matching.Matched {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (c *collection) Insert(ctx context.Context, doc types.Document, opts types.Options) (types.ID, error) {
	stored, id, err := prepareNew(doc)
	if err != nil {
		return types.NilID, err
	}
	err = c.engine.write(ctx, c.name, "insert", func(data *CollectionData) error {
		if indexOfID(data.Documents, id) >= 0 {
			return types.DuplicateKey(c.name, types.IDField, id)
		}
		if err := c.checkUnique(data, stored, -1); err != nil {
			return err
		}
		data.Documents = append(data.Documents, stored)
		return nil
	})
	if err != nil {
		return types.NilID, err
	}
	return id, nil
}

func (c *collection) Save(ctx context.Context, doc types.Document, opts types.Options) error {
	stored, id, err := prepareNew(doc)
	if err != nil {
		return err
	}
	return c.engine.write(ctx, c.name, "save", func(data *CollectionData) error {
		i := indexOfID(data.Documents, id)
		if err := c.checkUnique(data, stored, i); err != nil {
			return err
		}
		if i < 0 {
			data.Documents = append(data.Documents, stored)
		} else {
			data.Documents[i] = stored
		}
		return nil
	})
}

func (c *collection) Update(ctx context.Context, query, update types.Document, opts *driver.UpdateOptions) (int, error) {
	if err := matching.Validate(query); err != nil {
		return 0, err
	}
	if _, err := docops.IsOperatorUpdate(update); err != nil {
		return 0, err
	}
	if opts == nil {
		opts = &driver.UpdateOptions{}
	}

	modified := 0
	err := c.engine.write(ctx, c.name, "update", func(data *CollectionData) error {
		for i, doc := range data.Documents {
			ok, err := matching.Matches(query, doc)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			next := types.Clone(doc)
			if err := docops.Apply(next, update); err != nil {
				return err
			}
			if err := c.checkUnique(data, next, i); err != nil {
				return err
			}
			data.Documents[i] = next
			modified++
			if !opts.Multi {
				break
			}
		}

		if modified == 0 && opts.Upsert {
			seed := docops.SeedFromQuery(query)
			if err := docops.Apply(seed, update); err != nil {
				return err
			}
			stored, _, err := prepareNew(seed)
			if err != nil {
				return err
			}
			if err := c.checkUnique(data, stored, -1); err != nil {
				return err
			}
			data.Documents = append(data.Documents, stored)
			modified = 1
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return modified, nil
}

// Remove deletes matching documents. The "single" option limits it to the
// first match.
func (c *collection) Remove(ctx context.Context, query types.Document, opts types.Options) (int, error) {
	if err := matching.Validate(query); err != nil {
		return 0, err
	}
	single := optbag.Bool(opts, "single", false)

	removed := 0
	err := c.engine.write(ctx, c.name, "remove", func(data *CollectionData) error {
		if !single {
			kept, n, err := matching.Remove(query, data.Documents)
			if err != nil {
				return err
			}
			data.Documents, removed = kept, n
			return nil
		}
		i, err := matching.IndexOf(query, data.Documents)
		if err != nil || i < 0 {
			return err
		}
		data.Documents = append(data.Documents[:i], data.Documents[i+1:]...)
		removed = 1
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (c *collection) EnsureIndex(ctx context.Context, spec driver.IndexSpec, opts *driver.IndexOptions) error {
	if len(spec) == 0 {
		return types.BadQuery("index on %s has no fields", c.name)
	}
	if opts == nil {
		opts = &driver.IndexOptions{}
	}
	idx := IndexData{
		Name:   opts.Name,
		Fields: spec.Fields(),
		Unique: opts.Unique,
		Sparse: opts.Sparse,
	}
	if idx.Name == "" {
		idx.Name = spec.Name()
	}

	return c.engine.write(ctx, c.name, "ensureIndex", func(data *CollectionData) error {
		for _, existing := range data.Indexes {
			if existing.Name == idx.Name {
				return nil
			}
		}
		data.Indexes = append(data.Indexes, idx)
		if !idx.Unique {
			return nil
		}
		for i, doc := range data.Documents {
			if err := c.checkUnique(data, doc, i); err != nil {
				return err
			}
		}
		return nil
	})
}

// checkUnique verifies doc against the unique indexes. self is the
// position doc replaces, or -1 for a new document.
func (c *collection) checkUnique(data *CollectionData, doc types.Document, self int) error {
	for _, idx := range data.Indexes {
		if !idx.Unique {
			continue
		}
		key, ok := indexKey(doc, idx)
		if !ok {
			continue
		}
		for i, other := range data.Documents {
			if i == self {
				continue
			}
			otherKey, ok := indexKey(other, idx)
			if ok && matching.Equal(key, otherKey) {
				return types.DuplicateKey(c.name, idx.Name, key[0])
			}
		}
	}
	return nil
}

// indexKey extracts the indexed values. Sparse indexes skip documents
// that lack every indexed field.
func indexKey(doc types.Document, idx IndexData) ([]any, bool) {
	key := make([]any, len(idx.Fields))
	present := false
	for i, f := range idx.Fields {
		v, ok := types.GetPath(doc, f)
		if ok {
			present = true
		}
		key[i] = v
	}
	if idx.Sparse && !present {
		return nil, false
	}
	return key, true
}

// prepareNew copies doc and makes sure it carries an identity.
func prepareNew(doc types.Document) (types.Document, types.ID, error) {
	stored := types.Clone(doc)
	if stored == nil {
		stored = types.Document{}
	}
	raw, ok := stored[types.IDField]
	if !ok || raw == nil {
		id := types.NewID()
		stored[types.IDField] = id
		return stored, id, nil
	}
	id, err := types.ParseID(raw)
	if err != nil {
		return nil, types.NilID, err
	}
	stored[types.IDField] = id
	return stored, id, nil
}

func indexOfID(docs []types.Document, id types.ID) int {
	for i, doc := range docs {
		if docID, ok := types.DocumentID(doc); ok && docID == id {
			return i
		}
	}
	return -1
}

func selection(query types.Document, opts *driver.FindOptions) docops.Selection {
	sel := docops.Selection{Query: query}
	if opts != nil {
		sel.Fields = opts.Fields
		sel.Sort = opts.Sort
		sel.Skip = opts.Skip
		sel.Limit = opts.Limit
	}
	return sel
}
