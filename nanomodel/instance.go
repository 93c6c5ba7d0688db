package nanomodel

import (
	"context"
	"strconv"

	"github.com/arthur-debert/nanomodel/internal/docops"
	"github.com/arthur-debert/nanomodel/internal/optbag"
	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/nanomodel/schema"
	"github.com/arthur-debert/nanomodel/types"
)

// Instance is one document of a model. It owns its document: values come
// out of Get as copies and go in through Set, which validates them.
// Embedded and Array handles write through to the same document.
//
// An Instance is not safe for concurrent use.
type Instance struct {
	model *Model
	doc   types.Document
	// original is the document as last loaded or written, used to purge
	// cache entries keyed on values the write replaced.
	original types.Document

	raw       bool
	persisted bool
	removed   bool

	embedded map[string]*Embedded
	arrays   map[string]*Array
}

func (i *Instance) Model() *Model { return i.model }

// ID returns the document identity, or NilID before one is assigned.
func (i *Instance) ID() types.ID {
	id, _ := types.DocumentID(i.doc)
	return id
}

// IsNew reports whether the document has never been written.
func (i *Instance) IsNew() bool { return !i.persisted }

// IsRemoved reports whether Remove succeeded on this instance.
func (i *Instance) IsRemoved() bool { return i.removed }

// Document returns a deep copy of the document.
func (i *Instance) Document() types.Document { return types.Clone(i.doc) }

// Get returns a copy of the value at a dotted path.
func (i *Instance) Get(path string) (any, bool) {
	v, ok := types.GetPath(i.doc, path)
	if !ok {
		return nil, false
	}
	return types.CloneValue(v), true
}

// Set validates value against the node at path and stores it. Paths the
// schema does not declare fail with SchemaDrift.
func (i *Instance) Set(path string, value any) error {
	v, err := i.model.schema.ValidatePath(path, value)
	if err != nil {
		return err
	}
	if !types.SetPath(i.doc, path, v) {
		return types.TypeMismatch(path, "document", i.doc)
	}
	return nil
}

// Validate coerces the whole document in place.
func (i *Instance) Validate() error {
	validated, err := i.model.schema.Validate(i.doc)
	if err != nil {
		return err
	}
	i.doc = validated
	return nil
}

func (i *Instance) stale() error {
	if i.removed {
		return types.StaleInstance(i.model.name, i.ID())
	}
	return nil
}

// Save writes the document. A new instance is inserted and, when it had no
// _id, receives the one storage assigned; a persisted one replaces its
// stored version. The document is validated before storage is touched.
func (i *Instance) Save(ctx context.Context, opts types.Options) (types.ID, error) {
	if err := i.stale(); err != nil {
		return types.NilID, err
	}
	if !i.persisted {
		return i.insert(ctx, opts)
	}
	if err := i.Validate(); err != nil {
		return types.NilID, err
	}
	coll, err := i.model.collection(ctx)
	if err != nil {
		return types.NilID, err
	}
	i.model.logger.Debug("storage call", "op", "save", "id", i.ID().Hex())
	if err := coll.Save(ctx, i.Document(), opts); err != nil {
		return types.NilID, err
	}
	id := i.ID()
	i.written(id)
	return id, nil
}

// Insert writes the document as a new one, whatever its state. It is the
// only write allowed after Remove.
func (i *Instance) Insert(ctx context.Context, opts types.Options) (types.ID, error) {
	return i.insert(ctx, opts)
}

func (i *Instance) insert(ctx context.Context, opts types.Options) (types.ID, error) {
	if err := i.Validate(); err != nil {
		return types.NilID, err
	}
	coll, err := i.model.collection(ctx)
	if err != nil {
		return types.NilID, err
	}
	i.model.logger.Debug("storage call", "op", "insert")
	id, err := coll.Insert(ctx, i.Document(), opts)
	if err != nil {
		return types.NilID, err
	}
	if _, ok := i.doc[types.IDField]; !ok {
		i.doc[types.IDField] = id
	}
	i.persisted, i.removed = true, false
	i.written(id)
	return id, nil
}

// written records a successful write and purges the cache entries it
// affects.
func (i *Instance) written(id types.ID) {
	i.model.purge(id, i.original, i.doc)
	i.original = types.Clone(i.doc)
}

// Update applies an update document to the stored version. Every
// operator path must be declared: $set values and $push or $addToSet
// elements are coerced against their nodes, and the whole update is
// applied to a copy of the document, which must still validate, before
// storage is touched. $setpath names dotted paths, as a string or a list,
// whose current in-memory values are written with $set (or $unset when
// absent). On success the instance holds the updated copy.
func (i *Instance) Update(ctx context.Context, update types.Document, opts types.Options) error {
	if err := i.stale(); err != nil {
		return err
	}
	if !i.persisted {
		return types.BadQuery("%s: cannot update a document that was never saved", i.model.name)
	}
	upd, next, err := i.prepareUpdate(update)
	if err != nil {
		return err
	}

	coll, err := i.model.collection(ctx)
	if err != nil {
		return err
	}
	id := i.ID()
	i.model.logger.Debug("storage call", "op", "update", "id", id.Hex())
	n, err := coll.Update(ctx, types.Document{types.IDField: id}, upd, &driver.UpdateOptions{Extra: opts})
	if err != nil {
		return err
	}
	if n == 0 {
		return types.NotFound(i.model.name, id)
	}
	i.doc = next
	i.written(id)
	return nil
}

// prepareUpdate returns the update to send and the document the instance
// holds once it is applied.
func (i *Instance) prepareUpdate(update types.Document) (types.Document, types.Document, error) {
	upd := types.Clone(update)
	if optbag.Has(types.Options(upd), "$setpath") {
		paths := optbag.Strings(types.Options(upd), "$setpath")
		delete(upd, "$setpath")
		set, _ := types.AsMap(upd["$set"])
		if set == nil {
			set = map[string]any{}
		}
		unset, _ := types.AsMap(upd["$unset"])
		for _, p := range paths {
			if v, ok := types.GetPath(i.doc, p); ok {
				set[p] = v
				continue
			}
			if unset == nil {
				unset = map[string]any{}
			}
			unset[p] = true
		}
		if len(set) > 0 {
			upd["$set"] = set
		}
		if len(unset) > 0 {
			upd["$unset"] = unset
		}
	}

	isOps, err := docops.IsOperatorUpdate(upd)
	if err != nil {
		return nil, nil, err
	}
	if isOps {
		if err := i.coerceOperators(upd); err != nil {
			return nil, nil, err
		}
	} else {
		if upd, err = i.model.schema.Validate(upd); err != nil {
			return nil, nil, err
		}
	}

	next := types.Clone(i.doc)
	if err := docops.Apply(next, upd); err != nil {
		return nil, nil, err
	}
	validated, err := i.model.schema.Validate(next)
	if err != nil {
		return nil, nil, err
	}
	return upd, validated, nil
}

// coerceOperators checks operator paths against the schema and rewrites
// the values it can coerce in place.
func (i *Instance) coerceOperators(upd types.Document) error {
	s := i.model.schema
	for op, arg := range upd {
		fields, ok := types.AsMap(arg)
		if !ok {
			return types.BadQuery("%s requires a document", op)
		}
		for path, v := range fields {
			if path == types.IDField {
				continue
			}
			node, ok := s.Lookup(path)
			if !ok {
				return types.SchemaDrift(path)
			}
			switch op {
			case "$set":
				cv, err := s.ValidatePath(path, v)
				if err != nil {
					return err
				}
				fields[path] = cv
			case "$push", "$addToSet":
				cv, err := i.coerceElements(path, node, v)
				if err != nil {
					return err
				}
				fields[path] = cv
			case "$inc":
				if !numeric(node) {
					return types.TypeMismatch(path, "number", node.Kind.String()+" field")
				}
			}
		}
		upd[op] = fields
	}
	return nil
}

// coerceElements validates the values appended by $push or $addToSet,
// either a single element or {"$each": [...]}.
func (i *Instance) coerceElements(path string, node *schema.Node, arg any) (any, error) {
	if node.Kind == schema.KindPrimitive && node.Type == schema.Any {
		return arg, nil
	}
	if node.Kind != schema.KindArray {
		return nil, types.TypeMismatch(path, "array", node.Kind.String()+" field")
	}
	base := 0
	if current, ok := types.GetPath(i.doc, path); ok {
		items, _ := types.AsSlice(current)
		base = len(items)
	}
	elemPath := func(n int) string { return types.JoinPath(path, strconv.Itoa(base+n)) }

	if m, ok := types.AsMap(arg); ok {
		if each, ok := m["$each"]; ok {
			list, ok := types.AsSlice(each)
			if !ok {
				return nil, types.BadQuery("$each for %s requires an array", path)
			}
			out := make([]any, len(list))
			for n, v := range list {
				cv, err := node.Elem.Validate(v, elemPath(n))
				if err != nil {
					return nil, err
				}
				out[n] = cv
			}
			mods := types.Clone(m)
			mods["$each"] = out
			return mods, nil
		}
	}
	return node.Elem.Validate(arg, elemPath(0))
}

func numeric(node *schema.Node) bool {
	switch node.Kind {
	case schema.KindSpecial:
		return true
	case schema.KindPrimitive:
		return node.Type == schema.Number || node.Type == schema.Integer || node.Type == schema.Any
	}
	return false
}

// Remove deletes the stored document. Afterwards every call but Insert
// fails with StaleInstance.
func (i *Instance) Remove(ctx context.Context) error {
	if err := i.stale(); err != nil {
		return err
	}
	if !i.persisted {
		return types.BadQuery("%s: cannot remove a document that was never saved", i.model.name)
	}
	coll, err := i.model.collection(ctx)
	if err != nil {
		return err
	}
	id := i.ID()
	i.model.logger.Debug("storage call", "op", "remove", "id", id.Hex())
	if _, err := coll.Remove(ctx, types.Document{types.IDField: id}, types.Options{"single": true}); err != nil {
		return err
	}
	i.removed = true
	i.model.purge(id, i.original, i.doc)
	return nil
}

// Reload replaces the document with the stored version. Handles stay
// valid and see the new values.
func (i *Instance) Reload(ctx context.Context) error {
	if err := i.stale(); err != nil {
		return err
	}
	id := i.ID()
	opts := &FindOptions{DirectObject: i.raw}
	doc, err := i.model.loadOne(ctx, types.Document{types.IDField: id}, opts)
	if err != nil {
		return err
	}
	if doc == nil {
		return types.NotFound(i.model.name, id)
	}
	i.doc = doc
	i.original = types.Clone(doc)
	i.persisted = true
	i.model.purge(id)
	return nil
}
