package nanomodel

import (
	"strconv"

	"github.com/arthur-debert/nanomodel/internal/matching"
	"github.com/arthur-debert/nanomodel/nanomodel/schema"
	"github.com/arthur-debert/nanomodel/types"
)

// Embedded is a handle on a sub-document of an instance. It holds a path,
// not a copy: reads and writes go to the owning instance's document.
type Embedded struct {
	inst *Instance
	path string
	node *schema.Node
}

// Array is a handle on an array field of an instance. Like Embedded it
// reads and writes the owning document.
type Array struct {
	inst *Instance
	path string
	node *schema.Node
}

// Embedded returns the handle for an embedded document at path. Handles
// are created once per path and reused.
func (i *Instance) Embedded(path string) (*Embedded, error) {
	if h, ok := i.embedded[path]; ok {
		return h, nil
	}
	node, err := i.handleNode(path, schema.KindEmbedded)
	if err != nil {
		return nil, err
	}
	if i.embedded == nil {
		i.embedded = make(map[string]*Embedded)
	}
	h := &Embedded{inst: i, path: path, node: node}
	i.embedded[path] = h
	return h, nil
}

// Array returns the handle for an array field at path.
func (i *Instance) Array(path string) (*Array, error) {
	if h, ok := i.arrays[path]; ok {
		return h, nil
	}
	node, err := i.handleNode(path, schema.KindArray)
	if err != nil {
		return nil, err
	}
	if i.arrays == nil {
		i.arrays = make(map[string]*Array)
	}
	h := &Array{inst: i, path: path, node: node}
	i.arrays[path] = h
	return h, nil
}

func (i *Instance) handleNode(path string, kind schema.Kind) (*schema.Node, error) {
	node, ok := i.model.schema.Lookup(path)
	if !ok {
		return nil, types.SchemaDrift(path)
	}
	if node.Kind != kind {
		return nil, types.TypeMismatch(path, kind.String(), node.Kind.String()+" field")
	}
	return node, nil
}

func (e *Embedded) Path() string { return e.path }

// Exists reports whether the sub-document is present.
func (e *Embedded) Exists() bool {
	v, ok := types.GetPath(e.inst.doc, e.path)
	return ok && v != nil
}

func (e *Embedded) Get(field string) (any, bool) {
	return e.inst.Get(types.JoinPath(e.path, field))
}

// Set validates and stores a field, creating the sub-document if needed.
func (e *Embedded) Set(field string, value any) error {
	return e.inst.Set(types.JoinPath(e.path, field), value)
}

// Document returns a copy of the sub-document, or nil when absent.
func (e *Embedded) Document() types.Document {
	v, ok := types.GetPath(e.inst.doc, e.path)
	if !ok {
		return nil
	}
	m, ok := types.AsMap(v)
	if !ok {
		return nil
	}
	return types.Clone(m)
}

func (e *Embedded) Embedded(field string) (*Embedded, error) {
	return e.inst.Embedded(types.JoinPath(e.path, field))
}

func (e *Embedded) Array(field string) (*Array, error) {
	return e.inst.Array(types.JoinPath(e.path, field))
}

func (a *Array) Path() string { return a.path }

func (a *Array) items() []any {
	v, _ := types.GetPath(a.inst.doc, a.path)
	items, _ := types.AsSlice(v)
	return items
}

func (a *Array) Len() int { return len(a.items()) }

// At returns a copy of element n.
func (a *Array) At(n int) (any, bool) {
	items := a.items()
	if n < 0 || n >= len(items) {
		return nil, false
	}
	return types.CloneValue(items[n]), true
}

// Values returns a copy of the whole array.
func (a *Array) Values() []any {
	items := a.items()
	out := make([]any, len(items))
	for n, v := range items {
		out[n] = types.CloneValue(v)
	}
	return out
}

// Push validates values against the element node and appends them. Nothing
// is appended when any value fails.
func (a *Array) Push(values ...any) error {
	items := a.items()
	next := make([]any, len(items), len(items)+len(values))
	copy(next, items)
	for _, v := range values {
		cv, err := a.node.Elem.Validate(v, a.elemPath(len(next)))
		if err != nil {
			return err
		}
		next = append(next, cv)
	}
	return a.store(next)
}

// Set validates and replaces element n.
func (a *Array) Set(n int, value any) error {
	items := a.items()
	if n < 0 || n >= len(items) {
		return types.BadQuery("%s: index %d out of range", a.path, n)
	}
	cv, err := a.node.Elem.Validate(value, a.elemPath(n))
	if err != nil {
		return err
	}
	next := append([]any(nil), items...)
	next[n] = cv
	return a.store(next)
}

// RemoveAt deletes element n.
func (a *Array) RemoveAt(n int) error {
	items := a.items()
	if n < 0 || n >= len(items) {
		return types.BadQuery("%s: index %d out of range", a.path, n)
	}
	next := make([]any, 0, len(items)-1)
	next = append(next, items[:n]...)
	next = append(next, items[n+1:]...)
	return a.store(next)
}

// Find returns copies of the elements matching query, in order. Elements
// that are not documents never match.
func (a *Array) Find(query types.Document) ([]any, error) {
	found, err := matching.Find(query, a.items())
	if err != nil {
		return nil, err
	}
	out := make([]any, len(found))
	for n, v := range found {
		out[n] = types.CloneValue(v)
	}
	return out, nil
}

// FindOne returns a copy of the first element matching query.
func (a *Array) FindOne(query types.Document) (any, bool, error) {
	v, ok, err := matching.FindOne(query, a.items())
	if err != nil || !ok {
		return nil, false, err
	}
	return types.CloneValue(v), true, nil
}

// IndexOf returns the position of the first element matching query, or -1.
func (a *Array) IndexOf(query types.Document) (int, error) {
	return matching.IndexOf(query, a.items())
}

// Remove deletes every element matching query and returns how many were
// removed. The array is left untouched on error.
func (a *Array) Remove(query types.Document) (int, error) {
	next, n, err := matching.Remove(query, append([]any(nil), a.items()...))
	if err != nil || n == 0 {
		return 0, err
	}
	return n, a.store(next)
}

// Embedded returns the handle for element n when elements are documents.
func (a *Array) Embedded(n int) (*Embedded, error) {
	return a.inst.Embedded(a.elemPath(n))
}

func (a *Array) elemPath(n int) string {
	return types.JoinPath(a.path, strconv.Itoa(n))
}

func (a *Array) store(items []any) error {
	if !types.SetPath(a.inst.doc, a.path, items) {
		return types.TypeMismatch(a.path, "array", a.inst.doc)
	}
	return nil
}
