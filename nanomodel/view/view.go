// Package view joins a base model with the documents its fields reference
// into one read-only result.
//
//	posts, _ := view.New(postsModel, map[string]view.Resolver{
//		"author":    view.Ref(usersModel),
//		"reviewers": view.Refs(usersModel),
//	})
//	res, _ := posts.FindByID(ctx, id, nil)
//	res.Get("author.name")
//
// Every field is resolved concurrently. The first failure cancels the rest
// and is the only thing returned: a view never yields a partial result.
package view

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/arthur-debert/nanomodel/internal/join"
	"github.com/arthur-debert/nanomodel/nanomodel"
	"github.com/arthur-debert/nanomodel/types"
)

// Source loads base documents. *nanomodel.Model implements it.
type Source interface {
	Name() string
	FindByID(ctx context.Context, id any, opts *nanomodel.FindOptions) (*nanomodel.Instance, error)
	FindOne(ctx context.Context, query types.Document, opts *nanomodel.FindOptions) (*nanomodel.Instance, error)
}

// Loader resolves references. *nanomodel.Model implements it.
type Loader interface {
	LoadDbRef(ctx context.Context, ids []any, opts *nanomodel.FindOptions) ([]*nanomodel.Instance, error)
}

// Kind classifies a Resolver.
type Kind int

const (
	KindRef Kind = iota + 1
	KindRefs
	KindNested
	KindFunc
)

func (k Kind) String() string {
	switch k {
	case KindRef:
		return "ref"
	case KindRefs:
		return "refs"
	case KindNested:
		return "nested"
	case KindFunc:
		return "func"
	default:
		return "unknown"
	}
}

// FieldFunc computes a field from a copy of the base document.
type FieldFunc func(ctx context.Context, base types.Document) (any, error)

// Resolver says how one field of a view is filled in.
type Resolver struct {
	kind   Kind
	loader Loader
	nested *View
	fn     FieldFunc
}

func (r Resolver) Kind() Kind { return r.kind }

// Ref replaces a reference id with the referenced document, or nil.
func Ref(l Loader) Resolver { return Resolver{kind: KindRef, loader: l} }

// Refs replaces an array of reference ids with the referenced documents,
// keeping order; dangling references become nil.
func Refs(l Loader) Resolver { return Resolver{kind: KindRefs, loader: l} }

// Nested resolves a reference id through another view.
func Nested(v *View) Resolver { return Resolver{kind: KindNested, nested: v} }

// Func fills a field from fn.
func Func(fn FieldFunc) Resolver { return Resolver{kind: KindFunc, fn: fn} }

type field struct {
	path     string
	resolver Resolver
}

// View is a base source plus field resolvers. It is immutable and safe for
// concurrent use.
type View struct {
	base   Source
	fields []field
	logger *slog.Logger
	// limit caps concurrent field resolutions; 0 resolves all at once.
	limit int
}

// Option configures a View.
type Option func(*View)

func WithLogger(logger *slog.Logger) Option {
	return func(v *View) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithConcurrency resolves at most n fields at a time.
func WithConcurrency(n int) Option {
	return func(v *View) {
		if n > 0 {
			v.limit = n
		}
	}
}

// New checks every resolver and builds the view. Field paths may be
// dotted.
func New(base Source, fields map[string]Resolver, opts ...Option) (*View, error) {
	if base == nil {
		return nil, types.InvalidSchema("view: base source is nil")
	}
	v := &View{base: base, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}

	paths := make([]string, 0, len(fields))
	for path := range fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		r := fields[path]
		if err := r.check(); err != nil {
			return nil, types.InvalidSchema("view %s: field %s: %v", base.Name(), path, err)
		}
		v.fields = append(v.fields, field{path: path, resolver: r})
	}
	return v, nil
}

func (r Resolver) check() error {
	switch r.kind {
	case KindRef, KindRefs:
		if r.loader == nil {
			return fmt.Errorf("%s resolver has no model", r.kind)
		}
	case KindNested:
		if r.nested == nil {
			return fmt.Errorf("nested resolver has no view")
		}
	case KindFunc:
		if r.fn == nil {
			return fmt.Errorf("func resolver has no function")
		}
	default:
		return fmt.Errorf("unknown resolver")
	}
	return nil
}

// Name returns the base source's name.
func (v *View) Name() string { return v.base.Name() }

// FindByID loads the base document by id and resolves every field. Misses
// follow the base source's rules for opts.
func (v *View) FindByID(ctx context.Context, id any, opts *nanomodel.FindOptions) (*Result, error) {
	inst, err := v.base.FindByID(ctx, id, opts)
	if err != nil || inst == nil {
		return nil, err
	}
	return v.resolve(ctx, inst.Document())
}

// FindOne loads the first matching base document and resolves every field.
// No match yields (nil, nil).
func (v *View) FindOne(ctx context.Context, query types.Document, opts *nanomodel.FindOptions) (*Result, error) {
	inst, err := v.base.FindOne(ctx, query, opts)
	if err != nil || inst == nil {
		return nil, err
	}
	return v.resolve(ctx, inst.Document())
}

func (v *View) resolve(ctx context.Context, base types.Document) (*Result, error) {
	v.logger.Debug("resolving view", "view", v.base.Name(), "fields", len(v.fields))
	values := make([]any, len(v.fields))
	err := join.Limited(ctx, len(v.fields), v.limit, func(ctx context.Context, i int) error {
		f := v.fields[i]
		value, err := f.resolver.resolve(ctx, f.path, base)
		if err != nil {
			return err
		}
		values[i] = value
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := types.Clone(base)
	for i, f := range v.fields {
		if !types.SetPath(out, f.path, types.CloneValue(values[i])) {
			return nil, types.TypeMismatch(f.path, "document", out)
		}
	}
	return &Result{doc: out}, nil
}

func (r Resolver) resolve(ctx context.Context, path string, base types.Document) (any, error) {
	value, _ := types.GetPath(base, path)
	switch r.kind {
	case KindRef:
		if value == nil {
			return nil, nil
		}
		out, err := r.loader.LoadDbRef(ctx, []any{value}, nil)
		if err != nil {
			return nil, err
		}
		return document(out[0]), nil
	case KindRefs:
		if value == nil {
			return nil, nil
		}
		ids, ok := types.AsSlice(value)
		if !ok {
			return nil, types.TypeMismatch(path, "array", value)
		}
		out, err := r.loader.LoadDbRef(ctx, ids, nil)
		if err != nil {
			return nil, err
		}
		docs := make([]any, len(out))
		for i, inst := range out {
			docs[i] = document(inst)
		}
		return docs, nil
	case KindNested:
		if value == nil {
			return nil, nil
		}
		res, err := r.nested.FindByID(ctx, value, &nanomodel.FindOptions{IncludeNotFound: true})
		if err != nil || res == nil {
			return nil, err
		}
		return map[string]any(res.doc), nil
	case KindFunc:
		return r.fn(ctx, types.Clone(base))
	}
	return nil, fmt.Errorf("unknown resolver")
}

// document returns the instance's document, or an untyped nil for a
// missing reference.
func document(inst *nanomodel.Instance) any {
	if inst == nil {
		return nil
	}
	return map[string]any(inst.Document())
}

// Result is a resolved view document. It cannot be modified: every
// accessor returns a copy.
type Result struct {
	doc types.Document
}

func (r *Result) ID() types.ID {
	id, _ := types.DocumentID(r.doc)
	return id
}

// Get returns a copy of the value at a dotted path.
func (r *Result) Get(path string) (any, bool) {
	v, ok := types.GetPath(r.doc, path)
	if !ok {
		return nil, false
	}
	return types.CloneValue(v), true
}

// Document returns a deep copy of the whole result.
func (r *Result) Document() types.Document { return types.Clone(r.doc) }
