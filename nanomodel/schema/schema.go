// Package schema compiles document definitions into validator trees.
//
// A definition maps field names to descriptors:
//
//	users, err := schema.New("users", schema.Definition{
//		"name":    schema.Field{Type: schema.String, Required: true},
//		"age":     schema.Number,
//		"tags":    []any{schema.String},
//		"address": schema.Definition{"city": schema.String},
//		"owner":   accounts, // another *schema.Schema
//	})
//
// Validation coerces values toward the declared types (numeric strings to
// numbers, hex strings to object ids and so on), permits null everywhere,
// passes _id through untouched and drops undeclared fields with a warning.
package schema

import (
	"log/slog"

	"github.com/arthur-debert/nanomodel/types"
)

// Schema is a named, compiled definition.
type Schema struct {
	name   string
	root   *Node
	logger *slog.Logger
}

// Option configures a Schema.
type Option func(*Schema)

// WithLogger sets the logger that receives drift warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Schema) {
		if logger != nil {
			s.logger = logger
		}
	}
}

var idNode = &Node{Kind: KindPrimitive, Type: ObjectID}

// New compiles def under name.
func New(name string, def Definition, opts ...Option) (*Schema, error) {
	if name == "" {
		return nil, types.InvalidSchema("schema name cannot be empty")
	}
	if def == nil {
		def = Definition{}
	}
	root, err := Compile(def)
	if err != nil {
		return nil, err
	}
	s := &Schema{name: name, root: root, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	root.Ref = s
	return s, nil
}

// MustNew is New that panics on error, for package-level schemas.
func MustNew(name string, def Definition, opts ...Option) *Schema {
	s, err := New(name, def, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string { return s.name }

// Root returns the compiled embedded node for the whole document.
func (s *Schema) Root() *Node { return s.root }

// Fields returns the declared top-level field names in order.
func (s *Schema) Fields() []string {
	out := make([]string, len(s.root.Order))
	copy(out, s.root.Order)
	return out
}

// Validate coerces a whole document. The input is not modified. Undeclared
// fields are logged as drift and left out of the result.
func (s *Schema) Validate(doc map[string]any) (types.Document, error) {
	if doc == nil {
		return nil, types.TypeMismatch(s.name, "document", nil)
	}
	out, drift, err := s.root.Coerce(doc, "")
	if err != nil {
		return nil, err
	}
	s.reportDrift(drift)
	return out.(map[string]any), nil
}

// ValidatePartial is Validate for documents loaded with a projection:
// missing fields are neither required nor defaulted.
func (s *Schema) ValidatePartial(doc map[string]any) (types.Document, error) {
	if doc == nil {
		return nil, types.TypeMismatch(s.name, "document", nil)
	}
	out, drift, err := s.root.run(doc, "", &state{partial: true})
	if err != nil {
		return nil, err
	}
	s.reportDrift(drift)
	return out.(map[string]any), nil
}

// ValidatePath coerces a value destined for a dotted path. Undeclared paths
// fail with a SchemaDrift error.
func (s *Schema) ValidatePath(path string, value any) (any, error) {
	node, ok := s.Lookup(path)
	if !ok {
		return nil, types.SchemaDrift(path)
	}
	out, drift, err := node.Coerce(value, path)
	if err != nil {
		return nil, err
	}
	s.reportDrift(drift)
	return out, nil
}

// Lookup returns the node governing a dotted path. Numeric segments step
// into array elements.
func (s *Schema) Lookup(path string) (*Node, bool) {
	if path == types.IDField {
		return idNode, true
	}
	node := s.root
	for _, part := range types.SplitPath(path) {
		child, ok := node.Child(part)
		if !ok {
			return nil, false
		}
		node = child
	}
	return node, true
}

func (s *Schema) reportDrift(paths []string) {
	for _, p := range paths {
		err := types.SchemaDrift(p)
		s.logger.Warn("dropping undeclared field",
			"schema", s.name,
			"path", p,
			"error", err.Error())
	}
}
