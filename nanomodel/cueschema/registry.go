// Package cueschema validates documents against CUE schemas.
//
// A Registry holds compiled schemas by uri. References select a schema,
// and optionally a value inside it, JSON-schema style:
//
//	reg := cueschema.NewRegistry()
//	_ = reg.AddSchema(`#User: {name: string, age?: int & >=0}`, "user.cue")
//	errs := reg.Validate(doc, "user.cue#/#User")
//
// Hook turns a reference into a schema.Validator so a CUE constraint can
// stand in for a field's default validation.
package cueschema

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/jmgilman/go/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/arthur-debert/nanomodel/nanomodel/schema"
	"github.com/arthur-debert/nanomodel/types"
)

// refSeparator splits a reference into the schema uri and a path inside it.
const refSeparator = "#/"

// Registry compiles and stores CUE schemas. A cue.Context is not safe for
// concurrent use, so every operation holds the registry lock.
type Registry struct {
	mu      sync.Mutex
	ctx     *cue.Context
	schemas map[string]cue.Value
}

func NewRegistry() *Registry {
	return &Registry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
}

// AddSchema compiles src and registers it under uri.
//
// Returns CodeCUEBuildFailed when src does not compile and CodeInvalidSchema
// when uri is empty or already taken.
func (r *Registry) AddSchema(src, uri string) error {
	if uri == "" || strings.Contains(uri, refSeparator) {
		return types.InvalidSchema("cue schema uri %q is not valid", uri)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schemas[uri]; ok {
		return types.InvalidSchema("cue schema %s is already registered", uri)
	}
	v := r.ctx.CompileString(src, cue.Filename(uri))
	if err := v.Err(); err != nil {
		return errors.WrapWithContext(err, errors.CodeCUEBuildFailed, "failed to compile CUE schema", map[string]interface{}{
			"uri":     uri,
			"details": cueerrors.Details(err, nil),
		})
	}
	r.schemas[uri] = v
	return nil
}

// URIs lists the registered schema uris in order.
func (r *Registry) URIs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.schemas))
	for uri := range r.schemas {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// Issue is one violation found by CUE.
type Issue struct {
	// Path is the dotted path of the offending value, empty for the root.
	Path    string
	Message string
}

// Validate checks instance against the schema named by ref and returns one
// error per violation. An empty result means the instance is valid.
//
// ref is a registered uri, optionally followed by "#/" and a slash separated
// CUE path: "user.cue#/#User" or "shapes.cue#/defs/#Point".
func (r *Registry) Validate(instance any, ref string) []error {
	issues, err := r.Check(instance, ref)
	if err != nil {
		return []error{err}
	}
	out := make([]error, 0, len(issues))
	for _, is := range issues {
		err := errors.Newf(errors.CodeCUEValidationFailed, "%s: %s", displayPath(is.Path), is.Message)
		out = append(out, errors.WithContextMap(err, map[string]interface{}{"ref": ref, "path": is.Path}))
	}
	return out
}

// Check is Validate with structured results. The error is set only when
// ref cannot be resolved or instance cannot be encoded.
func (r *Registry) Check(instance any, ref string) ([]Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, prefix, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	data := r.ctx.Encode(normalize(instance))
	if err := data.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCUEEncodeFailed, "failed to encode instance")
	}

	// Validate rather than Err so that All collects every violation.
	err = s.Unify(data).Validate(cue.Concrete(true), cue.Final(), cue.All())
	if err == nil {
		return nil, nil
	}
	var issues []Issue
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		issues = append(issues, Issue{
			Path:    strings.Join(relative(e.Path(), prefix), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return issues, nil
}

// Hook returns a validator for one field that checks its value against ref.
// Values pass through unchanged; violations become a TypeMismatch error
// naming the field. An unresolvable ref fails every value with
// InvalidSchema.
func (r *Registry) Hook(ref string) schema.Validator {
	return schema.ValidatorFunc(func(value any, path string) (any, error) {
		if value == nil {
			return nil, nil
		}
		issues, err := r.Check(value, ref)
		if err != nil {
			return nil, err
		}
		if len(issues) == 0 {
			return value, nil
		}
		msgs := make([]string, len(issues))
		for i, is := range issues {
			msgs[i] = is.Message
			if is.Path != "" {
				msgs[i] = is.Path + ": " + is.Message
			}
		}
		return nil, errors.Newf(types.CodeTypeMismatch, "%s: %s", displayPath(path), strings.Join(msgs, "; "))
	})
}

// lookup resolves ref to a value and the selectors leading to it.
func (r *Registry) lookup(ref string) (cue.Value, []string, error) {
	uri, sel, _ := strings.Cut(ref, refSeparator)
	s, ok := r.schemas[uri]
	if !ok {
		return cue.Value{}, nil, types.InvalidSchema("cue schema %s is not registered", uri)
	}
	if sel == "" {
		return s, nil, nil
	}
	p := cue.ParsePath(strings.ReplaceAll(sel, "/", "."))
	if err := p.Err(); err != nil {
		return cue.Value{}, nil, types.InvalidSchema("cue reference %s: %v", ref, err)
	}
	v := s.LookupPath(p)
	if !v.Exists() {
		return cue.Value{}, nil, types.InvalidSchema("cue reference %s does not exist", ref)
	}
	var prefix []string
	for _, part := range p.Selectors() {
		prefix = append(prefix, part.String())
	}
	return v, prefix, nil
}

// relative strips prefix from an error path reported inside a referenced
// value.
func relative(path, prefix []string) []string {
	if len(path) < len(prefix) {
		return path
	}
	for i, part := range prefix {
		if path[i] != part {
			return path
		}
	}
	return path[len(prefix):]
}

// normalize rewrites document values CUE cannot encode natively: ids become
// hex strings, times RFC 3339 strings and binary data base64.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	case primitive.ObjectID:
		return x.Hex()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case primitive.DateTime:
		return x.Time().UTC().Format(time.RFC3339Nano)
	case primitive.Binary:
		return base64.StdEncoding.EncodeToString(x.Data)
	}
	return v
}

func displayPath(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
