package schema

import (
	"fmt"
	"os"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/nanomodel/types"
)

// File is the YAML form of a schema:
//
//	name: users
//	fields:
//	  name: {type: string, required: true}
//	  age: number
//	  tags: [string]
//	  address:
//	    city: string
//	  role: {type: string, default: member}
type File struct {
	Name   string         `yaml:"name"`
	Fields map[string]any `yaml:"fields"`
}

// ParseYAML compiles a schema from its YAML form.
func ParseYAML(data []byte, opts ...Option) (*Schema, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	def, err := DefinitionFromMap(f.Fields)
	if err != nil {
		return nil, err
	}
	return New(f.Name, def, opts...)
}

// LoadFile reads and compiles a YAML schema file.
func LoadFile(path string, opts ...Option) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ParseYAML(data, opts...)
}

// DefinitionFromMap converts decoded YAML or JSON (type names as strings,
// one-element lists for arrays, nested mappings for documents) into a
// Definition.
func DefinitionFromMap(fields map[string]any) (Definition, error) {
	out, err := convertFields(fields, "")
	if err != nil {
		return nil, err
	}
	return out, nil
}

func convertFields(fields map[string]any, path string) (Definition, error) {
	def := make(Definition, len(fields))
	for name, raw := range fields {
		desc, err := convertDescriptor(raw, types.JoinPath(path, name))
		if err != nil {
			return nil, err
		}
		def[name] = desc
	}
	return def, nil
}

func convertDescriptor(raw any, path string) (any, error) {
	switch v := raw.(type) {
	case string:
		t, ok := ParseType(v)
		if !ok {
			return nil, types.InvalidSchema("%s: unknown type %q", path, v)
		}
		return t, nil
	case []any:
		switch len(v) {
		case 0:
			return Array{}, nil
		case 1:
			elem, err := convertDescriptor(v[0], types.JoinPath(path, "$"))
			if err != nil {
				return nil, err
			}
			return Array{Elem: elem}, nil
		default:
			return nil, types.InvalidSchema("%s: array descriptor must have exactly one element type", path)
		}
	case map[string]any:
		if isFieldSpec(v) {
			return convertField(v, path)
		}
		return convertFields(v, path)
	case nil:
		return nil, types.InvalidSchema("%s: missing type", path)
	default:
		return nil, types.InvalidSchema("%s: unsupported descriptor %v", path, raw)
	}
}

// isFieldSpec reports whether a mapping is {type: ..., required: ...,
// default: ...} rather than a nested document.
func isFieldSpec(m map[string]any) bool {
	if _, ok := m["type"]; !ok {
		return false
	}
	for k := range m {
		switch k {
		case "type", "required", "default":
		default:
			return false
		}
	}
	return true
}

func convertField(m map[string]any, path string) (any, error) {
	inner, err := convertDescriptor(m["type"], path)
	if err != nil {
		return nil, err
	}
	required := false
	if r, ok := m["required"]; ok {
		required, err = cast.ToBoolE(r)
		if err != nil {
			return nil, types.InvalidSchema("%s: required must be a boolean", path)
		}
	}
	return Field{Type: inner, Required: required, Default: m["default"]}, nil
}
