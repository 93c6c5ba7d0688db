package schema

import (
	"fmt"
	"strings"
)

// Type is a primitive field type. The zero value is invalid.
type Type int

const (
	String Type = iota + 1
	Number
	Integer
	Boolean
	Date
	ObjectID
	Binary
	Object
	Any
	UUID
)

var typeNames = map[Type]string{
	String:   "string",
	Number:   "number",
	Integer:  "integer",
	Boolean:  "boolean",
	Date:     "date",
	ObjectID: "objectid",
	Binary:   "binary",
	Object:   "object",
	Any:      "any",
	UUID:     "uuid",
}

// aliases accepted by ParseType in addition to the canonical names.
var typeAliases = map[string]Type{
	"str":    String,
	"float":  Number,
	"double": Number,
	"int":    Integer,
	"long":   Integer,
	"bool":   Boolean,
	"time":   Date,
	"id":     ObjectID,
	"oid":    ObjectID,
	"bytes":  Binary,
	"map":    Object,
	"mixed":  Any,
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType resolves a type name as written in YAML definitions.
func ParseType(name string) (Type, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	t, ok := typeAliases[name]
	return t, ok
}

// Definition describes a document: field name to descriptor. A descriptor is
// a Type, a nested Definition (or map[string]any), an array ([]any{elem} or
// ArrayOf), a compiled *Schema, a Field, or a Validator.
type Definition map[string]any

// Field attaches required-ness and a default to a descriptor.
type Field struct {
	Type     any
	Required bool
	// Default is deep-copied into documents that lack the field.
	Default any
}

// Array is an array descriptor. A nil Elem accepts elements of any type.
type Array struct {
	Elem any
}

// ArrayOf describes an array whose elements follow elem.
func ArrayOf(elem any) Array {
	return Array{Elem: elem}
}

// Validator replaces the default validation of a field. It returns the
// coerced value or an error naming path.
type Validator interface {
	Validate(value any, path string) (any, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(value any, path string) (any, error)

func (f ValidatorFunc) Validate(value any, path string) (any, error) {
	return f(value, path)
}
