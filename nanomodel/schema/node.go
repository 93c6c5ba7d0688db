package schema

import (
	"sort"
	"strconv"

	"github.com/arthur-debert/nanomodel/types"
)

// Kind tags the variant held by a Node.
type Kind int

const (
	KindPrimitive Kind = iota + 1
	KindArray
	KindEmbedded
	KindSpecial
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindArray:
		return "array"
	case KindEmbedded:
		return "embedded"
	case KindSpecial:
		return "special"
	default:
		return "unknown"
	}
}

// Node is a compiled validator. Exactly one group of fields is meaningful,
// selected by Kind:
//
//	KindPrimitive  Type
//	KindArray      Elem
//	KindEmbedded   Fields, Order and, for compiled schemas, Ref
//	KindSpecial    Special
//
// Nodes are immutable once compiled and may be shared between schemas.
type Node struct {
	Kind    Kind
	Type    Type
	Elem    *Node
	Fields  map[string]*Node
	Order   []string
	Ref     *Schema
	Special Validator

	Required bool
	Default  any
}

// Validate coerces value to the node's declared shape. Unknown fields are
// dropped silently; use Coerce to learn about them.
func (n *Node) Validate(value any, path string) (any, error) {
	out, _, err := n.Coerce(value, path)
	return out, err
}

// Coerce is Validate that also returns the paths of undeclared fields it
// dropped.
func (n *Node) Coerce(value any, path string) (any, []string, error) {
	return n.run(value, path, &state{})
}

func (n *Node) run(value any, path string, st *state) (any, []string, error) {
	out, err := n.coerce(value, path, st)
	if err != nil {
		return nil, st.drift, err
	}
	return out, st.drift, nil
}

// state is carried through one coercion pass.
type state struct {
	drift []string
	// partial skips required checks and defaults, for projected documents.
	partial bool
}

// Child returns the node for a direct field of an embedded node, or the
// element node of an array.
func (n *Node) Child(name string) (*Node, bool) {
	switch n.Kind {
	case KindEmbedded:
		child, ok := n.Fields[name]
		return child, ok
	case KindArray:
		if _, err := strconv.Atoi(name); err == nil {
			return n.Elem, true
		}
		// Paths like comments.author address a field of every element.
		return n.Elem.Child(name)
	case KindPrimitive:
		if n.Type == Object || n.Type == Any {
			return anyNode, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func (n *Node) coerce(value any, path string, st *state) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch n.Kind {
	case KindPrimitive:
		return coercePrimitive(n.Type, value, path)
	case KindArray:
		return n.coerceArray(value, path, st)
	case KindEmbedded:
		return n.coerceDocument(value, path, st)
	case KindSpecial:
		return n.Special.Validate(value, path)
	default:
		return nil, types.InvalidSchema("%s: node has no kind", path)
	}
}

func (n *Node) coerceArray(value any, path string, st *state) (any, error) {
	items, ok := types.AsSlice(value)
	if !ok {
		return nil, types.TypeMismatch(path, "array", value)
	}
	out := make([]any, len(items))
	for i, item := range items {
		v, err := n.Elem.coerce(item, types.JoinPath(path, strconv.Itoa(i)), st)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (n *Node) coerceDocument(value any, path string, st *state) (any, error) {
	in, ok := types.AsMap(value)
	if !ok {
		return nil, types.TypeMismatch(path, "document", value)
	}
	out := make(map[string]any, len(in))
	if id, ok := in[types.IDField]; ok {
		out[types.IDField] = id
	}

	for _, name := range n.Order {
		child := n.Fields[name]
		fieldPath := types.JoinPath(path, name)
		v, present := in[name]
		if !present {
			if st.partial {
				continue
			}
			if child.Default != nil {
				def, err := child.coerce(types.CloneValue(child.Default), fieldPath, st)
				if err != nil {
					return nil, err
				}
				out[name] = def
				continue
			}
			if child.Required {
				return nil, types.RequiredFieldMissing(fieldPath)
			}
			continue
		}
		cv, err := child.coerce(v, fieldPath, st)
		if err != nil {
			return nil, err
		}
		out[name] = cv
	}

	var unknown []string
	for k := range in {
		if _, declared := n.Fields[k]; !declared && k != types.IDField {
			unknown = append(unknown, types.JoinPath(path, k))
		}
	}
	sort.Strings(unknown)
	st.drift = append(st.drift, unknown...)
	return out, nil
}
