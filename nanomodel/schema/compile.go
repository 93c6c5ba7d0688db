package schema

import (
	"reflect"
	"sort"

	"github.com/arthur-debert/nanomodel/internal/validation"
	"github.com/arthur-debert/nanomodel/types"
)

// Compile builds a validator tree from a descriptor. The same Definition map
// reached twice during one compilation yields the same *Node.
func Compile(desc any) (*Node, error) {
	c := &compiler{
		memo:    make(map[uintptr]*Node),
		pending: make(map[uintptr]bool),
	}
	return c.compile(desc, "")
}

type compiler struct {
	memo    map[uintptr]*Node
	pending map[uintptr]bool
}

var anyNode = &Node{Kind: KindPrimitive, Type: Any}

func (c *compiler) compile(desc any, path string) (*Node, error) {
	switch d := desc.(type) {
	case nil:
		return nil, types.InvalidSchema("%s: missing type", displayPath(path))
	case *Node:
		if d == nil {
			return nil, types.InvalidSchema("%s: nil node", displayPath(path))
		}
		return d, nil
	case *Schema:
		if d == nil {
			return nil, types.InvalidSchema("%s: nil schema", displayPath(path))
		}
		return d.root, nil
	case Type:
		if _, ok := typeNames[d]; !ok {
			return nil, types.InvalidSchema("%s: unknown type %s", displayPath(path), d)
		}
		return &Node{Kind: KindPrimitive, Type: d}, nil
	case string:
		t, ok := ParseType(d)
		if !ok {
			return nil, types.InvalidSchema("%s: unknown type %q", displayPath(path), d)
		}
		return &Node{Kind: KindPrimitive, Type: t}, nil
	case Field:
		return c.compileField(d, path)
	case Array:
		return c.compileArray(d.Elem, path)
	case Definition:
		return c.compileDefinition(d, path)
	case map[string]any:
		return c.compileDefinition(d, path)
	case Validator:
		return &Node{Kind: KindSpecial, Special: d}, nil
	case func(any, string) (any, error):
		return &Node{Kind: KindSpecial, Special: ValidatorFunc(d)}, nil
	}

	items, ok := types.AsSlice(desc)
	if !ok {
		return nil, types.InvalidSchema("%s: unsupported descriptor %T", displayPath(path), desc)
	}
	switch len(items) {
	case 0:
		return c.compileArray(nil, path)
	case 1:
		return c.compileArray(items[0], path)
	default:
		return nil, types.InvalidSchema("%s: array descriptor must have exactly one element type", displayPath(path))
	}
}

func (c *compiler) compileField(f Field, path string) (*Node, error) {
	inner, err := c.compile(f.Type, path)
	if err != nil {
		return nil, err
	}
	// Copy so the flags do not leak into other uses of a shared node.
	node := *inner
	node.Required = f.Required
	node.Default = f.Default
	if f.Default != nil {
		if _, err := node.Validate(types.CloneValue(f.Default), path); err != nil {
			return nil, types.InvalidSchema("%s: invalid default: %s", displayPath(path), types.Message(err))
		}
	}
	return &node, nil
}

func (c *compiler) compileArray(elem any, path string) (*Node, error) {
	if elem == nil {
		return &Node{Kind: KindArray, Elem: anyNode}, nil
	}
	inner, err := c.compile(elem, types.JoinPath(path, "$"))
	if err != nil {
		return nil, err
	}
	return &Node{Kind: KindArray, Elem: inner}, nil
}

func (c *compiler) compileDefinition(def map[string]any, path string) (*Node, error) {
	key := reflect.ValueOf(def).Pointer()
	if key != 0 {
		if node, ok := c.memo[key]; ok {
			return node, nil
		}
		if c.pending[key] {
			return nil, types.InvalidSchema("%s: definition contains itself", displayPath(path))
		}
		c.pending[key] = true
		defer delete(c.pending, key)
	}

	names := make([]string, 0, len(def))
	for name := range def {
		names = append(names, name)
	}
	sort.Strings(names)

	node := &Node{Kind: KindEmbedded, Fields: make(map[string]*Node, len(def)), Order: names}
	for _, name := range names {
		fieldPath := types.JoinPath(path, name)
		if err := validation.ValidateFieldName(name); err != nil {
			return nil, types.InvalidSchema("%s: %v", displayPath(fieldPath), err)
		}
		child, err := c.compile(def[name], fieldPath)
		if err != nil {
			return nil, err
		}
		node.Fields[name] = child
	}

	if key != 0 {
		c.memo[key] = node
	}
	return node, nil
}

func displayPath(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
