// Package docops applies queries, updates, projections and orderings to
// in-memory documents. The storage engine and the JSON file driver are
// built on it.
package docops

import (
	"sort"

	"github.com/arthur-debert/nanomodel/internal/matching"
	"github.com/arthur-debert/nanomodel/types"
)

// IsOperatorUpdate reports whether every key of update is an operator.
// A document without operators is a replacement.
func IsOperatorUpdate(update types.Document) (bool, error) {
	ops, plain := 0, 0
	for k := range update {
		if len(k) > 0 && k[0] == '$' {
			ops++
		} else {
			plain++
		}
	}
	if ops > 0 && plain > 0 {
		return false, types.BadQuery("update mixes operators and plain fields")
	}
	return ops > 0, nil
}

// Apply applies update to doc in place. Replacement documents keep the
// original _id.
func Apply(doc, update types.Document) error {
	isOps, err := IsOperatorUpdate(update)
	if err != nil {
		return err
	}
	if !isOps {
		id, hasID := doc[types.IDField]
		for k := range doc {
			delete(doc, k)
		}
		for k, v := range update {
			doc[k] = types.CloneValue(v)
		}
		if hasID {
			doc[types.IDField] = id
		}
		return nil
	}

	// Apply operators in a fixed order so results do not depend on map
	// iteration.
	ops := make([]string, 0, len(update))
	for op := range update {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	for _, op := range ops {
		fields, ok := types.AsMap(update[op])
		if !ok {
			return types.BadQuery("%s requires a document", op)
		}
		paths := make([]string, 0, len(fields))
		for p := range fields {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		for _, path := range paths {
			if err := applyOperator(doc, op, path, fields[path]); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyOperator(doc types.Document, op, path string, arg any) error {
	if path == types.IDField && op != "$set" {
		return types.BadQuery("%s cannot modify _id", op)
	}
	switch op {
	case "$set":
		if path == types.IDField {
			if current, ok := doc[types.IDField]; ok && !matching.Equal(current, arg) {
				return types.BadQuery("$set cannot modify _id")
			}
		}
		if !types.SetPath(doc, path, types.CloneValue(arg)) {
			return types.BadQuery("$set cannot traverse %s", path)
		}
	case "$unset":
		types.UnsetPath(doc, path)
	case "$inc":
		return inc(doc, path, arg)
	case "$push", "$addToSet":
		return push(doc, path, arg, op == "$addToSet")
	case "$pull":
		return pull(doc, path, arg)
	default:
		return types.BadQuery("unsupported update operator %s", op)
	}
	return nil
}

func inc(doc types.Document, path string, arg any) error {
	delta, ok := toNumber(arg)
	if !ok {
		return types.BadQuery("$inc for %s requires a number", path)
	}
	current, present := types.GetPath(doc, path)
	if !present || current == nil {
		current = int64(0)
	}
	base, ok := toNumber(current)
	if !ok {
		return types.BadQuery("$inc target %s is not a number", path)
	}

	var result any
	if isInteger(current) && isInteger(arg) {
		result = base.i + delta.i
	} else {
		result = base.f + delta.f
	}
	if !types.SetPath(doc, path, result) {
		return types.BadQuery("$inc cannot traverse %s", path)
	}
	return nil
}

func push(doc types.Document, path string, arg any, unique bool) error {
	items := []any{arg}
	if m, ok := types.AsMap(arg); ok {
		if each, ok := m["$each"]; ok {
			list, ok := types.AsSlice(each)
			if !ok {
				return types.BadQuery("$each for %s requires an array", path)
			}
			items = list
		}
	}

	current, present := types.GetPath(doc, path)
	var arr []any
	if present && current != nil {
		existing, ok := types.AsSlice(current)
		if !ok {
			return types.BadQuery("cannot push to non-array field %s", path)
		}
		arr = append(arr, existing...)
	}

	for _, item := range items {
		if unique && containsEqual(arr, item) {
			continue
		}
		arr = append(arr, types.CloneValue(item))
	}
	if arr == nil {
		arr = []any{}
	}
	if !types.SetPath(doc, path, arr) {
		return types.BadQuery("cannot push to %s", path)
	}
	return nil
}

func pull(doc types.Document, path string, arg any) error {
	current, present := types.GetPath(doc, path)
	if !present || current == nil {
		return nil
	}
	existing, ok := types.AsSlice(current)
	if !ok {
		return types.BadQuery("cannot pull from non-array field %s", path)
	}
	arr := append([]any(nil), existing...)

	if cond, ok := types.AsMap(arg); ok && allOperators(cond) {
		// {"$gte": 5} applies to each element itself.
		kept := arr[:0]
		for _, item := range arr {
			hit, err := matching.Matches(types.Document{"v": cond}, types.Document{"v": item})
			if err != nil {
				return err
			}
			if !hit {
				kept = append(kept, item)
			}
		}
		arr = kept
	} else if cond, ok := types.AsMap(arg); ok {
		kept, _, err := matching.Remove(cond, arr)
		if err != nil {
			return err
		}
		arr = kept
	} else {
		kept := arr[:0]
		for _, item := range arr {
			if !matching.Equal(item, arg) {
				kept = append(kept, item)
			}
		}
		arr = kept
	}
	types.SetPath(doc, path, arr)
	return nil
}

func containsEqual(arr []any, v any) bool {
	for _, item := range arr {
		if matching.Equal(item, v) {
			return true
		}
	}
	return false
}

type number struct {
	i int64
	f float64
}

func toNumber(v any) (number, bool) {
	switch n := v.(type) {
	case int:
		return number{int64(n), float64(n)}, true
	case int32:
		return number{int64(n), float64(n)}, true
	case int64:
		return number{n, float64(n)}, true
	case float32:
		return number{int64(n), float64(n)}, true
	case float64:
		return number{int64(n), n}, true
	default:
		return number{}, false
	}
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int32, int64:
		return true
	default:
		return false
	}
}

// SeedFromQuery builds the document inserted by an upsert: the plain
// equality fields of the query.
func SeedFromQuery(query types.Document) types.Document {
	seed := types.Document{}
	for k, v := range query {
		if len(k) > 0 && k[0] == '$' {
			continue
		}
		if m, ok := types.AsMap(v); ok && allOperators(m) {
			continue
		}
		types.SetPath(seed, k, types.CloneValue(v))
	}
	return seed
}

func allOperators(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return true
}
