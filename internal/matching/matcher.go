// Package matching evaluates document queries in memory. It backs searches
// over embedded arrays and the in-memory driver.
//
// Supported per-field forms:
//
//	{"a": 1}                      equality (any element when a is an array)
//	{"a": {"$eq": 1}}             equality
//	{"a": {"$ne": 1}}             negated equality
//	{"a": {"$in": [1, 2]}}        membership
//	{"a": {"$nin": [1, 2]}}       negated membership
//	{"a": {"$gt": 1}}             ordering ($gt, $gte, $lt, $lte)
//	{"a": {"$exists": true}}      presence
//	{"$and": [...]}, {"$or": [...]}
//
// A field absent from the candidate never matches, except for
// {"$exists": false}. A nil query value is a BadQuery error: matching null
// must be asked for explicitly with {"$exists": true} and an equality on a
// present nil is not supported.
package matching

import (
	"github.com/arthur-debert/nanomodel/types"
)

// Result is the tri-state outcome of a match.
type Result int

const (
	// NoMatch means the query is valid and the object does not satisfy it.
	NoMatch Result = iota
	// Matched means the object satisfies the query.
	Matched
	// Invalid means the query itself is malformed.
	Invalid
)

// Match evaluates query against obj without allocating an error.
func Match(query, obj map[string]any) Result {
	ok, err := evaluate(query, obj)
	switch {
	case err != nil:
		return Invalid
	case ok:
		return Matched
	default:
		return NoMatch
	}
}

// Matches reports whether obj satisfies query. Malformed queries return a
// BadQuery error.
func Matches(query, obj map[string]any) (bool, error) {
	return evaluate(query, obj)
}

// Validate checks the shape of a query without evaluating it.
func Validate(query map[string]any) error {
	_, err := evaluate(query, map[string]any{})
	return err
}

func evaluate(query, obj map[string]any) (bool, error) {
	for key, cond := range query {
		var (
			ok  bool
			err error
		)
		switch key {
		case "$and":
			ok, err = evaluateLogical(key, cond, obj, true)
		case "$or":
			ok, err = evaluateLogical(key, cond, obj, false)
		default:
			if len(key) > 0 && key[0] == '$' {
				return false, types.BadQuery("unknown top-level operator %s", key)
			}
			ok, err = evaluateField(key, cond, obj)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			// Keep validating the remaining clauses so a malformed query is
			// reported regardless of map iteration order.
			for rest, restCond := range query {
				if rest == key {
					continue
				}
				if err := checkClause(rest, restCond); err != nil {
					return false, err
				}
			}
			return false, nil
		}
	}
	return true, nil
}

func checkClause(key string, cond any) error {
	switch key {
	case "$and", "$or":
		_, err := evaluateLogical(key, cond, map[string]any{}, key == "$and")
		return err
	default:
		if len(key) > 0 && key[0] == '$' {
			return types.BadQuery("unknown top-level operator %s", key)
		}
		_, err := evaluateField(key, cond, map[string]any{})
		return err
	}
}

func evaluateLogical(op string, cond any, obj map[string]any, all bool) (bool, error) {
	clauses, ok := types.AsSlice(cond)
	if !ok || len(clauses) == 0 {
		return false, types.BadQuery("%s requires a non-empty array", op)
	}
	result := all
	for _, c := range clauses {
		sub, ok := types.AsMap(c)
		if !ok {
			return false, types.BadQuery("%s clauses must be documents", op)
		}
		matched, err := evaluate(sub, obj)
		if err != nil {
			return false, err
		}
		if all && !matched {
			result = false
		}
		if !all && matched {
			result = true
		}
	}
	return result, nil
}

func evaluateField(field string, cond any, obj map[string]any) (bool, error) {
	if cond == nil {
		return false, types.BadQuery("query value for %s is null", field)
	}
	actual, present := types.GetPath(obj, field)

	ops, isOps := operatorMap(cond)
	if !isOps {
		if !present {
			return false, nil
		}
		return equalOrContains(actual, cond), nil
	}

	for op, arg := range ops {
		ok, err := evaluateOperator(field, op, arg, actual, present)
		if err != nil {
			return false, err
		}
		if !ok {
			// Validate the remaining operators before reporting no match.
			for other, otherArg := range ops {
				if other == op {
					continue
				}
				if _, err := evaluateOperator(field, other, otherArg, nil, false); err != nil {
					return false, err
				}
			}
			return false, nil
		}
	}
	return true, nil
}

func evaluateOperator(field, op string, arg, actual any, present bool) (bool, error) {
	switch op {
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return false, types.BadQuery("$exists for %s requires a boolean", field)
		}
		return present == want, nil
	}

	if arg == nil {
		return false, types.BadQuery("%s value for %s is null", op, field)
	}

	switch op {
	case "$eq":
		return present && equalOrContains(actual, arg), nil
	case "$ne":
		return present && !equalOrContains(actual, arg), nil
	case "$in", "$nin":
		list, ok := types.AsSlice(arg)
		if !ok {
			return false, types.BadQuery("%s for %s requires an array", op, field)
		}
		for _, v := range list {
			if v == nil {
				return false, types.BadQuery("%s for %s contains null", op, field)
			}
		}
		if !present {
			return false, nil
		}
		in := false
		for _, v := range list {
			if equalOrContains(actual, v) {
				in = true
				break
			}
		}
		if op == "$in" {
			return in, nil
		}
		return !in, nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		c, ok := Compare(actual, arg)
		if !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	default:
		return false, types.BadQuery("unsupported operator %s for %s", op, field)
	}
}

// operatorMap returns cond as an operator document when every key starts
// with '$'. Plain sub-documents are compared for equality instead.
func operatorMap(cond any) (map[string]any, bool) {
	m, ok := types.AsMap(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return nil, false
		}
	}
	return m, true
}

// equalOrContains compares actual with want; when actual is an array and
// want is not, any element may match.
func equalOrContains(actual, want any) bool {
	if Equal(actual, want) {
		return true
	}
	if arr, ok := types.AsSlice(actual); ok {
		if _, wantArr := types.AsSlice(want); !wantArr {
			for _, item := range arr {
				if Equal(item, want) {
					return true
				}
			}
		}
	}
	return false
}
