// Package optbag extracts named options from the opaque option bags that
// travel alongside queries and driver calls.
package optbag

import (
	"time"

	"github.com/spf13/cast"

	"github.com/arthur-debert/nanomodel/types"
)

// Has reports whether the bag carries a non-nil value for name.
func Has(bag types.Options, name string) bool {
	if bag == nil {
		return false
	}
	v, ok := bag[name]
	return ok && v != nil
}

// Bool returns the named option as a boolean, or def when absent or not
// convertible.
func Bool(bag types.Options, name string, def bool) bool {
	if !Has(bag, name) {
		return def
	}
	b, err := cast.ToBoolE(bag[name])
	if err != nil {
		return def
	}
	return b
}

// Int returns the named option as an int.
func Int(bag types.Options, name string, def int) int {
	if !Has(bag, name) {
		return def
	}
	i, err := cast.ToIntE(bag[name])
	if err != nil {
		return def
	}
	return i
}

// String returns the named option as a string.
func String(bag types.Options, name, def string) string {
	if !Has(bag, name) {
		return def
	}
	s, err := cast.ToStringE(bag[name])
	if err != nil {
		return def
	}
	return s
}

// Strings returns the named option as a string slice. A single string is
// promoted to a one-element slice.
func Strings(bag types.Options, name string) []string {
	if !Has(bag, name) {
		return nil
	}
	if s, ok := bag[name].(string); ok {
		return []string{s}
	}
	ss, err := cast.ToStringSliceE(bag[name])
	if err != nil {
		return nil
	}
	return ss
}

// Duration returns the named option as a duration. Bare numbers are read
// as milliseconds, the unit the store's call-level timeouts use.
func Duration(bag types.Options, name string, def time.Duration) time.Duration {
	if !Has(bag, name) {
		return def
	}
	switch v := bag[name].(type) {
	case time.Duration:
		return v
	case string:
		d, err := cast.ToDurationE(v)
		if err != nil {
			return def
		}
		return d
	default:
		ms, err := cast.ToInt64E(v)
		if err != nil {
			return def
		}
		return time.Duration(ms) * time.Millisecond
	}
}

// Sort reads a sort specification. It accepts []types.SortField, a
// document of field -> direction (1/-1) or a list of "field"/"-field"
// strings.
func Sort(bag types.Options, name string) []types.SortField {
	if !Has(bag, name) {
		return nil
	}
	switch v := bag[name].(type) {
	case []types.SortField:
		return v
	case map[string]any:
		out := make([]types.SortField, 0, len(v))
		for field, dir := range v {
			out = append(out, types.SortField{Field: field, Descending: cast.ToInt(dir) < 0})
		}
		return out
	default:
		var out []types.SortField
		for _, s := range Strings(bag, name) {
			if len(s) > 0 && s[0] == '-' {
				out = append(out, types.SortField{Field: s[1:], Descending: true})
				continue
			}
			out = append(out, types.SortField{Field: s})
		}
		return out
	}
}

// Without returns a copy of the bag with the named options removed. The
// model strips its own options before handing a bag to a driver.
func Without(bag types.Options, names ...string) types.Options {
	if len(bag) == 0 {
		return nil
	}
	out := make(types.Options, len(bag))
	for k, v := range bag {
		out[k] = v
	}
	for _, n := range names {
		delete(out, n)
	}
	return out
}

// Merge overlays extra on top of base without modifying either.
func Merge(base, extra types.Options) types.Options {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(types.Options, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
