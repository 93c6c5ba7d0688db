package types

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is the plain key/value form of a stored document.
// Nested documents are map[string]any and arrays are []any.
type Document = map[string]any

// Options is an opaque option bag passed through to storage drivers
// (call-level timeouts, read preferences and the like).
type Options = map[string]any

// IDField is the storage-assigned identity field.
const IDField = "_id"

// SortField represents a single ORDER BY clause
type SortField struct {
	Field      string
	Descending bool
}

// Clone returns a deep copy of a document. Maps and slices are copied,
// scalar values (strings, numbers, IDs, times) are shared.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	return CloneValue(doc).(map[string]any)
}

// CloneValue deep-copies maps, []any and []byte values.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

// Normalize converts the bson container types produced by the mongo driver
// and by extended JSON decoding into plain Go maps, slices and times.
func Normalize(v any) any {
	switch val := v.(type) {
	case bson.M:
		return normalizeMap(val)
	case map[string]any:
		return normalizeMap(val)
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = Normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Binary:
		return val.Data
	case time.Time:
		return val.UTC()
	default:
		return v
	}
}

// NormalizeDocument is Normalize for a whole document.
func NormalizeDocument(doc map[string]any) Document {
	if doc == nil {
		return nil
	}
	return normalizeMap(doc)
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}

// SplitPath splits a dotted field path. An empty path yields no parts.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}
