package schema

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/arthur-debert/nanomodel/types"
)

// dateLayouts are tried in order when a string is coerced to a Date.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func coercePrimitive(t Type, v any, path string) (any, error) {
	switch t {
	case String:
		return coerceString(v, path)
	case Number:
		return coerceNumber(v, path)
	case Integer:
		return coerceInteger(v, path)
	case Boolean:
		return coerceBoolean(v, path)
	case Date:
		return coerceDate(v, path)
	case ObjectID:
		id, err := types.ParseID(v)
		if err != nil {
			return nil, types.TypeMismatch(path, t.String(), v)
		}
		return id, nil
	case Binary:
		return coerceBinary(v, path)
	case Object:
		m, ok := types.AsMap(v)
		if !ok {
			return nil, types.TypeMismatch(path, t.String(), v)
		}
		return types.NormalizeDocument(m), nil
	case Any:
		return types.Normalize(v), nil
	case UUID:
		return coerceUUID(v, path)
	default:
		return nil, types.InvalidSchema("%s: unknown type %s", path, t)
	}
}

func coerceString(v any, path string) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte, map[string]any, []any:
		return nil, types.TypeMismatch(path, String.String(), v)
	}
	if isNumeric(v) || isBool(v) {
		return cast.ToStringE(v)
	}
	return nil, types.TypeMismatch(path, String.String(), v)
}

func coerceNumber(v any, path string) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, types.TypeMismatch(path, Number.String(), v)
		}
		return f, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, types.TypeMismatch(path, Number.String(), v)
		}
		return f, nil
	}
	if isNumeric(v) {
		return cast.ToFloat64E(v)
	}
	return nil, types.TypeMismatch(path, Number.String(), v)
}

func coerceInteger(v any, path string) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float32, float64:
		f := cast.ToFloat64(n)
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, types.TypeMismatch(path, Integer.String(), v)
		}
		return int64(f), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return nil, types.TypeMismatch(path, Integer.String(), v)
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, types.TypeMismatch(path, Integer.String(), v)
		}
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil, types.TypeMismatch(path, Integer.String(), v)
		}
		return i, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nil, types.TypeMismatch(path, Integer.String(), v)
		}
		return i, nil
	}
	if isNumeric(v) {
		return cast.ToInt64E(v)
	}
	return nil, types.TypeMismatch(path, Integer.String(), v)
}

func coerceBoolean(v any, path string) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := cast.ToBoolE(strings.TrimSpace(b))
		if err != nil {
			return nil, types.TypeMismatch(path, Boolean.String(), v)
		}
		return parsed, nil
	}
	return nil, types.TypeMismatch(path, Boolean.String(), v)
}

func coerceDate(v any, path string) (any, error) {
	switch d := v.(type) {
	case time.Time:
		return d.UTC(), nil
	case primitive.DateTime:
		return d.Time().UTC(), nil
	case string:
		s := strings.TrimSpace(d)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), nil
			}
		}
		parsed, err := cast.ToTimeE(s)
		if err != nil {
			return nil, types.TypeMismatch(path, Date.String(), v)
		}
		return parsed.UTC(), nil
	}
	return nil, types.TypeMismatch(path, Date.String(), v)
}

func coerceBinary(v any, path string) (any, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case primitive.Binary:
		return b.Data, nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return nil, types.TypeMismatch(path, Binary.String(), v)
		}
		return decoded, nil
	}
	return nil, types.TypeMismatch(path, Binary.String(), v)
}

func coerceUUID(v any, path string) (any, error) {
	switch u := v.(type) {
	case uuid.UUID:
		return u.String(), nil
	case string:
		parsed, err := uuid.Parse(u)
		if err != nil {
			return nil, types.TypeMismatch(path, UUID.String(), v)
		}
		return parsed.String(), nil
	case []byte:
		parsed, err := uuid.FromBytes(u)
		if err != nil {
			return nil, types.TypeMismatch(path, UUID.String(), v)
		}
		return parsed.String(), nil
	}
	return nil, types.TypeMismatch(path, UUID.String(), v)
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}
