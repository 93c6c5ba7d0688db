package validation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/arthur-debert/nanomodel/types"
)

// ValidateFieldName checks a schema field name. Names become path segments,
// so they cannot contain dots or start with the operator sigil.
func ValidateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("field name cannot be empty")
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("field name '%s' cannot contain '.'", name)
	}
	if strings.HasPrefix(name, "$") {
		return fmt.Errorf("field name '%s' cannot start with '$'", name)
	}
	if IsReservedFieldName(name) {
		return fmt.Errorf("'%s' is a reserved field name", name)
	}
	return nil
}

// IsReservedFieldName checks if a field name is managed by the system
func IsReservedFieldName(name string) bool {
	return name == types.IDField
}

// ValidateCollectionName checks a collection name before it reaches a driver.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	if strings.HasPrefix(name, "system.") {
		return fmt.Errorf("collection name '%s' uses the reserved 'system.' prefix", name)
	}
	for _, r := range name {
		if r == '$' || r == 0 || r == '/' || r == '\\' {
			return fmt.Errorf("collection name '%s' contains invalid character %q", name, r)
		}
	}
	return nil
}

// ValidateSimpleType ensures an index value is a simple type (string, number,
// bool, time or identity) that can be rendered into a lookup key.
func ValidateSimpleType(value interface{}, field string) error {
	if value == nil {
		return fmt.Errorf("index value for '%s' cannot be null", field)
	}

	switch value.(type) {
	case types.ID, time.Time:
		return nil
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Slice, reflect.Array:
		return fmt.Errorf("index value for '%s' cannot be an array/slice type, got %T", field, value)
	case reflect.Map:
		return fmt.Errorf("index value for '%s' cannot be a map type, got %T", field, value)
	case reflect.Ptr:
		if v.IsNil() {
			return fmt.Errorf("index value for '%s' cannot be null", field)
		}
		return ValidateSimpleType(v.Elem().Interface(), field)
	default:
		return fmt.Errorf("index value for '%s' must be a simple type, got %T", field, value)
	}
}
