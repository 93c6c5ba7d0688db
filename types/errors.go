package types

import (
	"fmt"

	"github.com/jmgilman/go/errors"
)

// Error codes for the document model. Codes travel inside
// errors.PlatformError values and are matched with GetCode.
const (
	CodeTypeMismatch         errors.ErrorCode = "TYPE_MISMATCH"
	CodeRequiredFieldMissing errors.ErrorCode = "REQUIRED_FIELD_MISSING"
	CodeInvalidIdentifier    errors.ErrorCode = "INVALID_IDENTIFIER"
	CodeNotFound             errors.ErrorCode = errors.CodeNotFound
	CodeBadQuery             errors.ErrorCode = "BAD_QUERY"
	CodeSchemaDrift          errors.ErrorCode = "SCHEMA_DRIFT"
	CodeStaleInstance        errors.ErrorCode = "STALE_INSTANCE"
	CodeInvalidSchema        errors.ErrorCode = "INVALID_SCHEMA"
	CodeDuplicateKey         errors.ErrorCode = errors.CodeAlreadyExists
	CodeClosed               errors.ErrorCode = errors.CodeUnavailable
)

// TypeMismatch reports a value that could not be coerced to the declared type.
func TypeMismatch(path, want string, got any) error {
	return errors.WithContextMap(
		errors.Newf(CodeTypeMismatch, "%s: expected %s, got %s", path, want, describe(got)),
		map[string]interface{}{"path": path, "expected": want},
	)
}

// RequiredFieldMissing reports an absent value on a required field.
func RequiredFieldMissing(path string) error {
	return errors.WithContext(
		errors.Newf(CodeRequiredFieldMissing, "%s: required field missing", path),
		"path", path,
	)
}

// InvalidIdentifier reports a malformed identity.
func InvalidIdentifier(v any) error {
	return errors.WithContext(
		errors.New(CodeInvalidIdentifier, "invalid object id"),
		"value", fmt.Sprintf("%v", v),
	)
}

// NotFound reports a lookup miss the caller asked to treat as an error.
func NotFound(collection string, key any) error {
	return errors.WithContext(
		errors.Newf(CodeNotFound, "%s %s not found", collection, formatKey(key)),
		"collection", collection,
	)
}

// BadQuery reports a malformed matcher expression.
func BadQuery(format string, args ...any) error {
	return errors.Newf(CodeBadQuery, format, args...)
}

// SchemaDrift describes unknown fields found in stored data. It is logged,
// never returned from an operation.
func SchemaDrift(path string) error {
	return errors.WithContext(
		errors.Newf(CodeSchemaDrift, "%s: field not declared in schema", path),
		"path", path,
	)
}

// StaleInstance reports use of an instance whose document was removed.
func StaleInstance(collection string, id ID) error {
	return errors.Newf(CodeStaleInstance, "%s %s was removed", collection, id.Hex())
}

// InvalidSchema reports a malformed schema definition.
func InvalidSchema(format string, args ...any) error {
	return errors.Newf(CodeInvalidSchema, format, args...)
}

// DuplicateKey reports a write that would violate a unique index.
func DuplicateKey(collection, field string, value any) error {
	return errors.WithContextMap(
		errors.Newf(CodeDuplicateKey, "%s: duplicate key %s=%s", collection, field, formatKey(value)),
		map[string]interface{}{"collection": collection, "field": field},
	)
}

// Closed reports use of a pool or driver after Close. It is never retried.
func Closed(what string) error {
	return errors.WithClassification(
		errors.Newf(CodeClosed, "%s is closed", what),
		errors.ClassificationPermanent,
	)
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool { return errors.GetCode(err) == CodeNotFound }

// IsTypeMismatch reports whether err carries the TYPE_MISMATCH code.
func IsTypeMismatch(err error) bool { return errors.GetCode(err) == CodeTypeMismatch }

// IsRequiredFieldMissing reports whether err carries the REQUIRED_FIELD_MISSING code.
func IsRequiredFieldMissing(err error) bool {
	return errors.GetCode(err) == CodeRequiredFieldMissing
}

// IsInvalidIdentifier reports whether err carries the INVALID_IDENTIFIER code.
func IsInvalidIdentifier(err error) bool { return errors.GetCode(err) == CodeInvalidIdentifier }

// IsBadQuery reports whether err carries the BAD_QUERY code.
func IsBadQuery(err error) bool { return errors.GetCode(err) == CodeBadQuery }

// IsStaleInstance reports whether err carries the STALE_INSTANCE code.
func IsStaleInstance(err error) bool { return errors.GetCode(err) == CodeStaleInstance }

// IsInvalidSchema reports whether err carries the INVALID_SCHEMA code.
func IsInvalidSchema(err error) bool { return errors.GetCode(err) == CodeInvalidSchema }

// IsDuplicateKey reports whether err carries the duplicate key code.
func IsDuplicateKey(err error) bool { return errors.GetCode(err) == CodeDuplicateKey }

// IsClosed reports whether err came from a closed pool or driver.
func IsClosed(err error) bool { return errors.GetCode(err) == CodeClosed }

// Message returns the bare message of a coded error, without the [CODE]
// prefix. Other errors return err.Error().
func Message(err error) string {
	var perr errors.PlatformError
	if errors.As(err, &perr) {
		return perr.Message()
	}
	return err.Error()
}

func formatKey(key any) string {
	if id, ok := key.(ID); ok {
		return id.Hex()
	}
	return fmt.Sprintf("%v", key)
}

func describe(v any) string {
	if s, ok := v.(string); ok {
		if len(s) > 32 {
			s = s[:32] + "..."
		}
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%T", v)
}
