// Package err defines common errors for the schemagraph compiler.
package err

import (
	"errors"
	"fmt"
)

// ErrSchema is wrapped by every error that aborts a compilation run.
var ErrSchema = errors.New("schema error")

var (
	ErrUnresolvedPath           = errors.New("unresolved path segment")
	ErrUnresolvedReference      = errors.New("unresolved reference")
	ErrMissingSchemaFile        = errors.New("reference to non existing JSON-Schema file")
	ErrInvalidSchemaFile        = errors.New("invalid JSON-Schema file")
	ErrIncompleteComposition    = errors.New("incomplete conditional composition")
	ErrInvalidConstPropertyName = errors.New("invalid const property name")
	ErrInvalidKeyword           = errors.New("invalid keyword value")
	ErrCircularReference        = errors.New("circular reference without property")
	ErrNoSchemas                = errors.New("no schemas to process")
	ErrDanglingReference        = errors.New("reference was never resolved")
)

// Build-time misuse of the property graph.
var (
	ErrPropertyFrozen  = errors.New("property is frozen")
	ErrSchemaFrozen    = errors.New("schema is frozen")
	ErrSchemaNotFrozen = errors.New("schema is not finalized")
)

// schemaErr joins ErrSchema, the specific sentinel and a detail message.
func schemaErr(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %w %s", ErrSchema, kind, fmt.Sprintf(format, args...))
}

// ErrUnresolvedSegment returns an error for a JSON pointer segment missing from a document.
//
// Parameters:
//
//	segment string: The missing segment.
//	file string: The document the pointer was evaluated against.
//
// Returns:
//
//	error: The formatted error.
func ErrUnresolvedSegment(segment, file string) error {
	return schemaErr(ErrUnresolvedPath, "%s in file %s", segment, file)
}

// ErrReference returns an error for a $ref which names no known definition.
func ErrReference(ref, file string) error {
	return schemaErr(ErrUnresolvedReference, "%s in file %s", ref, file)
}

// ErrMissingFile returns an error for an external reference to a file which does not exist.
func ErrMissingFile(path string) error {
	return schemaErr(ErrMissingSchemaFile, "%s", path)
}

// ErrInvalidFile returns an error for a schema document which cannot be read or decoded.
//
// Parameters:
//
//	path string: The document location.
//	cause error: The underlying read or decode error, may be nil.
//
// Returns:
//
//	error: The formatted error.
func ErrInvalidFile(path string, cause error) error {
	if cause == nil {
		return schemaErr(ErrInvalidSchemaFile, "%s", path)
	}
	return fmt.Errorf("%w: %w", schemaErr(ErrInvalidSchemaFile, "%s", path), cause)
}

// ErrIncomplete returns an error for an if keyword without then and else.
func ErrIncomplete(property, file string) error {
	return schemaErr(ErrIncompleteComposition, "for property %s in file %s", property, file)
}

// ErrConstPropertyName returns an error for a propertyNames schema whose const is not a string.
func ErrConstPropertyName(file string) error {
	return schemaErr(ErrInvalidConstPropertyName, "in file %s", file)
}

// ErrKeyword returns an error for a keyword whose value cannot be compiled.
//
// Parameters:
//
//	keyword string: The JSON Schema keyword.
//	property string: The property the keyword belongs to.
//	cause error: The underlying error, may be nil.
//
// Returns:
//
//	error: The formatted error.
func ErrKeyword(keyword, property string, cause error) error {
	if cause == nil {
		return schemaErr(ErrInvalidKeyword, "%s for property %s", keyword, property)
	}
	return fmt.Errorf("%w: %w", schemaErr(ErrInvalidKeyword, "%s for property %s", keyword, property), cause)
}

// ErrCircular returns an error for a reference chain which never reaches a property.
func ErrCircular(key string) error {
	return schemaErr(ErrCircularReference, "%s", key)
}

// ErrEmptyOpenAPI returns an error for an OpenAPI document without component schemas.
func ErrEmptyOpenAPI(file string) error {
	return schemaErr(ErrNoSchemas, "open API v3 spec file %s doesn't contain any schemas", file)
}

// ErrDangling returns an error for arena slots still pending after a compilation run.
func ErrDangling(count int) error {
	return schemaErr(ErrDanglingReference, "%d pending handle(s)", count)
}

// ErrFrozenProperty returns an error for a mutation of a property after its schema was finalized.
func ErrFrozenProperty(name string) error {
	return fmt.Errorf("%w: %s", ErrPropertyFrozen, name)
}

// ErrFrozenSchema returns an error for a mutation of a finalized schema.
func ErrFrozenSchema(className string) error {
	return fmt.Errorf("%w: %s", ErrSchemaFrozen, className)
}

// ErrUnfinishedSchema returns an error for a post-processing step run against a schema still being built.
func ErrUnfinishedSchema(className string) error {
	return fmt.Errorf("%w: %s", ErrSchemaNotFrozen, className)
}

// Misuse of a compiled model instance.
var (
	ErrImmutableModel  = errors.New("model is immutable")
	ErrReadOnly        = errors.New("property is read-only")
	ErrUnknownProperty = errors.New("unknown property")
)

// ErrEmptySource returns an error for a source provider which yields no schema documents.
func ErrEmptySource(location string) error {
	return schemaErr(ErrNoSchemas, "in %s", location)
}
