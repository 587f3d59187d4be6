// Package types provides the semantic types and type hints of compiled properties.
package types

import (
	"sort"
	"strings"
)

// TypeKind represents the kind of a property type
type TypeKind string

const (
	KindAtomic  TypeKind = "atomic"
	KindArray   TypeKind = "array"
	KindObject  TypeKind = "object"
	KindUnion   TypeKind = "union"
	KindUnknown TypeKind = "unknown"
)

// AtomicType represents atomic JSON value types
type AtomicType string

const (
	AtomicString  AtomicType = "string"
	AtomicInt     AtomicType = "int"
	AtomicNumber  AtomicType = "float"
	AtomicBoolean AtomicType = "bool"
	AtomicNull    AtomicType = "null"
)

// TypeDef represents a full type definition of a property
type TypeDef struct {
	Kind         TypeKind           // The kind of type (atomic, array, object, union)
	AtomicType   AtomicType         // The specific atomic type if Kind is atomic
	ArrayType    *TypeDef           // The type of array elements if Kind is array
	ObjectFields map[string]TypeDef // The field types if Kind is object
	Union        []TypeDef          // The members if Kind is union
}

// NewAtomicType creates a new TypeDef for an atomic type
func NewAtomicType(atomicType AtomicType) TypeDef {
	return TypeDef{
		Kind:       KindAtomic,
		AtomicType: atomicType,
	}
}

// NewArrayType creates a new TypeDef for an array type
func NewArrayType(elementType TypeDef) TypeDef {
	return TypeDef{
		Kind:      KindArray,
		ArrayType: &elementType,
	}
}

// NewObjectType creates a new TypeDef for an object type
func NewObjectType(fields map[string]TypeDef) TypeDef {
	if fields == nil {
		fields = make(map[string]TypeDef)
	}
	return TypeDef{
		Kind:         KindObject,
		ObjectFields: fields,
	}
}

// NewUnionType creates a new TypeDef for a union of the given members.
// The result is not canonized, call CanonizeUnion to remove duplicates.
func NewUnionType(members []TypeDef) TypeDef {
	return TypeDef{
		Kind:  KindUnion,
		Union: members,
	}
}

// NewUnknownType creates a new TypeDef for an unknown type
func NewUnknownType() TypeDef {
	return TypeDef{
		Kind: KindUnknown,
	}
}

// FromJSONType maps a JSON Schema "type" name to a TypeDef.
//
// Parameters:
//
//	name string: The JSON Schema type name (e.g., "string", "integer", "object").
//
// Returns:
//
//	TypeDef: The corresponding type, unknown for unrecognized names.
func FromJSONType(name string) TypeDef {
	switch name {
	case "string":
		return NewAtomicType(AtomicString)
	case "integer":
		return NewAtomicType(AtomicInt)
	case "number":
		return NewAtomicType(AtomicNumber)
	case "boolean":
		return NewAtomicType(AtomicBoolean)
	case "null":
		return NewAtomicType(AtomicNull)
	case "array":
		return NewArrayType(NewUnknownType())
	case "object":
		return NewObjectType(nil)
	default:
		return NewUnknownType()
	}
}

// IsAtomic returns true if the type is atomic
func (t *TypeDef) IsAtomic() bool {
	return t.Kind == KindAtomic
}

// IsArray returns true if the type is an array
func (t *TypeDef) IsArray() bool {
	return t.Kind == KindArray
}

// IsObject returns true if the type is an object
func (t *TypeDef) IsObject() bool {
	return t.Kind == KindObject
}

// IsUnion returns true if the type is a union
func (t *TypeDef) IsUnion() bool {
	return t.Kind == KindUnion
}

// IsUnknown returns true if the type is unknown
func (t *TypeDef) IsUnknown() bool {
	return t.Kind == KindUnknown
}

// IsNull returns true if the type is the atomic null type
func (t *TypeDef) IsNull() bool {
	return t.Kind == KindAtomic && t.AtomicType == AtomicNull
}

// AllowsNull reports whether null is a member of the type.
func (t *TypeDef) AllowsNull() bool {
	if t.IsNull() {
		return true
	}
	for i := range t.Union {
		if t.Union[i].AllowsNull() {
			return true
		}
	}
	return false
}

// IsEqual checks if this type is exactly equal to another type
func (t *TypeDef) IsEqual(other *TypeDef) bool {
	if t.Kind != other.Kind {
		return false
	}

	switch t.Kind {
	case KindAtomic:
		return t.AtomicType == other.AtomicType
	case KindArray:
		if t.ArrayType == nil || other.ArrayType == nil {
			return t.ArrayType == other.ArrayType
		}
		return t.ArrayType.IsEqual(other.ArrayType)
	case KindObject:
		if len(t.ObjectFields) != len(other.ObjectFields) {
			return false
		}
		for field, type1 := range t.ObjectFields {
			type2, exists := other.ObjectFields[field]
			if !exists || !type1.IsEqual(&type2) {
				return false
			}
		}
		return true
	case KindUnion:
		if len(t.Union) != len(other.Union) {
			return false
		}
		for i := range t.Union {
			if !other.containsMember(&t.Union[i]) {
				return false
			}
		}
		return true
	case KindUnknown:
		return true
	}
	return false
}

func (t *TypeDef) containsMember(member *TypeDef) bool {
	for i := range t.Union {
		if t.Union[i].IsEqual(member) {
			return true
		}
	}
	return false
}

// IsMorePrecise returns true if this type is more precise than the other type.
// An atomic type is more precise than non-atomic types.
// For objects, having more fields (recursively) means more precise.
// For arrays, having more precise element type means more precise.
func (t *TypeDef) IsMorePrecise(other *TypeDef) bool {
	if t.IsUnknown() {
		return false
	}
	if other.IsUnknown() {
		return true
	}
	if t.Kind != other.Kind {
		return t.IsAtomic()
	}

	switch t.Kind {
	case KindArray:
		if t.ArrayType == nil || other.ArrayType == nil {
			return false
		}
		return t.ArrayType.IsMorePrecise(other.ArrayType)
	case KindObject:
		return t.compareObjects(other)
	}
	return false
}

// compareObjects checks if the current object type is more precise than another object type.
func (t *TypeDef) compareObjects(other *TypeDef) bool {
	if len(t.ObjectFields) < len(other.ObjectFields) {
		return false
	}
	for fieldName, otherType := range other.ObjectFields {
		thisType, exists := t.ObjectFields[fieldName]
		if !exists {
			return false
		}
		if !thisType.IsMorePrecise(&otherType) && !thisType.IsEqual(&otherType) {
			return false
		}
	}
	return len(t.ObjectFields) > len(other.ObjectFields) || hasMorePreciseField(t, other)
}

// hasMorePreciseField checks if any field in t1 is more precise than the corresponding field in t2
func hasMorePreciseField(t1, t2 *TypeDef) bool {
	for fieldName, type1 := range t1.ObjectFields {
		type2, exists := t2.ObjectFields[fieldName]
		if !exists {
			continue
		}
		if type1.IsMorePrecise(&type2) {
			return true
		}
	}
	return false
}

// CanonizeUnion flattens nested unions and removes duplicate members.
// A union left with a single member collapses into that member; a union
// containing unknown collapses into unknown.
func (t *TypeDef) CanonizeUnion() {
	if !t.IsUnion() {
		return
	}
	flat := make([]TypeDef, 0, len(t.Union))
	var add func(m TypeDef)
	add = func(m TypeDef) {
		if m.IsUnion() {
			for _, inner := range m.Union {
				add(inner)
			}
			return
		}
		for i := range flat {
			if flat[i].IsEqual(&m) {
				return
			}
		}
		flat = append(flat, m)
	}
	for _, m := range t.Union {
		add(m)
	}
	for i := range flat {
		if flat[i].IsUnknown() {
			*t = NewUnknownType()
			return
		}
	}
	switch len(flat) {
	case 0:
		*t = NewUnknownType()
	case 1:
		*t = flat[0]
	default:
		t.Union = flat
	}
}

// Merge combines two TypeDef values into a single, more precise type as
// required by a conjunction (allOf).
//
// Heuristics:
//   - If equal, return the type.
//   - If one is more precise than the other, return the more precise one.
//   - If both are objects, merge their fields (union of field sets, merging recursively).
//   - If both are arrays, merge element types recursively.
//   - Otherwise, return a union of both and canonize.
//
// Parameters:
//
//	a TypeDef: The first type to merge.
//	b TypeDef: The second type to merge.
//
// Returns:
//
//	TypeDef: The merged type.
func Merge(a, b TypeDef) TypeDef {
	if a.IsEqual(&b) {
		return a
	}
	if a.IsMorePrecise(&b) {
		return a
	}
	if b.IsMorePrecise(&a) {
		return b
	}
	if a.IsObject() && b.IsObject() {
		merged := make(map[string]TypeDef)
		for k, va := range a.ObjectFields {
			if vb, ok := b.ObjectFields[k]; ok {
				merged[k] = Merge(va, vb)
			} else {
				merged[k] = va
			}
		}
		for k, vb := range b.ObjectFields {
			if _, ok := merged[k]; !ok {
				merged[k] = vb
			}
		}
		return NewObjectType(merged)
	}
	if a.IsArray() && b.IsArray() {
		if a.ArrayType == nil || b.ArrayType == nil {
			return NewArrayType(NewUnknownType())
		}
		return NewArrayType(Merge(*a.ArrayType, *b.ArrayType))
	}
	u := NewUnionType([]TypeDef{a, b})
	u.CanonizeUnion()
	return u
}

// Join returns the canonized union of the given types.
func Join(members ...TypeDef) TypeDef {
	u := NewUnionType(members)
	u.CanonizeUnion()
	return u
}

// JSONTypes returns the JSON Schema type names matched by the type.
// Unknown types yield nil which means "any type".
func (t *TypeDef) JSONTypes() []string {
	switch t.Kind {
	case KindAtomic:
		switch t.AtomicType {
		case AtomicString:
			return []string{"string"}
		case AtomicInt:
			return []string{"integer"}
		case AtomicNumber:
			return []string{"number"}
		case AtomicBoolean:
			return []string{"boolean"}
		case AtomicNull:
			return []string{"null"}
		}
	case KindArray:
		return []string{"array"}
	case KindObject:
		return []string{"object"}
	case KindUnion:
		var names []string
		for i := range t.Union {
			inner := t.Union[i].JSONTypes()
			if inner == nil {
				return nil
			}
			names = append(names, inner...)
		}
		return names
	}
	return nil
}

// String returns a short human-readable representation of the type,
// e.g. "string", "array<int>", "object", "string|null".
func (t TypeDef) String() string {
	switch t.Kind {
	case KindAtomic:
		return string(t.AtomicType)
	case KindArray:
		if t.ArrayType == nil {
			return "array<unknown>"
		}
		return "array<" + t.ArrayType.String() + ">"
	case KindObject:
		return "object"
	case KindUnion:
		parts := make([]string, 0, len(t.Union))
		for _, m := range t.Union {
			parts = append(parts, m.String())
		}
		sort.Strings(parts)
		return strings.Join(parts, "|")
	case KindUnknown:
		return "unknown"
	}
	return "invalid"
}
