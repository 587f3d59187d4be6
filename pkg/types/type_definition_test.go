package types

import "testing"

func TestTypeDefCreation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		typeDef    TypeDef
		kind       TypeKind
		atomicType AtomicType
	}{
		{"atomic string type", NewAtomicType(AtomicString), KindAtomic, AtomicString},
		{"atomic int type", NewAtomicType(AtomicInt), KindAtomic, AtomicInt},
		{"array type", NewArrayType(NewAtomicType(AtomicString)), KindArray, ""},
		{"object type", NewObjectType(map[string]TypeDef{"field1": NewAtomicType(AtomicString)}), KindObject, ""},
		{"json integer", FromJSONType("integer"), KindAtomic, AtomicInt},
		{"json number", FromJSONType("number"), KindAtomic, AtomicNumber},
		{"json null", FromJSONType("null"), KindAtomic, AtomicNull},
		{"json object", FromJSONType("object"), KindObject, ""},
		{"json unknown name", FromJSONType("blob"), KindUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.typeDef.Kind != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, tt.typeDef.Kind)
			}
			if tt.kind == KindAtomic && tt.typeDef.AtomicType != tt.atomicType {
				t.Errorf("expected atomic type %v, got %v", tt.atomicType, tt.typeDef.AtomicType)
			}
		})
	}
}

func TestIsMorePrecise(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		type1    TypeDef
		type2    TypeDef
		expected bool
	}{
		{
			name:     "unknown is not more precise than atomic",
			type1:    NewUnknownType(),
			type2:    NewAtomicType(AtomicString),
			expected: false,
		},
		{
			name:     "atomic is more precise than unknown",
			type1:    NewAtomicType(AtomicString),
			type2:    NewUnknownType(),
			expected: true,
		},
		{
			name:     "atomic types have equal precision",
			type1:    NewAtomicType(AtomicString),
			type2:    NewAtomicType(AtomicInt),
			expected: false,
		},
		{
			name:     "array with more precise element type",
			type1:    NewArrayType(NewAtomicType(AtomicString)),
			type2:    NewArrayType(NewUnknownType()),
			expected: true,
		},
		{
			name: "object with more fields",
			type1: NewObjectType(map[string]TypeDef{
				"a": NewAtomicType(AtomicString),
				"b": NewAtomicType(AtomicInt),
			}),
			type2: NewObjectType(map[string]TypeDef{
				"a": NewAtomicType(AtomicString),
			}),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.type1.IsMorePrecise(&tt.type2); got != tt.expected {
				t.Errorf("IsMorePrecise() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCanonizeUnion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    TypeDef
		expected TypeDef
	}{
		{
			name:     "non-union type should be unchanged",
			input:    NewAtomicType(AtomicString),
			expected: NewAtomicType(AtomicString),
		},
		{
			name: "union with duplicate atomic types should remove duplicates",
			input: NewUnionType([]TypeDef{
				NewAtomicType(AtomicString),
				NewAtomicType(AtomicInt),
				NewAtomicType(AtomicString),
			}),
			expected: NewUnionType([]TypeDef{
				NewAtomicType(AtomicString),
				NewAtomicType(AtomicInt),
			}),
		},
		{
			name: "nested unions are flattened",
			input: NewUnionType([]TypeDef{
				NewAtomicType(AtomicString),
				NewUnionType([]TypeDef{NewAtomicType(AtomicNull), NewAtomicType(AtomicString)}),
			}),
			expected: NewUnionType([]TypeDef{
				NewAtomicType(AtomicString),
				NewAtomicType(AtomicNull),
			}),
		},
		{
			name:     "single-member union should simplify to that member",
			input:    NewUnionType([]TypeDef{NewAtomicType(AtomicString)}),
			expected: NewAtomicType(AtomicString),
		},
		{
			name:     "unknown member absorbs the union",
			input:    NewUnionType([]TypeDef{NewAtomicType(AtomicString), NewUnknownType()}),
			expected: NewUnknownType(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.input
			got.CanonizeUnion()
			if !got.IsEqual(&tt.expected) {
				t.Errorf("CanonizeUnion() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	a := NewObjectType(map[string]TypeDef{"a": NewAtomicType(AtomicString)})
	b := NewObjectType(map[string]TypeDef{"b": NewAtomicType(AtomicInt)})
	merged := Merge(a, b)
	if !merged.IsObject() || len(merged.ObjectFields) != 2 {
		t.Fatalf("expected merged object with 2 fields, got %v", merged)
	}

	s := NewAtomicType(AtomicString)
	u := NewUnknownType()
	if got := Merge(u, s); !got.IsEqual(&s) {
		t.Errorf("Merge(unknown, string) = %v, want string", got)
	}

	mixed := Merge(NewAtomicType(AtomicString), NewAtomicType(AtomicInt))
	if mixed.String() != "int|string" {
		t.Errorf("Merge(string, int) = %v, want int|string", mixed)
	}
}

func TestJSONTypesAndString(t *testing.T) {
	t.Parallel()

	nullable := Join(NewAtomicType(AtomicString), NewAtomicType(AtomicNull))
	if !nullable.AllowsNull() {
		t.Errorf("expected %v to allow null", nullable)
	}
	names := nullable.JSONTypes()
	if len(names) != 2 || names[0] != "string" || names[1] != "null" {
		t.Errorf("JSONTypes() = %v", names)
	}
	if got := NewArrayType(NewAtomicType(AtomicInt)).String(); got != "array<int>" {
		t.Errorf("String() = %q", got)
	}
	unknown := NewUnknownType()
	if unknown.JSONTypes() != nil {
		t.Errorf("unknown type should match any json type")
	}
}
