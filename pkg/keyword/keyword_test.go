package keyword

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/vhavlena/schemagraph/pkg/err"
	"github.com/vhavlena/schemagraph/pkg/model"
	"github.com/vhavlena/schemagraph/pkg/types"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func failing(leaves []*model.Leaf, value any) []string {
	var out []string
	for _, l := range leaves {
		if !l.Check(value, true) {
			out = append(out, l.Keyword)
		}
	}
	return out
}

func TestCompileStringKeywords(t *testing.T) {
	t.Parallel()

	leaves, err := Compile("property name", decode(t, `{"minLength": 6, "maxLength": 8, "pattern": "^test[0-9]+$"}`).(map[string]any))
	require.NoError(t, err)
	require.Len(t, leaves, 3)
	assert.Equal(t, "pattern", leaves[0].Keyword)
	assert.Equal(t, "minLength", leaves[1].Keyword)
	assert.Equal(t, "maxLength", leaves[2].Keyword)

	tests := []struct {
		value string
		want  []string
	}{
		{"test123", nil},
		{"test", []string{"pattern", "minLength"}},
		{"test12345a", []string{"pattern", "maxLength"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failing(leaves, tt.value), tt.value)
	}

	format, args := leaves[1].Message()
	assert.Equal(t, "Value for %s must not be shorter than %v", format)
	assert.Equal(t, []any{float64(6)}, args)
}

func TestCompileIgnoresOtherTypesAndAbsence(t *testing.T) {
	t.Parallel()

	leaves, err := Compile("p", map[string]any{"minLength": float64(3), "minimum": float64(2)})
	require.NoError(t, err)
	require.Len(t, leaves, 2)

	assert.Empty(t, failing(leaves, nil))
	assert.Equal(t, []string{"minimum"}, failing(leaves, decode(t, `1`)))
	assert.Equal(t, []string{"minLength"}, failing(leaves, "ab"))
	for _, l := range leaves {
		assert.True(t, l.Check(nil, false))
	}
}

func TestCompileNumericAndCollections(t *testing.T) {
	t.Parallel()

	leaves, err := Compile("p", decode(t, `{"exclusiveMaximum": 10, "multipleOf": 2, "minItems": 1, "uniqueItems": true, "maxProperties": 1}`).(map[string]any))
	require.NoError(t, err)

	assert.Empty(t, failing(leaves, decode(t, `4`)))
	assert.Equal(t, []string{"exclusiveMaximum"}, failing(leaves, decode(t, `10`)))
	assert.Equal(t, []string{"multipleOf"}, failing(leaves, decode(t, `3`)))
	assert.Equal(t, []string{"minItems"}, failing(leaves, decode(t, `[]`)))
	assert.Equal(t, []string{"uniqueItems"}, failing(leaves, decode(t, `[1, 1]`)))
	assert.Equal(t, []string{"maxProperties"}, failing(leaves, decode(t, `{"a": 1, "b": 2}`)))
}

func TestConstAndEnum(t *testing.T) {
	t.Parallel()

	leaves, err := Compile("p", decode(t, `{"const": {"a": [1, "x"]}, "enum": [{"a": [1, "x"]}, 3]}`).(map[string]any))
	require.NoError(t, err)
	require.Len(t, leaves, 2)

	assert.Empty(t, failing(leaves, decode(t, `{"a": [1, "x"]}`)))
	assert.Equal(t, []string{"const"}, failing(leaves, decode(t, `3`)))
	assert.Equal(t, []string{"const", "enum"}, failing(leaves, "a"))

	format, _ := leaves[0].Message()
	assert.Equal(t, "Invalid value for %s declined by const constraint", format)
}

func TestCompileInvalidKeyword(t *testing.T) {
	t.Parallel()

	_, err := Compile("p", map[string]any{"pattern": "("})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidKeyword)
	assert.ErrorIs(t, err, errs.ErrSchema)

	_, err = Compile("p", map[string]any{"enum": "x"})
	assert.ErrorIs(t, err, errs.ErrInvalidKeyword)
}

func TestTypeCheck(t *testing.T) {
	t.Parallel()

	check, err := TypeCheck("age", types.NewAtomicType(types.AtomicInt), false)
	require.NoError(t, err)
	assert.Equal(t, model.ErrorType, check.ErrorKind())
	assert.True(t, check.Check(decode(t, `3`), true))
	assert.False(t, check.Check(decode(t, `3.5`), true))
	assert.False(t, check.Check(nil, true))
	assert.True(t, check.Check(nil, false))

	nullable, err := TypeCheck("age", types.NewAtomicType(types.AtomicInt), true)
	require.NoError(t, err)
	assert.True(t, nullable.Check(nil, true))
	assert.False(t, nullable.Check("x", true))

	union, err := TypeCheck("v", types.Join(types.NewAtomicType(types.AtomicString), types.NewObjectType(nil)), false)
	require.NoError(t, err)
	assert.True(t, union.Check("x", true))
	assert.True(t, union.Check(map[string]any{}, true))
	assert.False(t, union.Check(true, true))

	none, err := TypeCheck("v", types.NewUnknownType(), false)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRequiredAndAdditionalProperties(t *testing.T) {
	t.Parallel()

	required := Required()
	assert.False(t, required.Check(nil, false))
	assert.True(t, required.Check(nil, true))

	closed := AdditionalPropertiesFalse([]string{"a"})
	assert.True(t, closed.Check(map[string]any{"a": 1}, true))
	assert.False(t, closed.Check(map[string]any{"a": 1, "b": 2}, true))
	assert.True(t, closed.Check("not an object", true))
}
