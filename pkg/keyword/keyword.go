// Package keyword compiles the single-value JSON Schema keywords of a
// property into leaf validators.
package keyword

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/open-policy-agent/opa/v1/ast"
	qjsonschema "github.com/qri-io/jsonschema"

	errs "github.com/vhavlena/schemagraph/pkg/err"
	"github.com/vhavlena/schemagraph/pkg/model"
	"github.com/vhavlena/schemagraph/pkg/types"
)

type rule struct {
	keyword string
	format  string
	kind    model.ErrorKind
}

// Rules in evaluation order.
var rules = []rule{
	{"pattern", "Value for %s doesn't match pattern %v", model.ErrorValue},
	{"minLength", "Value for %s must not be shorter than %v", model.ErrorValue},
	{"maxLength", "Value for %s must not be longer than %v", model.ErrorValue},
	{"minimum", "Value for %s must not be smaller than %v", model.ErrorValue},
	{"maximum", "Value for %s must not be larger than %v", model.ErrorValue},
	{"exclusiveMinimum", "Value for %s must be larger than %v", model.ErrorValue},
	{"exclusiveMaximum", "Value for %s must be smaller than %v", model.ErrorValue},
	{"multipleOf", "Value for %s must be a multiple of %v", model.ErrorValue},
	{"minItems", "Array %s must not contain less than %v items", model.ErrorArrayItem},
	{"maxItems", "Array %s must not contain more than %v items", model.ErrorArrayItem},
	{"uniqueItems", "Items of array %s are not unique", model.ErrorArrayItem},
	{"minProperties", "Provided object for %s must not contain less than %v properties", model.ErrorValue},
	{"maxProperties", "Provided object for %s must not contain more than %v properties", model.ErrorValue},
}

// Keywords returns the keywords Compile understands.
func Keywords() []string {
	names := []string{"const", "enum"}
	for _, r := range rules {
		names = append(names, r.keyword)
	}
	return names
}

// Compile returns the leaf validators for the simple keywords of a schema
// fragment: const, enum, string, numeric, array and object size constraints.
//
// Parameters:
//
//	property string: The property the validators belong to, used in errors.
//	schema map[string]any: The schema fragment.
//
// Returns:
//
//	[]*model.Leaf: The validators in evaluation order.
//	error: An invalid keyword error when a keyword value cannot be compiled.
func Compile(property string, schema map[string]any) ([]*model.Leaf, error) {
	var leaves []*model.Leaf

	if expected, ok := schema["const"]; ok {
		leaf, err := Const(property, expected)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	if raw, ok := schema["enum"]; ok {
		values, isList := raw.([]any)
		if !isList {
			return nil, errs.ErrKeyword("enum", property, nil)
		}
		leaf, err := Enum(property, values)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}

	for _, r := range rules {
		value, ok := schema[r.keyword]
		if !ok {
			continue
		}
		if r.keyword == "uniqueItems" && value != true {
			continue
		}
		rs, err := compile(r.keyword, value)
		if err != nil {
			return nil, errs.ErrKeyword(r.keyword, property, err)
		}
		var args []any
		if r.keyword != "uniqueItems" {
			args = []any{value}
		}
		leaves = append(leaves, &model.Leaf{
			Keyword: r.keyword,
			Error:   r.kind,
			Format:  r.format,
			Args:    args,
			Check:   checkWith(rs),
		})
	}
	return leaves, nil
}

// Required returns the presence check of a required property.
func Required() *model.Leaf {
	return &model.Leaf{
		Keyword: "required",
		Error:   model.ErrorRequired,
		Format:  "Missing required value for %s",
		Check: func(_ any, present bool) bool {
			return present
		},
	}
}

// TypeCheck returns the type check for a declared type. It returns nil when
// the type accepts any value.
//
// Parameters:
//
//	property string: The property the check belongs to.
//	typ types.TypeDef: The declared type.
//	nullable bool: Whether null is accepted in addition to the declared type.
//
// Returns:
//
//	*model.Leaf: The type check, nil for unknown types.
//	error: An invalid keyword error.
func TypeCheck(property string, typ types.TypeDef, nullable bool) (*model.Leaf, error) {
	names := typ.JSONTypes()
	if names == nil {
		return nil, nil
	}
	if nullable && !slices.Contains(names, "null") {
		names = append(names, "null")
	}
	rs, err := compile("type", names)
	if err != nil {
		return nil, errs.ErrKeyword("type", property, err)
	}
	check := checkWith(rs)
	return &model.Leaf{
		Keyword: "type",
		Error:   model.ErrorType,
		Format:  "Invalid type for %s. Requires %v",
		Args:    []any{typ.String()},
		Check: func(value any, present bool) bool {
			if !present {
				return true
			}
			return check(value, present)
		},
	}, nil
}

// Const returns the check of the const keyword.
func Const(property string, expected any) (*model.Leaf, error) {
	want, err := ast.InterfaceToValue(expected)
	if err != nil {
		return nil, errs.ErrKeyword("const", property, err)
	}
	return &model.Leaf{
		Keyword: "const",
		Error:   model.ErrorValue,
		Format:  "Invalid value for %s declined by const constraint",
		Check: func(value any, present bool) bool {
			if !present {
				return true
			}
			return equal(want, value)
		},
	}, nil
}

// Enum returns the check of the enum keyword.
func Enum(property string, allowed []any) (*model.Leaf, error) {
	values := make([]ast.Value, 0, len(allowed))
	for _, a := range allowed {
		v, err := ast.InterfaceToValue(a)
		if err != nil {
			return nil, errs.ErrKeyword("enum", property, err)
		}
		values = append(values, v)
	}
	return &model.Leaf{
		Keyword: "enum",
		Error:   model.ErrorValue,
		Format:  "Invalid value for %s declined by enum constraint",
		Check: func(value any, present bool) bool {
			if !present {
				return true
			}
			for _, want := range values {
				if equal(want, value) {
					return true
				}
			}
			return false
		},
	}, nil
}

// AdditionalPropertiesFalse rejects object members not declared in the schema.
func AdditionalPropertiesFalse(declared []string) *model.Leaf {
	allowed := slices.Clone(declared)
	return &model.Leaf{
		Keyword: "additionalProperties",
		Error:   model.ErrorAdditionalProperties,
		Format:  "Provided JSON for %s contains not allowed additional properties",
		Check: func(value any, present bool) bool {
			obj, ok := value.(map[string]any)
			if !present || !ok {
				return true
			}
			for key := range obj {
				if !slices.Contains(allowed, key) {
					return false
				}
			}
			return true
		},
	}
}

func equal(want ast.Value, value any) bool {
	got, err := ast.InterfaceToValue(value)
	if err != nil {
		return false
	}
	return want.Compare(got) == 0
}

// compile builds a single-keyword qri schema.
func compile(keyword string, value any) (*qjsonschema.Schema, error) {
	data, err := json.Marshal(map[string]any{keyword: value})
	if err != nil {
		return nil, err
	}
	rs := &qjsonschema.Schema{}
	if err := json.Unmarshal(data, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func checkWith(rs *qjsonschema.Schema) model.Check {
	return func(value any, present bool) bool {
		if !present {
			return true
		}
		return rs.Validate(context.Background(), value).IsValid()
	}
}
