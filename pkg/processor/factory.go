// Package processor builds properties and schemas from schema fragments.
package processor

import (
	"sort"
	"strconv"

	"github.com/go-logr/logr"
	metrics "github.com/rcrowley/go-metrics"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/vhavlena/schemagraph/pkg/composition"
	"github.com/vhavlena/schemagraph/pkg/config"
	"github.com/vhavlena/schemagraph/pkg/definition"
	errs "github.com/vhavlena/schemagraph/pkg/err"
	"github.com/vhavlena/schemagraph/pkg/keyword"
	"github.com/vhavlena/schemagraph/pkg/model"
	"github.com/vhavlena/schemagraph/pkg/source"
	"github.com/vhavlena/schemagraph/pkg/types"
)

const (
	metricPropertiesBuilt = "processor.properties.built"
	metricSchemasBuilt    = "processor.schemas.built"
)

// Names of the element properties of templated validators.
const (
	PropertyNameElement       = "property name"
	AdditionalPropertyElement = "additional property"
	arrayItemPrefix           = "item of array "
)

// Factory is the property build pipeline. It implements
// definition.PropertyFactory.
type Factory struct {
	cfg     config.Config
	arena   *model.Arena
	engine  *composition.Engine
	log     logr.Logger
	metrics metrics.Registry
}

var _ definition.PropertyFactory = (*Factory)(nil)

// NewFactory creates a Factory storing properties in arena.
//
// Parameters:
//
//	cfg config.Config: The generator configuration.
//	arena *model.Arena: The arena of the compilation run.
//	log logr.Logger: The logger.
//	reg metrics.Registry: Receives build counters, may be nil.
//
// Returns:
//
//	*Factory: The factory.
func NewFactory(cfg config.Config, arena *model.Arena, log logr.Logger, reg metrics.Registry) *Factory {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	f := &Factory{cfg: cfg, arena: arena, log: log, metrics: reg}
	f.engine = composition.NewEngine(f, log)
	return f
}

// Create builds the property name from a schema fragment. A $ref is resolved
// through the dictionary of the scope.
//
// Parameters:
//
//	scope definition.Scope: The schema and dictionary the property is built in.
//	meta model.Metadata: The metadata of the creation site.
//	name string: The property name.
//	doc *source.Document: The schema fragment.
//
// Returns:
//
//	model.Ref: A handle to the property.
//	error: A schema error.
func (f *Factory) Create(scope definition.Scope, meta model.Metadata, name string, doc *source.Document) (model.Ref, error) {
	var obj map[string]any
	switch v := doc.JSON().(type) {
	case map[string]any:
		obj = v
	case bool:
		return f.booleanSchema(name, meta, v)
	default:
		return model.Ref{}, errs.ErrKeyword("schema", name, nil)
	}

	if ref, ok := obj["$ref"].(string); ok {
		def, path, err := scope.Dictionary.Definition(ref)
		if err != nil {
			return model.Ref{}, err
		}
		return def.ResolveReference(name, path, meta)
	}

	typ, err := schemaType(name, obj)
	if err != nil {
		return model.Ref{}, err
	}
	required := meta.IsRequired(name)
	nullable := typ.AllowsNull() || obj["nullable"] == true
	description, _ := obj["description"].(string)

	p := model.NewProperty(name, typ,
		model.WithRequired(required),
		model.WithReadOnly(obj["readOnly"] == true || f.cfg.Immutable),
		model.WithNullable(nullable),
		model.WithDescription(description),
		model.WithDefault(obj["default"]),
	)
	implicitNull := f.cfg.ImplicitNull && !required
	if err := f.addValidators(scope, p, typ, nullable || implicitNull, obj, doc); err != nil {
		return model.Ref{}, err
	}
	if implicitNull {
		if err := p.AddTypeHint(model.TypeHint{Type: types.NewAtomicType(types.AtomicNull), Implicit: true}); err != nil {
			return model.Ref{}, err
		}
	}

	ref := f.arena.Add(p)
	f.seal(p.Validators())
	metrics.GetOrRegisterCounter(metricPropertiesBuilt, f.metrics).Inc(1)
	f.log.V(2).Info("built property", "property", name, "type", p.TypeHint().String(), "required", required)
	return ref, nil
}

func (f *Factory) addValidators(scope definition.Scope, p *model.Property, typ types.TypeDef, nullable bool, obj map[string]any, doc *source.Document) error {
	name := p.Name()
	if p.IsRequired() {
		if err := p.AddValidator(keyword.Required(), model.PriorityRequired); err != nil {
			return err
		}
	}

	check, err := keyword.TypeCheck(name, typ, nullable)
	if err != nil {
		return err
	}
	if check != nil {
		if err := p.AddValidator(check, model.PriorityType); err != nil {
			return err
		}
	}

	leaves, err := keyword.Compile(name, obj)
	if err != nil {
		return err
	}
	for _, leaf := range leaves {
		if err := p.AddValidator(leaf, model.PriorityValue); err != nil {
			return err
		}
	}

	if err := f.items(scope, p, obj, doc); err != nil {
		return err
	}

	if hasObject(typ) {
		nested, err := f.nestedSchema(scope, name, doc)
		if err != nil {
			return err
		}
		return p.SetNestedSchema(nested)
	}

	if !composition.HasComposition(obj) {
		return nil
	}
	res, err := f.engine.Compose(scope, composition.Host{
		Name:                 name,
		Required:             p.IsRequired(),
		OnlyForDefinedValues: !p.IsRequired(),
	}, doc)
	if err != nil {
		return err
	}
	for _, v := range res.Validators {
		if err := p.AddValidator(v, model.PriorityComposed); err != nil {
			return err
		}
	}
	for _, h := range res.Hints {
		if err := p.AddTypeHint(h); err != nil {
			return err
		}
	}
	return nil
}

// items compiles the single-schema form of the items keyword. Tuple item
// lists are not compiled.
func (f *Factory) items(scope definition.Scope, p *model.Property, obj map[string]any, doc *source.Document) error {
	raw, ok := obj["items"]
	if !ok {
		return nil
	}
	if _, tuple := raw.([]any); tuple {
		f.log.V(1).Info("skipping tuple items", "property", p.Name())
		return nil
	}

	itemName := arrayItemPrefix + p.Name()
	item, err := f.Create(scope, model.NewMetadata(itemName), itemName, doc.WithJSON(raw))
	if err != nil {
		return err
	}
	v := &model.TemplatedLeaf{
		Keyword:     "items",
		Error:       model.ErrorArrayItem,
		Format:      "Invalid items in array %s",
		Accumulator: "invalidItems",
		Element:     item,
		Elements:    arrayElements,
		Skip:        []model.ErrorKind{model.ErrorRequired},
	}
	if err := p.AddValidator(v, model.PriorityValue); err != nil {
		return err
	}
	return p.AddTypeHint(model.TypeHint{Element: &item})
}

// BuildSchema compiles a root document into scope.Schema and freezes it.
// Model-level keywords and compositions become base validators.
//
// Parameters:
//
//	scope definition.Scope: The root schema and the dictionary of its document.
//	doc *source.Document: The root document.
//
// Returns:
//
//	error: A schema error.
func (f *Factory) BuildSchema(scope definition.Scope, doc *source.Document) error {
	obj, ok := doc.Object()
	if !ok {
		return errs.ErrInvalidFile(doc.File(), nil)
	}
	leaves, err := keyword.Compile(scope.Schema.ClassName(), obj)
	if err != nil {
		return err
	}
	for _, leaf := range leaves {
		if _, err := scope.Schema.AddBaseValidator(leaf); err != nil {
			return err
		}
	}
	return f.populate(scope, obj, doc)
}

func (f *Factory) nestedSchema(scope definition.Scope, name string, doc *source.Document) (*model.Schema, error) {
	className := name
	if scope.Schema != nil && scope.Schema.ClassName() != "" {
		className = scope.Schema.ClassName() + "_" + name
	}
	s := model.NewSchema(className, doc)
	obj, _ := doc.Object()
	if err := f.populate(definition.Scope{Schema: s, Dictionary: scope.Dictionary}, obj, doc); err != nil {
		return nil, err
	}
	return s, nil
}

// populate adds the properties and model-level validators of an object schema.
func (f *Factory) populate(scope definition.Scope, obj map[string]any, doc *source.Document) error {
	s := scope.Schema
	required := stringList(obj["required"])
	meta := model.NewMetadata(required...).WithDependencies(dependencies(obj))

	props, _ := obj["properties"].(map[string]any)
	declared := sortedKeys(props)
	for _, key := range declared {
		ref, err := f.Create(scope, meta, key, doc.WithJSON(props[key]))
		if err != nil {
			return err
		}
		if err := s.AddProperty(ref); err != nil {
			return err
		}
	}

	for _, name := range required {
		if _, ok := props[name]; ok {
			continue
		}
		ref, err := f.undeclaredRequired(name)
		if err != nil {
			return err
		}
		if err := s.AddProperty(ref); err != nil {
			return err
		}
	}

	if err := f.additionalProperties(scope, obj, doc, declared); err != nil {
		return err
	}
	if err := f.propertyNames(scope, obj, doc); err != nil {
		return err
	}

	if composition.HasComposition(obj) {
		res, err := f.engine.Compose(scope, composition.Host{Name: s.ClassName(), Required: true}, doc)
		if err != nil {
			return err
		}
		for _, v := range res.Validators {
			if _, err := s.AddBaseValidator(v); err != nil {
				return err
			}
		}
	}

	f.seal(s.BaseValidators())
	s.Freeze()
	metrics.GetOrRegisterCounter(metricSchemasBuilt, f.metrics).Inc(1)
	f.log.V(1).Info("built schema", "class", s.ClassName(), "properties", len(s.Properties()), "baseValidators", len(s.BaseValidators()))
	return nil
}

// undeclaredRequired creates an untyped property for a required name
// without a property schema.
func (f *Factory) undeclaredRequired(name string) (model.Ref, error) {
	p := model.NewProperty(name, types.NewUnknownType(), model.WithRequired(true), model.WithReadOnly(f.cfg.Immutable))
	if err := p.AddValidator(keyword.Required(), model.PriorityRequired); err != nil {
		return model.Ref{}, err
	}
	return f.arena.Add(p), nil
}

func (f *Factory) additionalProperties(scope definition.Scope, obj map[string]any, doc *source.Document, declared []string) error {
	switch v := obj["additionalProperties"].(type) {
	case bool:
		if v {
			return nil
		}
		_, err := scope.Schema.AddBaseValidator(keyword.AdditionalPropertiesFalse(declared))
		return err
	case map[string]any:
		element, err := f.Create(scope, model.NewMetadata(AdditionalPropertyElement), AdditionalPropertyElement, doc.WithJSON(v))
		if err != nil {
			return err
		}
		_, err = scope.Schema.AddBaseValidator(&model.TemplatedLeaf{
			Keyword:     "additionalProperties",
			Error:       model.ErrorAdditionalProperties,
			Format:      "Provided JSON for %s contains invalid additional properties.",
			Accumulator: "invalidProperties",
			Element:     element,
			Elements:    additionalElements(declared),
			Skip:        []model.ErrorKind{model.ErrorRequired},
		})
		return err
	}
	return nil
}

func (f *Factory) propertyNames(scope definition.Scope, obj map[string]any, doc *source.Document) error {
	raw, ok := obj["propertyNames"]
	if !ok {
		return nil
	}
	schema, ok := raw.(map[string]any)
	if !ok {
		return errs.ErrKeyword("propertyNames", scope.Schema.ClassName(), nil)
	}
	if c, ok := schema["const"]; ok {
		if _, isString := c.(string); !isString {
			return errs.ErrConstPropertyName(doc.File())
		}
	}

	element, err := f.Create(scope, model.NewMetadata(), PropertyNameElement, doc.WithJSON(schema))
	if err != nil {
		return err
	}
	_, err = scope.Schema.AddBaseValidator(&model.TemplatedLeaf{
		Keyword:     "propertyNames",
		Error:       model.ErrorPropertyNames,
		Format:      "Provided JSON for %s contains properties with invalid names.",
		Accumulator: "invalidProperties",
		Element:     element,
		Elements:    objectKeys,
		Skip:        []model.ErrorKind{model.ErrorRequired, model.ErrorType},
	})
	return err
}

func (f *Factory) booleanSchema(name string, meta model.Metadata, allow bool) (model.Ref, error) {
	p := model.NewProperty(name, types.NewUnknownType(), model.WithRequired(meta.IsRequired(name)), model.WithReadOnly(f.cfg.Immutable))
	if p.IsRequired() {
		if err := p.AddValidator(keyword.Required(), model.PriorityRequired); err != nil {
			return model.Ref{}, err
		}
	}
	if !allow {
		deny := &model.Leaf{
			Keyword: "false",
			Error:   model.ErrorValue,
			Format:  "Value for %s is denied by a false schema",
			Check:   func(_ any, present bool) bool { return !present },
		}
		if err := p.AddValidator(deny, model.PriorityValue); err != nil {
			return model.Ref{}, err
		}
	}
	return f.arena.Add(p), nil
}

// seal freezes the element and branch properties owned by validators.
func (f *Factory) seal(validators []model.Validator) {
	for _, v := range validators {
		if t, ok := v.(*model.TemplatedLeaf); ok {
			f.arena.Defer(t.Element.ID(), (*model.Property).Freeze)
			continue
		}
		c, ok := model.AsComposed(v)
		if !ok {
			continue
		}
		for _, b := range c.Branches {
			if b.Ref != nil {
				f.arena.Defer(b.Ref.ID(), (*model.Property).Freeze)
			}
		}
	}
}

// schemaType reads the type keyword. Without it objects and arrays are
// inferred from their keywords.
func schemaType(name string, obj map[string]any) (types.TypeDef, error) {
	switch t := obj["type"].(type) {
	case string:
		return jsonType(name, t)
	case []any:
		members := make([]types.TypeDef, 0, len(t))
		for _, m := range t {
			s, ok := m.(string)
			if !ok {
				return types.TypeDef{}, errs.ErrKeyword("type", name, nil)
			}
			typ, err := jsonType(name, s)
			if err != nil {
				return types.TypeDef{}, err
			}
			members = append(members, typ)
		}
		return types.Join(members...), nil
	case nil:
		if _, ok := obj["type"]; ok {
			return types.TypeDef{}, errs.ErrKeyword("type", name, nil)
		}
	default:
		return types.TypeDef{}, errs.ErrKeyword("type", name, nil)
	}

	for _, kw := range []string{"properties", "required", "additionalProperties", "propertyNames"} {
		if _, ok := obj[kw]; ok {
			return types.NewObjectType(nil), nil
		}
	}
	if _, ok := obj["items"]; ok {
		return types.NewArrayType(types.NewUnknownType()), nil
	}
	return types.NewUnknownType(), nil
}

func jsonType(name, t string) (types.TypeDef, error) {
	typ := types.FromJSONType(t)
	if typ.IsUnknown() {
		return types.TypeDef{}, errs.ErrKeyword("type", name, nil)
	}
	return typ, nil
}

func hasObject(t types.TypeDef) bool {
	if t.IsObject() {
		return true
	}
	for _, m := range t.Union {
		if m.IsObject() {
			return true
		}
	}
	return false
}

func stringList(raw any) []string {
	list, _ := raw.([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// dependencies reads the property dependencies of the dependencies and
// dependentRequired keywords.
func dependencies(obj map[string]any) map[string][]string {
	deps := map[string][]string{}
	for _, kw := range []string{"dependencies", "dependentRequired"} {
		raw, _ := obj[kw].(map[string]any)
		for name, v := range raw {
			if list, ok := v.([]any); ok {
				deps[name] = append(deps[name], stringList(list)...)
			}
		}
	}
	return deps
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func arrayElements(value any) []model.Element {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]model.Element, len(list))
	for i, v := range list {
		out[i] = model.Element{Key: strconv.Itoa(i), Value: v}
	}
	return out
}

func objectKeys(value any) []model.Element {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	keys := sortedKeys(obj)
	out := make([]model.Element, len(keys))
	for i, k := range keys {
		out[i] = model.Element{Key: k, Value: k}
	}
	return out
}

func additionalElements(declared []string) func(any) []model.Element {
	known := sets.New(declared...)
	return func(value any) []model.Element {
		obj, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		var out []model.Element
		for _, k := range sortedKeys(obj) {
			if !known.Has(k) {
				out = append(out, model.Element{Key: k, Value: obj[k]})
			}
		}
		return out
	}
}
