package model

import (
	"slices"

	errs "github.com/vhavlena/schemagraph/pkg/err"
	"github.com/vhavlena/schemagraph/pkg/source"
)

// MethodKind tags generated model methods.
type MethodKind string

// MethodCompositionValidation re-executes one model-level composed validator.
const MethodCompositionValidation MethodKind = "composition-validation"

// Method is a generated model method.
type Method struct {
	Name string
	Kind MethodKind
	// ValidatorIndex is the base validator a composition validation method re-executes.
	ValidatorIndex int
}

// ValidationStateField is the hidden model field recording the failed
// branches of tracked compositions.
const ValidationStateField = "propertyValidationState"

// HookKind tags the closed set of model hooks.
type HookKind string

// HookBeforeMutation runs inside a property mutator before the new value is validated.
const HookBeforeMutation HookKind = "setter-before-validation"

// Hook attaches method calls to the mutation surface of one property.
type Hook struct {
	Kind     HookKind
	Property string
	Calls    []string
}

// Schema is one compiled model: its properties, model-level validators and
// the generated surface added by post processors.
type Schema struct {
	className      string
	source         *source.Document
	properties     []Ref
	baseValidators []Validator
	internal       []*Property
	methods        []Method
	hooks          []Hook
	frozen         bool
}

// NewSchema creates an empty schema.
func NewSchema(className string, doc *source.Document) *Schema {
	return &Schema{className: className, source: doc}
}

// ClassName returns the model name.
func (s *Schema) ClassName() string {
	return s.className
}

// Source returns the document the schema was compiled from.
func (s *Schema) Source() *source.Document {
	return s.source
}

// Properties returns the property handles in declaration order.
func (s *Schema) Properties() []Ref {
	return s.properties
}

// Property returns the handle for name.
func (s *Schema) Property(name string) (Ref, bool) {
	for _, r := range s.properties {
		if r.Name() == name {
			return r, true
		}
	}
	return Ref{}, false
}

// AddProperty adds a property handle. A name already present is kept.
func (s *Schema) AddProperty(r Ref) error {
	if s.frozen {
		return errs.ErrFrozenSchema(s.className)
	}
	if _, ok := s.Property(r.Name()); ok {
		return nil
	}
	s.properties = append(s.properties, r)
	return nil
}

// BaseValidators returns the model-level validators. Their positions are the
// validator indices used by generated methods.
func (s *Schema) BaseValidators() []Validator {
	return s.baseValidators
}

// AddBaseValidator adds a model-level validator and returns its index.
func (s *Schema) AddBaseValidator(v Validator) (int, error) {
	if s.frozen {
		return -1, errs.ErrFrozenSchema(s.className)
	}
	s.baseValidators = append(s.baseValidators, v)
	return len(s.baseValidators) - 1, nil
}

// Freeze finalizes the schema and every property it holds. Properties still
// pending are frozen once they are bound.
func (s *Schema) Freeze() {
	if s.frozen {
		return
	}
	s.frozen = true
	for _, r := range s.properties {
		if r.arena == nil {
			continue
		}
		r.arena.Defer(r.id, (*Property).Freeze)
	}
}

// IsFrozen reports whether the schema was finalized.
func (s *Schema) IsFrozen() bool {
	return s.frozen
}

// AddInternalField adds hidden model state. It returns false when a field
// with that name exists.
func (s *Schema) AddInternalField(p *Property) bool {
	if s.InternalField(p.Name()) != nil {
		return false
	}
	WithInternal()(p)
	p.Freeze()
	s.internal = append(s.internal, p)
	return true
}

// InternalField returns the hidden field name, nil when absent.
func (s *Schema) InternalField(name string) *Property {
	for _, p := range s.internal {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// InternalFields returns the hidden fields.
func (s *Schema) InternalFields() []*Property {
	return s.internal
}

// AddMethod adds a generated method. It returns false when a method with
// that name exists.
func (s *Schema) AddMethod(m Method) bool {
	if _, ok := s.Method(m.Name); ok {
		return false
	}
	s.methods = append(s.methods, m)
	return true
}

// Method returns the generated method name.
func (s *Schema) Method(name string) (Method, bool) {
	for _, m := range s.methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// Methods returns the generated methods in insertion order.
func (s *Schema) Methods() []Method {
	return s.methods
}

// AddHook attaches h. Calls of a hook with the same kind and property are
// merged without duplicates.
func (s *Schema) AddHook(h Hook) {
	for i := range s.hooks {
		if s.hooks[i].Kind != h.Kind || s.hooks[i].Property != h.Property {
			continue
		}
		for _, call := range h.Calls {
			if !slices.Contains(s.hooks[i].Calls, call) {
				s.hooks[i].Calls = append(s.hooks[i].Calls, call)
			}
		}
		return
	}
	s.hooks = append(s.hooks, Hook{Kind: h.Kind, Property: h.Property, Calls: slices.Clone(h.Calls)})
}

// Hooks returns every hook.
func (s *Schema) Hooks() []Hook {
	return s.hooks
}

// HookCalls returns the methods called by hooks of kind on property.
func (s *Schema) HookCalls(kind HookKind, property string) []string {
	for _, h := range s.hooks {
		if h.Kind == kind && h.Property == property {
			return h.Calls
		}
	}
	return nil
}
