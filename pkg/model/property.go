package model

import (
	"sort"

	errs "github.com/vhavlena/schemagraph/pkg/err"
	"github.com/vhavlena/schemagraph/pkg/types"
)

// Validator priorities. Lower values run first.
const (
	PriorityRequired = 1
	PriorityType     = 2
	PriorityValue    = 3
	PriorityComposed = 100
)

type prioritized struct {
	validator Validator
	priority  int
	seq       int
}

// TypeHint decorates the declared type of a property. Either a fixed type or
// the type of another property, which is read when the hint is evaluated so
// hints may point at properties which are still being built.
type TypeHint struct {
	Type    types.TypeDef
	Element *Ref
	Members []Ref
	Merge   bool
	// Implicit hints only widen a known type.
	Implicit bool
}

// Resolve computes the hinted type.
func (h TypeHint) Resolve() types.TypeDef {
	switch {
	case h.Element != nil:
		if p := h.Element.Property(); p != nil {
			return types.NewArrayType(p.Type())
		}
		return types.NewArrayType(types.NewUnknownType())
	case len(h.Members) > 0:
		members := make([]types.TypeDef, 0, len(h.Members))
		for _, m := range h.Members {
			p := m.Property()
			if p == nil {
				return types.NewUnknownType()
			}
			members = append(members, p.Type())
		}
		if !h.Merge {
			return types.Join(members...)
		}
		merged := members[0]
		for _, m := range members[1:] {
			merged = types.Merge(merged, m)
		}
		return merged
	}
	return h.Type
}

// Property is one compiled schema property.
type Property struct {
	id          ID
	name        string
	description string
	typ         types.TypeDef
	nullable    bool
	required    bool
	readOnly    bool
	internal    bool
	defaultVal  any
	validators  []prioritized
	seq         int
	hints       []TypeHint
	nested      *Schema
	frozen      bool
}

// Option configures a Property created with NewProperty.
type Option func(*Property)

// WithRequired marks the property required at its creation site.
func WithRequired(required bool) Option {
	return func(p *Property) { p.required = required }
}

// WithReadOnly marks the property read-only.
func WithReadOnly(readOnly bool) Option {
	return func(p *Property) { p.readOnly = readOnly }
}

// WithNullable lets the property accept null.
func WithNullable(nullable bool) Option {
	return func(p *Property) { p.nullable = nullable }
}

// WithDescription sets the description.
func WithDescription(description string) Option {
	return func(p *Property) { p.description = description }
}

// WithInternal marks the property as internal state of a model, not part of its data.
func WithInternal() Option {
	return func(p *Property) { p.internal = true }
}

// WithDefault sets the default value.
func WithDefault(value any) Option {
	return func(p *Property) { p.defaultVal = value }
}

// NewProperty creates a property. It is not stored in any arena yet.
func NewProperty(name string, typ types.TypeDef, opts ...Option) *Property {
	p := &Property{id: -1, name: name, typ: typ}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the arena slot of the property, -1 before it is stored.
func (p *Property) ID() ID {
	return p.id
}

// Name returns the property name.
func (p *Property) Name() string {
	return p.name
}

// Description returns the schema description.
func (p *Property) Description() string {
	return p.description
}

// Type returns the declared type.
func (p *Property) Type() types.TypeDef {
	return p.typ
}

func (p *Property) IsNullable() bool {
	return p.nullable
}

func (p *Property) IsRequired() bool {
	return p.required
}

func (p *Property) IsReadOnly() bool {
	return p.readOnly
}

func (p *Property) IsInternal() bool {
	return p.internal
}

func (p *Property) IsFrozen() bool {
	return p.frozen
}

// Default returns the default value, nil when unset.
func (p *Property) Default() any {
	return p.defaultVal
}

// NestedSchema returns the schema of an object value, nil for other types.
func (p *Property) NestedSchema() *Schema {
	return p.nested
}

// Validators returns the validators ordered by priority, then insertion.
func (p *Property) Validators() []Validator {
	ordered := append([]prioritized(nil), p.validators...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].priority != ordered[j].priority {
			return ordered[i].priority < ordered[j].priority
		}
		return ordered[i].seq < ordered[j].seq
	})
	out := make([]Validator, len(ordered))
	for i := range ordered {
		out[i] = ordered[i].validator
	}
	return out
}

// AddValidator attaches a validator with the given priority.
func (p *Property) AddValidator(v Validator, priority int) error {
	if p.frozen {
		return p.frozenErr()
	}
	p.validators = append(p.validators, prioritized{validator: v, priority: priority, seq: p.seq})
	p.seq++
	return nil
}

// AddTypeHint adds a type-hint decorator.
func (p *Property) AddTypeHint(h TypeHint) error {
	if p.frozen {
		return p.frozenErr()
	}
	p.hints = append(p.hints, h)
	return nil
}

// TypeHints returns the decorators.
func (p *Property) TypeHints() []TypeHint {
	return p.hints
}

// TypeHint combines the declared type with every decorator. Unknown parts
// of the declared type are replaced by the hints.
func (p *Property) TypeHint() types.TypeDef {
	hint := p.typ
	for _, h := range p.hints {
		resolved := h.Resolve()
		switch {
		case resolved.IsUnknown(), h.Implicit && hint.IsUnknown():
			continue
		case hint.IsUnknown():
			hint = resolved
		case hint.IsArray() && resolved.IsArray():
			hint = types.Merge(hint, resolved)
		default:
			hint = types.Join(hint, resolved)
		}
	}
	return hint
}

// SetNestedSchema links the schema describing an object value.
func (p *Property) SetNestedSchema(s *Schema) error {
	if p.frozen {
		return p.frozenErr()
	}
	p.nested = s
	return nil
}

// Freeze makes the property read-only for the rest of the run.
func (p *Property) Freeze() {
	p.frozen = true
}

func (p *Property) frozenErr() error {
	return errs.ErrFrozenProperty(p.name)
}
