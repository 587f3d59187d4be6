// Package runtime checks data against compiled schemas the way generated
// models do.
package runtime

import (
	"github.com/go-logr/logr"

	"github.com/vhavlena/schemagraph/pkg/config"
	"github.com/vhavlena/schemagraph/pkg/model"
)

// State is the hidden validation state of a model: composed validator
// index to the IDs of its failed branches.
type State map[int][]string

func (s State) clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = append([]string{}, v...)
	}
	return out
}

// Evaluator runs validators synchronously. In fail-fast mode evaluation
// stops at the first violation; in collect mode every validator runs and
// the violations are returned as one ErrorCollection.
type Evaluator struct {
	collect bool
	log     logr.Logger
}

// NewEvaluator creates an evaluator using the error mode of cfg.
func NewEvaluator(cfg config.Config, log logr.Logger) *Evaluator {
	return &Evaluator{collect: cfg.CollectErrors, log: log}
}

// Validate checks data against every property and base validator of s.
func (e *Evaluator) Validate(s *model.Schema, data map[string]any) error {
	return e.result(e.schema(s, data, nil))
}

// ValidateProperty checks one property value.
func (e *Evaluator) ValidateProperty(p *model.Property, name string, value any, present bool) error {
	return e.result(e.property(p, name, p.Validators(), value, present))
}

// Revalidate re-executes the composed base validator index of s against data
// and records its failed branches in state.
func (e *Evaluator) Revalidate(s *model.Schema, index int, data map[string]any, state State) error {
	return e.result(e.revalidate(s, index, data, state))
}

func (e *Evaluator) revalidate(s *model.Schema, index int, data map[string]any, state State) []*ValidationError {
	validators := s.BaseValidators()
	if index < 0 || index >= len(validators) {
		return nil
	}
	c, ok := model.AsComposed(validators[index])
	if !ok {
		return nil
	}
	e.log.V(2).Info("revalidating composition", "class", s.ClassName(), "index", index)
	if err := e.composed(validators[index], c, s.ClassName(), data, true, index, state); err != nil {
		return []*ValidationError{err}
	}
	return nil
}

func (e *Evaluator) result(errs []*ValidationError) error {
	switch {
	case len(errs) == 0:
		return nil
	case !e.collect:
		return errs[0]
	}
	return &ErrorCollection{Errors: errs}
}

func (e *Evaluator) schema(s *model.Schema, data map[string]any, state State) []*ValidationError {
	var errs []*ValidationError
	for _, ref := range s.Properties() {
		p := ref.Property()
		if p == nil {
			continue
		}
		value, present := data[ref.Name()]
		errs = append(errs, e.property(p, ref.Name(), p.Validators(), value, present)...)
		if len(errs) > 0 && !e.collect {
			return errs
		}
	}
	for i, v := range s.BaseValidators() {
		errs = append(errs, e.validator(v, s.ClassName(), data, true, i, state)...)
		if len(errs) > 0 && !e.collect {
			return errs
		}
	}
	return errs
}

// property runs validators against a value and, for object values, the
// nested schema of p.
func (e *Evaluator) property(p *model.Property, name string, validators []model.Validator, value any, present bool) []*ValidationError {
	var errs []*ValidationError
	for _, v := range validators {
		errs = append(errs, e.validator(v, name, value, present, -1, nil)...)
		if len(errs) > 0 && !e.collect {
			return errs
		}
	}
	nested := p.NestedSchema()
	obj, isObject := value.(map[string]any)
	if nested != nil && present && isObject {
		errs = append(errs, e.schema(nested, obj, nil)...)
	}
	return errs
}

func (e *Evaluator) validator(v model.Validator, name string, value any, present bool, index int, state State) []*ValidationError {
	switch t := v.(type) {
	case *model.Leaf:
		if t.Check(value, present) {
			return nil
		}
		return []*ValidationError{newError(t, name, value)}
	case *model.TemplatedLeaf:
		if err := e.templated(t, name, value, present); err != nil {
			return []*ValidationError{err}
		}
	case *model.Composed:
		if err := e.composed(t, t, name, value, present, index, state); err != nil {
			return []*ValidationError{err}
		}
	case *model.Conditional:
		if err := e.composed(t, &t.Composed, name, value, present, index, state); err != nil {
			return []*ValidationError{err}
		}
	}
	return nil
}

// templated checks every element. All elements are checked in both modes;
// fail-fast mode keeps the first reason per element.
func (e *Evaluator) templated(t *model.TemplatedLeaf, name string, value any, present bool) *ValidationError {
	if !present {
		return nil
	}
	element := t.Element.Property()
	if element == nil {
		return nil
	}
	validators := t.ElementValidators()

	var failures []ItemFailure
	for _, el := range t.Elements(value) {
		errs := e.property(element, element.Name(), validators, el.Value, true)
		if len(errs) == 0 {
			continue
		}
		failures = append(failures, ItemFailure{Key: el.Key, Label: label(t.Keyword, el.Key), Errors: errs})
	}
	if len(failures) == 0 {
		return nil
	}
	err := newError(t, name, value)
	err.Items = failures
	return err
}

func label(keyword, key string) string {
	switch keyword {
	case "items":
		return "invalid item #" + key
	case "additionalProperties":
		return "invalid additional property '" + key + "'"
	}
	return "invalid property '" + key + "'"
}

// composed evaluates the branches of a composition in isolation and applies
// its policy. A negative index marks a composition outside the base
// validators of a model whose state is not tracked.
func (e *Evaluator) composed(v model.Validator, c *model.Composed, name string, value any, present bool, index int, state State) *ValidationError {
	if c.OnlyForDefinedValues && !present {
		return nil
	}

	var failed []BranchFailure
	passed := true
	if cond, ok := v.(*model.Conditional); ok {
		active := cond.Active(len(e.branch(cond.If(), name, value, present)) == 0)
		if active.Present() {
			if errs := e.branch(active, name, value, present); len(errs) > 0 {
				failed = append(failed, BranchFailure{ID: active.ID, Errors: errs})
				passed = false
			}
		}
	} else {
		branches := c.Present()
		succeeded := 0
		for _, b := range branches {
			errs := e.branch(b, name, value, present)
			if len(errs) == 0 {
				succeeded++
				continue
			}
			failed = append(failed, BranchFailure{ID: b.ID, Errors: errs})
		}
		passed = c.Satisfied(succeeded, len(branches))
	}

	if e.collect && state != nil && index >= 0 {
		ids := make([]string, 0, len(failed))
		if !passed {
			for _, f := range failed {
				ids = append(ids, f.ID)
			}
		}
		state[index] = ids
	}
	if passed {
		return nil
	}
	err := newError(v, name, value)
	err.Branches = failed
	return err
}

// branch evaluates one branch. Its violations make the branch fail and
// never leave the composition on their own.
func (e *Evaluator) branch(b model.Branch, name string, value any, present bool) []*ValidationError {
	p := b.Property()
	if p == nil {
		return nil
	}
	return e.property(p, name, b.Validators(), value, present)
}
