package runtime

import (
	"fmt"
	"maps"

	"github.com/go-logr/logr"

	"github.com/vhavlena/schemagraph/pkg/config"
	errs "github.com/vhavlena/schemagraph/pkg/err"
	"github.com/vhavlena/schemagraph/pkg/model"
)

// Instance is a populated model: validated data plus the hidden validation
// state. Set emulates the generated mutators including their hooks.
type Instance struct {
	schema   *model.Schema
	cfg      config.Config
	eval     *Evaluator
	data     map[string]any
	state    State
	observer func(index int)
	log      logr.Logger
}

// Option configures an Instance.
type Option func(*Instance)

// WithRevalidationObserver registers fn to be called with the validator
// index of every revalidation method a mutator runs.
func WithRevalidationObserver(fn func(index int)) Option {
	return func(i *Instance) { i.observer = fn }
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(i *Instance) { i.log = log }
}

// New validates data against s and returns the populated model. Absent
// properties with a default take the default.
//
// Parameters:
//
//	s *model.Schema: The compiled model.
//	cfg config.Config: The configuration the model was compiled with.
//	data map[string]any: The JSON-decoded input.
//	opts ...Option: Instance options.
//
// Returns:
//
//	*Instance: The model instance.
//	error: A *ValidationError in fail-fast mode, an *ErrorCollection in collect mode.
func New(s *model.Schema, cfg config.Config, data map[string]any, opts ...Option) (*Instance, error) {
	i := &Instance{
		schema: s,
		cfg:    cfg,
		data:   maps.Clone(data),
		state:  initialState(s),
		log:    logr.Discard(),
	}
	if i.data == nil {
		i.data = map[string]any{}
	}
	for _, opt := range opts {
		opt(i)
	}
	i.eval = NewEvaluator(cfg, i.log)

	for _, ref := range s.Properties() {
		p := ref.Property()
		if p == nil || p.Default() == nil {
			continue
		}
		if _, ok := i.data[ref.Name()]; !ok {
			i.data[ref.Name()] = p.Default()
		}
	}

	if err := i.eval.result(i.eval.schema(s, i.data, i.state)); err != nil {
		return nil, err
	}
	return i, nil
}

func initialState(s *model.Schema) State {
	field := s.InternalField(model.ValidationStateField)
	if field == nil {
		return nil
	}
	initial, _ := field.Default().(map[int][]string)
	return State(initial).clone()
}

// Get returns the value of a property.
func (i *Instance) Get(name string) (any, bool) {
	v, ok := i.data[name]
	return v, ok
}

// Data returns a copy of the model data.
func (i *Instance) Data() map[string]any {
	return maps.Clone(i.data)
}

// ValidationState returns a copy of the hidden validation state, nil for
// models without tracked compositions.
func (i *Instance) ValidationState() map[int][]string {
	return i.state.clone()
}

// Set updates a property. Hooks registered for the property run first
// against the updated data, then the property validators run. The update is
// applied only when no violation was found.
//
// Parameters:
//
//	name string: The property name.
//	value any: The new JSON-decoded value.
//
// Returns:
//
//	error: A misuse error, or the violations in the mode of the model.
func (i *Instance) Set(name string, value any) error {
	if i.cfg.Immutable {
		return fmt.Errorf("%w: %s", errs.ErrImmutableModel, i.schema.ClassName())
	}
	ref, ok := i.schema.Property(name)
	if !ok || ref.Property() == nil {
		return fmt.Errorf("%w: %s", errs.ErrUnknownProperty, name)
	}
	p := ref.Property()
	if p.IsReadOnly() {
		return fmt.Errorf("%w: %s", errs.ErrReadOnly, name)
	}

	candidate := maps.Clone(i.data)
	candidate[name] = value
	state := i.state.clone()

	var violations []*ValidationError
	for _, call := range i.schema.HookCalls(model.HookBeforeMutation, name) {
		m, ok := i.schema.Method(call)
		if !ok {
			continue
		}
		switch m.Kind {
		case model.MethodCompositionValidation:
			if i.observer != nil {
				i.observer(m.ValidatorIndex)
			}
			violations = append(violations, i.eval.revalidate(i.schema, m.ValidatorIndex, candidate, state)...)
		}
		if len(violations) > 0 && !i.cfg.CollectErrors {
			return i.eval.result(violations)
		}
	}

	violations = append(violations, i.eval.property(p, name, p.Validators(), value, true)...)
	if err := i.eval.result(violations); err != nil {
		return err
	}
	i.data = candidate
	i.state = state
	return nil
}
