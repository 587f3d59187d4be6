// Package postprocess extends finished models with generated surface.
package postprocess

import (
	"fmt"
	"sort"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/vhavlena/schemagraph/pkg/config"
	errs "github.com/vhavlena/schemagraph/pkg/err"
	"github.com/vhavlena/schemagraph/pkg/model"
	"github.com/vhavlena/schemagraph/pkg/types"
)

// PostProcessor runs once per finished schema.
type PostProcessor interface {
	Process(s *model.Schema, cfg config.Config) error
}

// MethodName returns the name of the revalidation method of a validator index.
func MethodName(index int) string {
	return fmt.Sprintf("validateComposition_%d", index)
}

// CompositionValidation wires model-level compositions into the mutation
// surface: every property reachable through a branch of a composed base
// validator re-executes that validator when it changes.
type CompositionValidation struct {
	log logr.Logger
}

// NewCompositionValidation creates the composition validation post processor.
func NewCompositionValidation(log logr.Logger) *CompositionValidation {
	return &CompositionValidation{log: log}
}

// Process adds the hidden validation state, one revalidation method per
// tracked validator and, unless models are immutable, the before-mutation
// hooks. Models without model-level compositions are left untouched.
// Processing a model twice changes nothing.
//
// Parameters:
//
//	s *model.Schema: A frozen schema.
//	cfg config.Config: The generator configuration.
//
// Returns:
//
//	error: ErrSchemaNotFrozen for a schema still being built.
func (c *CompositionValidation) Process(s *model.Schema, cfg config.Config) error {
	if !s.IsFrozen() {
		return errs.ErrUnfinishedSchema(s.ClassName())
	}

	index := PropertyMap(s)
	if len(index) == 0 {
		return nil
	}

	tracked := sets.New[int]()
	for _, indices := range index {
		tracked = tracked.Union(indices)
	}
	ordered := sets.List(tracked)

	initial := make(map[int][]string, len(ordered))
	for _, i := range ordered {
		initial[i] = []string{}
	}
	s.AddInternalField(model.NewProperty(model.ValidationStateField, types.NewObjectType(nil),
		model.WithDescription("Track the internal validation state of composed validations"),
		model.WithDefault(initial),
	))

	for _, i := range ordered {
		s.AddMethod(model.Method{Name: MethodName(i), Kind: model.MethodCompositionValidation, ValidatorIndex: i})
	}
	c.log.V(1).Info("tracking compositions", "class", s.ClassName(), "validators", ordered, "properties", len(index))

	if cfg.Immutable {
		return nil
	}

	names := make([]string, 0, len(index))
	for name := range index {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		calls := make([]string, 0, index[name].Len())
		for _, i := range sets.List(index[name]) {
			calls = append(calls, MethodName(i))
		}
		s.AddHook(model.Hook{Kind: model.HookBeforeMutation, Property: name, Calls: calls})
	}
	return nil
}

// PropertyMap indexes the composed base validators of s by the names of the
// properties their branches declare.
func PropertyMap(s *model.Schema) map[string]sets.Set[int] {
	index := map[string]sets.Set[int]{}
	for i, v := range s.BaseValidators() {
		c, ok := model.AsComposed(v)
		if !ok {
			continue
		}
		for _, b := range c.Branches {
			p := b.Property()
			if p == nil || p.NestedSchema() == nil {
				continue
			}
			for _, ref := range p.NestedSchema().Properties() {
				if _, ok := index[ref.Name()]; !ok {
					index[ref.Name()] = sets.New[int]()
				}
				index[ref.Name()].Insert(i)
			}
		}
	}
	return index
}
