// Package composition compiles allOf, anyOf, oneOf and if/then/else into
// composed validators.
package composition

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/vhavlena/schemagraph/pkg/definition"
	errs "github.com/vhavlena/schemagraph/pkg/err"
	"github.com/vhavlena/schemagraph/pkg/model"
	"github.com/vhavlena/schemagraph/pkg/source"
)

var policies = []model.Policy{model.PolicyAllOf, model.PolicyAnyOf, model.PolicyOneOf}

// Host describes the property or model a composition belongs to.
type Host struct {
	Name     string
	Required bool
	// OnlyForDefinedValues skips the composition when the value is absent.
	OnlyForDefinedValues bool
}

// Result holds the validators and type hints compiled from one schema fragment.
type Result struct {
	Validators []model.Validator
	Hints      []model.TypeHint
}

// Engine builds composition branches through a property factory.
type Engine struct {
	builder definition.PropertyFactory
	log     logr.Logger
}

// NewEngine creates an Engine.
func NewEngine(builder definition.PropertyFactory, log logr.Logger) *Engine {
	return &Engine{builder: builder, log: log}
}

// HasComposition reports whether obj uses a composition keyword.
func HasComposition(obj map[string]any) bool {
	for _, p := range policies {
		if _, ok := obj[string(p)]; ok {
			return true
		}
	}
	_, ok := obj["if"]
	return ok
}

// Compose compiles every composition keyword of doc.
//
// Each branch is built as a property with the host's name and required-ness.
// Presence checks and nested compositions of a branch are not enforced by
// the branch itself, see model.Branch.Validators.
//
// Parameters:
//
//	scope definition.Scope: The scope branches are built in.
//	host Host: The owner of the composition.
//	doc *source.Document: The schema fragment.
//
// Returns:
//
//	Result: The composed validators in keyword order and their type hints.
//	error: A schema error, e.g. an if without then and else.
func (e *Engine) Compose(scope definition.Scope, host Host, doc *source.Document) (Result, error) {
	var res Result
	obj, ok := doc.Object()
	if !ok {
		return res, nil
	}

	for _, policy := range policies {
		raw, ok := obj[string(policy)]
		if !ok {
			continue
		}
		v, hint, err := e.composed(scope, host, policy, raw, doc)
		if err != nil {
			return Result{}, err
		}
		res.Validators = append(res.Validators, v)
		res.Hints = append(res.Hints, hint)
	}

	if _, ok := obj["if"]; ok {
		v, hint, err := e.conditional(scope, host, obj, doc)
		if err != nil {
			return Result{}, err
		}
		res.Validators = append(res.Validators, v)
		if len(hint.Members) == 2 {
			res.Hints = append(res.Hints, hint)
		}
	}
	return res, nil
}

func (e *Engine) composed(scope definition.Scope, host Host, policy model.Policy, raw any, doc *source.Document) (*model.Composed, model.TypeHint, error) {
	keyword := string(policy)
	elements, ok := raw.([]any)
	if !ok || len(elements) == 0 {
		return nil, model.TypeHint{}, errs.ErrKeyword(keyword, host.Name, nil)
	}

	c := &model.Composed{
		Keyword:              keyword,
		Policy:               policy,
		Property:             host.Name,
		OnlyForDefinedValues: host.OnlyForDefinedValues,
	}
	members := make([]model.Ref, 0, len(elements))
	for i, element := range elements {
		ref, err := e.branch(scope, host, doc.WithJSON(element))
		if err != nil {
			return nil, model.TypeHint{}, err
		}
		c.Branches = append(c.Branches, model.Branch{ID: fmt.Sprintf("%s_%d", keyword, i), Ref: &ref})
		members = append(members, ref)
	}

	e.log.V(1).Info("compiled composition", "keyword", keyword, "property", host.Name, "branches", len(c.Branches))
	return c, model.TypeHint{Members: members, Merge: policy == model.PolicyAllOf}, nil
}

func (e *Engine) conditional(scope definition.Scope, host Host, obj map[string]any, doc *source.Document) (*model.Conditional, model.TypeHint, error) {
	_, hasThen := obj["then"]
	_, hasElse := obj["else"]
	if !hasThen && !hasElse {
		return nil, model.TypeHint{}, errs.ErrIncomplete(host.Name, doc.File())
	}

	branches := make(map[string]model.Branch, 3)
	var members []model.Ref
	for _, id := range []string{"if", "then", "else"} {
		raw, ok := obj[id]
		if !ok {
			branches[id] = model.Branch{ID: id}
			continue
		}
		ref, err := e.branch(scope, host, doc.WithJSON(raw))
		if err != nil {
			return nil, model.TypeHint{}, err
		}
		branches[id] = model.Branch{ID: id, Ref: &ref}
		if id != "if" {
			members = append(members, ref)
		}
	}

	e.log.V(1).Info("compiled conditional composition", "property", host.Name, "then", hasThen, "else", hasElse)
	c := model.NewConditional(host.Name, branches["if"], branches["then"], branches["else"], host.OnlyForDefinedValues)
	return c, model.TypeHint{Members: members}, nil
}

func (e *Engine) branch(scope definition.Scope, host Host, doc *source.Document) (model.Ref, error) {
	meta := model.NewMetadata()
	if host.Required {
		meta = model.NewMetadata(host.Name)
	}
	return e.builder.Create(scope, meta, host.Name, doc)
}
