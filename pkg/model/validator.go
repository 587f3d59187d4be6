package model

// ValidatorKind tags the closed set of validator variants.
type ValidatorKind string

const (
	KindLeaf          ValidatorKind = "leaf"
	KindTemplatedLeaf ValidatorKind = "templated-leaf"
	KindComposed      ValidatorKind = "composed"
	KindConditional   ValidatorKind = "conditional"
)

// ErrorKind names the validation error family a validator raises.
type ErrorKind string

const (
	ErrorRequired             ErrorKind = "required"
	ErrorType                 ErrorKind = "type"
	ErrorValue                ErrorKind = "value"
	ErrorArrayItem            ErrorKind = "array-item"
	ErrorPropertyNames        ErrorKind = "property-names"
	ErrorAdditionalProperties ErrorKind = "additional-properties"
	ErrorComposition          ErrorKind = "composition"
	ErrorConditional          ErrorKind = "conditional"
)

// Validator is implemented by Leaf, TemplatedLeaf, Composed and Conditional.
// The message format takes the property name as its first argument,
// followed by the returned arguments.
type Validator interface {
	Kind() ValidatorKind
	ErrorKind() ErrorKind
	Message() (string, []any)
}

// Check is a single-value predicate. present is false when the value was
// omitted from the input.
type Check func(value any, present bool) bool

// Leaf checks one value in isolation.
type Leaf struct {
	Keyword string
	Error   ErrorKind
	Format  string
	Args    []any
	Check   Check
}

func (l *Leaf) Kind() ValidatorKind      { return KindLeaf }
func (l *Leaf) ErrorKind() ErrorKind     { return l.Error }
func (l *Leaf) Message() (string, []any) { return l.Format, l.Args }

// Element is one member of a collection checked by a TemplatedLeaf.
type Element struct {
	Key   string
	Value any
}

// TemplatedLeaf checks every element of a collection value against the
// validators of an element property and accumulates the failing elements.
type TemplatedLeaf struct {
	Keyword string
	Error   ErrorKind
	Format  string
	Args    []any
	// Accumulator names the collection of failed elements, e.g. "invalidItems".
	Accumulator string
	Element     Ref
	// Elements splits a value into the elements to check. A value of the
	// wrong shape yields no elements.
	Elements func(value any) []Element
	// Skip lists error kinds of the element property not enforced per element.
	Skip []ErrorKind
}

func (t *TemplatedLeaf) Kind() ValidatorKind      { return KindTemplatedLeaf }
func (t *TemplatedLeaf) ErrorKind() ErrorKind     { return t.Error }
func (t *TemplatedLeaf) Message() (string, []any) { return t.Format, t.Args }

// ElementValidators returns the validators applied to each element.
func (t *TemplatedLeaf) ElementValidators() []Validator {
	p := t.Element.Property()
	if p == nil {
		return nil
	}
	var out []Validator
	for _, v := range p.Validators() {
		if !t.skips(v.ErrorKind()) {
			out = append(out, v)
		}
	}
	return out
}

func (t *TemplatedLeaf) skips(kind ErrorKind) bool {
	for _, s := range t.Skip {
		if s == kind {
			return true
		}
	}
	return false
}

// Policy decides a composition from the number of succeeded branches.
type Policy string

const (
	PolicyAllOf       Policy = "allOf"
	PolicyAnyOf       Policy = "anyOf"
	PolicyOneOf       Policy = "oneOf"
	PolicyConditional Policy = "if"
)

// Branch is one sub-schema of a composition. A nil Ref marks an absent
// optional branch.
type Branch struct {
	ID  string
	Ref *Ref
}

// Present reports whether the branch exists in the schema.
func (b Branch) Present() bool {
	return b.Ref != nil
}

// Property returns the branch property, nil when absent or pending.
func (b Branch) Property() *Property {
	if b.Ref == nil {
		return nil
	}
	return b.Ref.Property()
}

// Validators returns the validators the branch enforces. Presence checks
// and nested compositions belong to the host and are left out.
func (b Branch) Validators() []Validator {
	p := b.Property()
	if p == nil {
		return nil
	}
	var out []Validator
	for _, v := range p.Validators() {
		if v.ErrorKind() == ErrorRequired || IsComposition(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Composed counts the succeeded branches of allOf, anyOf and oneOf.
type Composed struct {
	Keyword  string
	Policy   Policy
	Property string
	Branches []Branch
	// OnlyForDefinedValues skips the composition when the value is absent.
	OnlyForDefinedValues bool
}

func (c *Composed) Kind() ValidatorKind  { return KindComposed }
func (c *Composed) ErrorKind() ErrorKind { return ErrorComposition }

func (c *Composed) Message() (string, []any) {
	switch c.Policy {
	case PolicyAllOf:
		return "Invalid value for %s declined by composition constraint. Requires to match %s", []any{"all composition elements"}
	case PolicyAnyOf:
		return "Invalid value for %s declined by composition constraint. Requires to match %s", []any{"at least one composition element"}
	case PolicyOneOf:
		return "Invalid value for %s declined by composition constraint. Requires to match %s", []any{"one composition element"}
	}
	return "Invalid value for %s declined by conditional composition constraint", nil
}

// Present returns the branches taking part in the evaluation.
func (c *Composed) Present() []Branch {
	var out []Branch
	for _, b := range c.Branches {
		if b.Present() {
			out = append(out, b)
		}
	}
	return out
}

// Satisfied applies the policy to the number of succeeded branches out of
// the evaluated ones.
func (c *Composed) Satisfied(succeeded, evaluated int) bool {
	switch c.Policy {
	case PolicyAnyOf:
		return succeeded >= 1
	case PolicyOneOf:
		return succeeded == 1
	default:
		return succeeded == evaluated
	}
}

// Conditional is the if/then/else composition. The if branch only selects
// which of then and else is evaluated.
type Conditional struct {
	Composed
}

// NewConditional creates a conditional validator.
func NewConditional(property string, ifBranch, thenBranch, elseBranch Branch, onlyForDefinedValues bool) *Conditional {
	return &Conditional{Composed{
		Keyword:              "if",
		Policy:               PolicyConditional,
		Property:             property,
		Branches:             []Branch{ifBranch, thenBranch, elseBranch},
		OnlyForDefinedValues: onlyForDefinedValues,
	}}
}

func (c *Conditional) Kind() ValidatorKind  { return KindConditional }
func (c *Conditional) ErrorKind() ErrorKind { return ErrorConditional }

func (c *Conditional) If() Branch   { return c.Branches[0] }
func (c *Conditional) Then() Branch { return c.Branches[1] }
func (c *Conditional) Else() Branch { return c.Branches[2] }

// Active returns the branch selected by the outcome of the if branch.
func (c *Conditional) Active(ifSucceeded bool) Branch {
	if ifSucceeded {
		return c.Then()
	}
	return c.Else()
}

// IsComposition reports whether v is a Composed or Conditional validator.
func IsComposition(v Validator) bool {
	_, ok := AsComposed(v)
	return ok
}

// AsComposed returns the composition part of a Composed or Conditional validator.
func AsComposed(v Validator) (*Composed, bool) {
	switch c := v.(type) {
	case *Composed:
		return c, true
	case *Conditional:
		return &c.Composed, true
	}
	return nil, false
}
