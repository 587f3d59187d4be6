package runtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vhavlena/schemagraph/pkg/model"
)

// ValidationError is a violated validator.
type ValidationError struct {
	Kind     model.ErrorKind
	Property string
	Value    any
	Reason   string
	// Items lists the failing elements of a templated validator.
	Items []ItemFailure
	// Branches lists the failing branches of a composition.
	Branches []BranchFailure
}

// ItemFailure is one failing element of a collection.
type ItemFailure struct {
	Key    string
	Label  string
	Errors []*ValidationError
}

// BranchFailure is one failing composition branch.
type BranchFailure struct {
	ID     string
	Errors []*ValidationError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Reason)
	for _, item := range e.Items {
		fmt.Fprintf(&b, "\n  - %s", item.Label)
		writeReasons(&b, item.Errors)
	}
	for _, branch := range e.Branches {
		fmt.Fprintf(&b, "\n  - Composition element %s: Failed", branch.ID)
		writeReasons(&b, branch.Errors)
	}
	return b.String()
}

// BranchIDs returns the IDs of the failed branches.
func (e *ValidationError) BranchIDs() []string {
	ids := make([]string, 0, len(e.Branches))
	for _, b := range e.Branches {
		ids = append(ids, b.ID)
	}
	return ids
}

func writeReasons(b *strings.Builder, errs []*ValidationError) {
	for _, err := range errs {
		lines := strings.Split(err.Error(), "\n")
		fmt.Fprintf(b, "\n    * %s", lines[0])
		for _, line := range lines[1:] {
			fmt.Fprintf(b, "\n    %s", line)
		}
	}
}

// ErrorCollection aggregates every violation found in collect-errors mode.
type ErrorCollection struct {
	Errors []*ValidationError
}

func (c *ErrorCollection) Error() string {
	msgs := make([]string, len(c.Errors))
	for i, err := range c.Errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (c *ErrorCollection) Unwrap() []error {
	out := make([]error, len(c.Errors))
	for i, err := range c.Errors {
		out[i] = err
	}
	return out
}

// Kinds returns the error kind of every collected error.
func (c *ErrorCollection) Kinds() []model.ErrorKind {
	kinds := make([]model.ErrorKind, len(c.Errors))
	for i, err := range c.Errors {
		kinds[i] = err.Kind
	}
	return kinds
}

// Violations flattens a validation result into its errors.
func Violations(err error) []*ValidationError {
	var collection *ErrorCollection
	if errors.As(err, &collection) {
		return collection.Errors
	}
	var single *ValidationError
	if errors.As(err, &single) {
		return []*ValidationError{single}
	}
	return nil
}

func newError(v model.Validator, name string, value any) *ValidationError {
	format, args := v.Message()
	return &ValidationError{
		Kind:     v.ErrorKind(),
		Property: name,
		Value:    value,
		Reason:   fmt.Sprintf(format, append([]any{name}, args...)...),
	}
}
