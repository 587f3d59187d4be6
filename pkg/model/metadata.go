package model

import (
	"encoding/json"
	"sort"

	"github.com/cespare/xxhash/v2"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Metadata is the context a property is created in: which names are
// required at the creation site and which names depend on which.
// Two references to the same schema location only share a property when
// their Metadata hashes are equal, as required-ness changes the validators.
type Metadata struct {
	required     sets.Set[string]
	dependencies map[string][]string
}

// NewMetadata creates Metadata for the given required names.
func NewMetadata(required ...string) Metadata {
	return Metadata{
		required:     sets.New(required...),
		dependencies: map[string][]string{},
	}
}

// WithDependencies returns a copy of m carrying property dependencies.
func (m Metadata) WithDependencies(deps map[string][]string) Metadata {
	cp := make(map[string][]string, len(deps))
	for k, v := range deps {
		cp[k] = append([]string(nil), v...)
	}
	return Metadata{required: m.required, dependencies: cp}
}

// IsRequired reports whether name is required.
func (m Metadata) IsRequired(name string) bool {
	return m.required.Has(name)
}

// Dependencies returns the names name depends on.
func (m Metadata) Dependencies(name string) []string {
	return m.dependencies[name]
}

// Required returns the required names, sorted.
func (m Metadata) Required() []string {
	return sets.List(m.required)
}

// Hash fingerprints the metadata relevant for name.
//
// Parameters:
//
//	name string: The property name the metadata is consulted for.
//
// Returns:
//
//	uint64: The xxhash of the canonical encoding of the relevant metadata.
func (m Metadata) Hash(name string) uint64 {
	deps := append([]string(nil), m.dependencies[name]...)
	sort.Strings(deps)
	raw, _ := json.Marshal(struct {
		Required     bool     `json:"required"`
		Dependencies []string `json:"dependencies"`
	}{m.IsRequired(name), deps})
	return xxhash.Sum64(raw)
}
