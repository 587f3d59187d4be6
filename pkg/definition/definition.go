// Package definition resolves $ref pointers into shared property handles.
package definition

import (
	"slices"

	jptr "github.com/qri-io/jsonpointer"

	"github.com/vhavlena/schemagraph/pkg/model"
	"github.com/vhavlena/schemagraph/pkg/source"
)

// Key identifies one resolution target: a location in a document resolved
// with one set of caller metadata.
type Key struct {
	Document string
	Path     string
	Meta     uint64
}

// Scope is the context a property is built in.
type Scope struct {
	Schema     *model.Schema
	Dictionary *Dictionary
}

// PropertyFactory builds a property from a schema fragment.
type PropertyFactory interface {
	Create(scope Scope, meta model.Metadata, name string, doc *source.Document) (model.Ref, error)
}

type entry struct {
	id   model.ID
	done bool
}

// SchemaDefinition resolves references into one document sub-tree. Results
// are memoized on the registry per Key, so every use of a location with
// equal metadata shares one property whichever entry point names it.
type SchemaDefinition struct {
	doc      *source.Document
	base     jptr.Pointer
	scope    Scope
	registry *Registry
}

func newSchemaDefinition(doc *source.Document, base jptr.Pointer, scope Scope, registry *Registry) *SchemaDefinition {
	return &SchemaDefinition{
		doc:      doc,
		base:     base,
		scope:    scope,
		registry: registry,
	}
}

// Document returns the sub-tree the definition resolves against.
func (d *SchemaDefinition) Document() *source.Document {
	return d.doc
}

// Schema returns the schema properties of this definition are built for.
func (d *SchemaDefinition) Schema() *model.Schema {
	return d.scope.Schema
}

// Key computes the resolution key of path for a property.
func (d *SchemaDefinition) Key(name string, path jptr.Pointer, meta model.Metadata) Key {
	full := append(slices.Clone(d.base), path...)
	return Key{Document: d.doc.File(), Path: full.String(), Meta: meta.Hash(name)}
}

// ResolveReference resolves path within the definition to a property handle.
//
// The first request for a key builds the property. Requests made while the
// build is in progress, such as recursive references, get a handle that
// resolves once the build finishes. Later requests get a handle to the
// finished property. If the build fails the key is forgotten so a later
// request starts over.
//
// Parameters:
//
//	name string: The name the property is used under.
//	path jptr.Pointer: The path relative to the definition root.
//	meta model.Metadata: The caller metadata, e.g. required names.
//
// Returns:
//
//	model.Ref: The property handle.
//	error: An unresolved path error or the error of the property build.
func (d *SchemaDefinition) ResolveReference(name string, path jptr.Pointer, meta model.Metadata) (model.Ref, error) {
	target, err := d.doc.Lookup(path)
	if err != nil {
		return model.Ref{}, err
	}

	key := d.Key(name, path, meta)
	arena := d.registry.Arena()
	entries, waiting := d.registry.entries, d.registry.waiting
	log := d.registry.log.WithValues("property", name, "document", key.Document, "path", key.Path)

	if e, ok := entries[key]; ok {
		ref := arena.Ref(e.id, name)
		if e.done {
			log.V(2).Info("reusing resolved definition")
			d.registry.counter(metricReused).Inc(1)
			return ref, nil
		}
		log.V(2).Info("deferring reference to definition in progress")
		d.registry.counter(metricDeferred).Inc(1)
		waiting[key] = append(waiting[key], ref)
		return ref, nil
	}

	e := &entry{id: arena.Reserve()}
	entries[key] = e
	log.V(2).Info("resolving definition")

	ref, err := d.registry.factory.Create(d.scope, meta, name, target)
	if err == nil {
		err = arena.Bind(e.id, ref)
	}
	if err != nil {
		delete(entries, key)
		delete(waiting, key)
		arena.Release(e.id)
		return model.Ref{}, err
	}
	e.done = true
	d.registry.counter(metricResolved).Inc(1)

	for _, proxy := range waiting[key] {
		if proxy.Resolved() {
			log.V(2).Info("resolved deferred reference", "use", proxy.Name())
		}
	}
	delete(waiting, key)

	return ref, nil
}
