package definition

import (
	"sort"
	"strconv"
	"strings"

	jptr "github.com/qri-io/jsonpointer"

	errs "github.com/vhavlena/schemagraph/pkg/err"
	"github.com/vhavlena/schemagraph/pkg/model"
	"github.com/vhavlena/schemagraph/pkg/source"
)

// Dictionary maps the keys a $ref can name to schema definitions: the
// document root "#", every top-level member and every sub-schema carrying an
// $id.
type Dictionary struct {
	registry *Registry
	file     string
	dir      string
	schema   *model.Schema
	defs     map[string]*SchemaDefinition
}

// SetUp indexes doc for references from schema.
func (d *Dictionary) SetUp(doc *source.Document, schema *model.Schema) {
	d.schema = schema
	scope := Scope{Schema: schema, Dictionary: d}

	d.AddDefinition("#", newSchemaDefinition(doc, nil, scope, d.registry))

	if obj, ok := doc.Object(); ok {
		for _, key := range sortedKeys(obj) {
			switch obj[key].(type) {
			case map[string]any, []any:
				d.AddDefinition(key, newSchemaDefinition(doc.WithJSON(obj[key]), jptr.Pointer{key}, scope, d.registry))
			}
		}
	}

	d.indexIDs(doc, doc.JSON(), nil, scope)
}

// indexIDs walks the document depth-first and registers every object with an $id.
func (d *Dictionary) indexIDs(doc *source.Document, node any, at jptr.Pointer, scope Scope) {
	switch n := node.(type) {
	case map[string]any:
		if id, ok := n["$id"].(string); ok && id != "" {
			d.AddDefinition(id, newSchemaDefinition(doc.WithJSON(n), clonePointer(at), scope, d.registry))
		}
		for _, key := range sortedKeys(n) {
			d.indexIDs(doc, n[key], append(clonePointer(at), key), scope)
		}
	case []any:
		for i, item := range n {
			d.indexIDs(doc, item, append(clonePointer(at), strconv.Itoa(i)), scope)
		}
	}
}

// AddDefinition registers def under key. The first definition of a key wins.
func (d *Dictionary) AddDefinition(key string, def *SchemaDefinition) {
	if _, ok := d.defs[key]; ok {
		return
	}
	d.defs[key] = def
}

// Keys returns the registered keys, sorted.
func (d *Dictionary) Keys() []string {
	keys := make([]string, 0, len(d.defs))
	for k := range d.defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Schema returns the schema the dictionary was set up for.
func (d *Dictionary) Schema() *model.Schema {
	return d.schema
}

// File returns the document the dictionary indexes.
func (d *Dictionary) File() string {
	return d.file
}

// Registry returns the run the dictionary belongs to.
func (d *Dictionary) Registry() *Registry {
	return d.registry
}

// Definition looks up the definition a $ref names.
//
// Supported forms are "#/a/b" (the root member a, path /b inside it), "#"
// (the document root), "name" (a root member or an $id), "file.json",
// "file.json#/a/b" and absolute URLs with an optional fragment. External
// files are resolved against the directory of this document unless they are
// absolute URLs.
//
// Parameters:
//
//	key string: The $ref value.
//
// Returns:
//
//	*SchemaDefinition: The definition.
//	jptr.Pointer: The remaining path inside the definition.
//	error: An unresolved reference error or the error of loading an external file.
func (d *Dictionary) Definition(key string) (*SchemaDefinition, jptr.Pointer, error) {
	lookup := key
	var path jptr.Pointer

	if strings.HasPrefix(key, "#/") {
		ptr, err := jptr.Parse(key[1:])
		if err != nil || len(ptr) == 0 {
			return nil, nil, errs.ErrReference(key, d.file)
		}
		lookup, path = ptr[0], ptr[1:]
	}

	if def, ok := d.defs[lookup]; ok {
		return def, path, nil
	}
	if strings.HasPrefix(key, "#") {
		return nil, nil, errs.ErrReference(key, d.file)
	}

	file, fragment, _ := strings.Cut(lookup, "#")
	if file == "" {
		return nil, nil, errs.ErrReference(key, d.file)
	}
	external, err := d.registry.external(source.Join(d.dir, file))
	if err != nil {
		return nil, nil, err
	}
	if fragment != "" && !strings.HasPrefix(fragment, "/") {
		return external.Definition(fragment)
	}
	return external.Definition("#" + fragment)
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clonePointer(p jptr.Pointer) jptr.Pointer {
	return append(jptr.Pointer(nil), p...)
}
