package definition

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/go-logr/logr"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/vhavlena/schemagraph/pkg/err"
	"github.com/vhavlena/schemagraph/pkg/model"
	"github.com/vhavlena/schemagraph/pkg/source"
	"github.com/vhavlena/schemagraph/pkg/types"
)

var errBuild = errors.New("build failed")

// fakeFactory builds untyped properties, follows $ref and recurses into properties.
type fakeFactory struct {
	arena    *model.Arena
	built    int
	failures int
}

func (f *fakeFactory) Create(scope Scope, meta model.Metadata, name string, doc *source.Document) (model.Ref, error) {
	obj, _ := doc.Object()
	if ref, ok := obj["$ref"].(string); ok {
		def, path, err := scope.Dictionary.Definition(ref)
		if err != nil {
			return model.Ref{}, err
		}
		return def.ResolveReference(name, path, meta)
	}
	if obj["fail"] == true && f.failures > 0 {
		f.failures--
		return model.Ref{}, errBuild
	}

	f.built++
	p := model.NewProperty(name, types.NewObjectType(nil), model.WithRequired(meta.IsRequired(name)))
	ref := f.arena.Add(p)

	props, ok := obj["properties"].(map[string]any)
	if !ok {
		return ref, nil
	}
	var required []string
	if list, ok := obj["required"].([]any); ok {
		for _, r := range list {
			required = append(required, r.(string))
		}
	}
	nested := model.NewSchema(name, doc)
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		child, err := f.Create(scope, model.NewMetadata(required...), k, doc.WithJSON(props[k]))
		if err != nil {
			return model.Ref{}, err
		}
		if err := nested.AddProperty(child); err != nil {
			return model.Ref{}, err
		}
	}
	return ref, p.SetNestedSchema(nested)
}

type countingLoader struct {
	source.Loader
	loads map[string]int
}

func (l *countingLoader) Load(location string) (*source.Document, error) {
	l.loads[location]++
	return l.Loader.Load(location)
}

type fixture struct {
	arena    *model.Arena
	factory  *fakeFactory
	loader   *countingLoader
	registry *Registry
	metrics  metrics.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	arena := model.NewArena()
	factory := &fakeFactory{arena: arena}
	loader := &countingLoader{Loader: source.NewLoader(logr.Discard()), loads: map[string]int{}}
	reg := metrics.NewRegistry()
	return &fixture{
		arena:    arena,
		factory:  factory,
		loader:   loader,
		registry: NewRegistry(arena, factory, loader, logr.Discard(), reg),
		metrics:  reg,
	}
}

func (f *fixture) dictionary(t *testing.T, file, raw string) *Dictionary {
	t.Helper()
	doc, err := source.Parse(file, []byte(raw))
	require.NoError(t, err)
	return f.registry.NewDictionary(doc, model.NewSchema("Host", doc))
}

func resolve(t *testing.T, d *Dictionary, ref, name string, meta model.Metadata) model.Ref {
	t.Helper()
	def, path, err := d.Definition(ref)
	require.NoError(t, err)
	r, err := def.ResolveReference(name, path, meta)
	require.NoError(t, err)
	return r
}

func TestResolveReferenceSharesIdentityPerMetadata(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := f.dictionary(t, "host.json", `{"definitions": {"Foo": {"type": "object"}}}`)

	first := resolve(t, d, "#/definitions/Foo", "a", model.NewMetadata())
	second := resolve(t, d, "#/definitions/Foo", "b", model.NewMetadata("b"))
	third := resolve(t, d, "#/definitions/Foo", "c", model.NewMetadata("x"))

	assert.False(t, first.Same(second))
	assert.True(t, first.Same(third))
	assert.Same(t, first.Property(), third.Property())
	assert.Equal(t, "c", third.Name())
	assert.Equal(t, 2, f.factory.built)

	again := resolve(t, d, "#/definitions/Foo", "d", model.NewMetadata("d"))
	assert.True(t, again.Same(second))
	assert.True(t, again.Property().IsRequired())
	assert.False(t, first.Property().IsRequired())
	assert.Equal(t, 2, f.factory.built)
	assert.EqualValues(t, 2, metrics.GetOrRegisterCounter(metricReused, f.metrics).Count())
}

func TestResolveReferenceSharesIdentityAcrossEntryPoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := f.dictionary(t, "host.json", `{
		"$id": "Root",
		"definitions": {"Foo": {"$id": "Foo", "type": "string"}},
		"properties": {"name": {"type": "string"}}
	}`)

	tests := []struct {
		name    string
		byID    string
		byPath  string
		builds  int
		keyPath string
	}{
		{name: "definition", byID: "Foo", byPath: "#/definitions/Foo", builds: 1, keyPath: "/definitions/Foo"},
		{name: "document root", byID: "Root", byPath: "#", builds: 2, keyPath: ""},
	}
	for _, tt := range tests {
		before := f.factory.built
		byID := resolve(t, d, tt.byID, "a", model.NewMetadata())
		byPath := resolve(t, d, tt.byPath, "b", model.NewMetadata())

		assert.True(t, byID.Same(byPath), tt.name)
		assert.Same(t, byID.Property(), byPath.Property(), tt.name)
		assert.Equal(t, tt.builds, f.factory.built-before, tt.name)

		def, path, err := d.Definition(tt.byID)
		require.NoError(t, err)
		other, otherPath, err := d.Definition(tt.byPath)
		require.NoError(t, err)
		key := def.Key("a", path, model.NewMetadata())
		assert.Equal(t, key, other.Key("b", otherPath, model.NewMetadata()), tt.name)
		assert.Equal(t, tt.keyPath, key.Path, tt.name)
	}
	assert.EqualValues(t, 2, metrics.GetOrRegisterCounter(metricReused, f.metrics).Count())
}

func TestResolveRecursiveReference(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := f.dictionary(t, "tree.json", `{
		"definitions": {
			"Node": {
				"properties": {
					"left": {"$ref": "#/definitions/Node"},
					"right": {"$ref": "#/definitions/Node"}
				}
			}
		}
	}`)

	root := resolve(t, d, "#/definitions/Node", "root", model.NewMetadata())
	require.True(t, root.Resolved())
	assert.Equal(t, 1, f.factory.built)
	assert.Empty(t, f.arena.Pending())

	nested := root.Property().NestedSchema()
	require.NotNil(t, nested)
	left, ok := nested.Property("left")
	require.True(t, ok)
	right, ok := nested.Property("right")
	require.True(t, ok)

	assert.True(t, left.Resolved())
	assert.True(t, left.Same(root))
	assert.True(t, right.Same(left))
	assert.Same(t, root.Property(), left.Property())
	assert.Equal(t, "left", left.Name())
	assert.EqualValues(t, 2, metrics.GetOrRegisterCounter(metricDeferred, f.metrics).Count())
}

func TestResolveFailureCanBeRetried(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.factory.failures = 1
	d := f.dictionary(t, "host.json", `{"definitions": {"Flaky": {"fail": true}}}`)

	def, path, err := d.Definition("#/definitions/Flaky")
	require.NoError(t, err)

	_, err = def.ResolveReference("p", path, model.NewMetadata())
	require.ErrorIs(t, err, errBuild)
	assert.Empty(t, f.arena.Pending())

	ref, err := def.ResolveReference("p", path, model.NewMetadata())
	require.NoError(t, err)
	assert.True(t, ref.Resolved())
	assert.Equal(t, 1, f.factory.built)
}

func TestSelfReferenceIsCircular(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := f.dictionary(t, "host.json", `{"definitions": {"Loop": {"$ref": "#/definitions/Loop"}}}`)

	def, path, err := d.Definition("#/definitions/Loop")
	require.NoError(t, err)
	_, err = def.ResolveReference("p", path, model.NewMetadata())
	assert.ErrorIs(t, err, errs.ErrCircularReference)
	assert.Empty(t, f.arena.Pending())
}

func TestDefinitionLookup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := f.dictionary(t, "host.json", `{
		"$id": "Host",
		"title": "not indexed",
		"definitions": {"a~b": {"type": "object"}},
		"properties": {"x": {"$id": "Thing", "type": "string"}},
		"items": [{"$id": "Second"}]
	}`)

	assert.Equal(t, []string{"#", "Host", "Second", "Thing", "definitions", "items", "properties"}, d.Keys())

	def, path, err := d.Definition("Thing")
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, "/properties/x", def.Key("x", nil, model.NewMetadata()).Path)

	def, path, err = d.Definition("#/definitions/a~0b")
	require.NoError(t, err)
	ref, err := def.ResolveReference("v", path, model.NewMetadata())
	require.NoError(t, err)
	assert.True(t, ref.Resolved())

	root, path, err := d.Definition("#")
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Same(t, d.Schema(), root.Schema())

	_, _, err = d.Definition("#/unknown/x")
	assert.ErrorIs(t, err, errs.ErrUnresolvedReference)

	def, path, err = d.Definition("#/definitions/Missing")
	require.NoError(t, err)
	_, err = def.ResolveReference("m", path, model.NewMetadata())
	assert.ErrorIs(t, err, errs.ErrUnresolvedPath)
	assert.ErrorContains(t, err, "Missing in file host.json")
}

func TestExternalFileLoadedOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	other := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(other, []byte(`{"definitions": {"Foo": {"type": "object"}, "Bar": {"$ref": "#/definitions/Foo"}}}`), 0o600))

	f := newFixture(t)
	d := f.dictionary(t, filepath.Join(dir, "host.json"), `{"type": "object"}`)

	foo := resolve(t, d, "other.json#/definitions/Foo", "foo", model.NewMetadata())
	again := resolve(t, d, "other.json#/definitions/Foo", "foo2", model.NewMetadata())
	bar := resolve(t, d, "other.json#/definitions/Bar", "bar", model.NewMetadata())
	whole, path, err := d.Definition("other.json")
	require.NoError(t, err)
	assert.Empty(t, path)

	assert.Equal(t, 1, f.loader.loads[other])
	assert.Equal(t, []string{other}, f.registry.Files())
	assert.EqualValues(t, 1, metrics.GetOrRegisterCounter(metricFilesLoaded, f.metrics).Count())
	assert.True(t, foo.Same(again))
	assert.True(t, bar.Same(foo))
	assert.Equal(t, "", whole.Schema().ClassName())

	_, _, err = d.Definition("missing.json#/definitions/Foo")
	assert.ErrorIs(t, err, errs.ErrMissingSchemaFile)
}

func TestExternalURL(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `{"definitions": {"Remote": {"type": "object"}}}`)
	}))
	defer server.Close()

	f := newFixture(t)
	d := f.dictionary(t, "host.json", `{"type": "object"}`)

	first := resolve(t, d, server.URL+"/remote.json#/definitions/Remote", "r", model.NewMetadata())
	second := resolve(t, d, server.URL+"/remote.json#/definitions/Remote", "r", model.NewMetadata())
	assert.True(t, first.Same(second))
	assert.EqualValues(t, 1, requests.Load())
}
