package generator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhavlena/schemagraph/pkg/config"
	errs "github.com/vhavlena/schemagraph/pkg/err"
	"github.com/vhavlena/schemagraph/pkg/model"
	"github.com/vhavlena/schemagraph/pkg/postprocess"
	"github.com/vhavlena/schemagraph/pkg/source"
)

type countingLoader struct {
	source.Loader
	loads map[string]int
}

func (l *countingLoader) Load(location string) (*source.Document, error) {
	l.loads[location]++
	return l.Loader.Load(location)
}

type recordingProcessor struct {
	seen []string
}

func (r *recordingProcessor) Process(s *model.Schema, _ config.Config) error {
	r.seen = append(r.seen, s.ClassName())
	return nil
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return dir
}

func TestGenerateDirectory(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{
		"shared/common.json": `{"definitions": {"Id": {"type": "string", "minLength": 1}}}`,
		"models/order.json": `{
			"$id": "Order",
			"properties": {
				"id": {"$ref": "../shared/common.json#/definitions/Id"},
				"customer": {"type": "object", "properties": {"id": {"$ref": "../shared/common.json#/definitions/Id"}}}
			}
		}`,
		"models/user.yaml": "properties:\n  id:\n    $ref: ../shared/common.json#/definitions/Id\n",
	})

	loader := &countingLoader{Loader: source.NewLoader(logr.Discard()), loads: map[string]int{}}
	reg := metrics.NewRegistry()
	recorder := &recordingProcessor{}
	gen := New(config.Default(), WithLoader(loader), WithMetrics(reg), WithPostProcessors(recorder))

	res, err := gen.Generate(source.NewDirectoryProvider(filepath.Join(dir, "models"), source.NewLoader(logr.Discard())))
	require.NoError(t, err)

	require.Len(t, res.Schemas, 2)
	assert.NotNil(t, res.Schema("Order"))
	assert.NotNil(t, res.Schema("user"))
	assert.Nil(t, res.Schema("common"))
	assert.Equal(t, []string{"Order", "Order_customer", "user"}, recorder.seen)

	common := filepath.Join(dir, "shared", "common.json")
	assert.Equal(t, []string{common}, res.Registry.Files())
	assert.Equal(t, 1, loader.loads[common])
	assert.EqualValues(t, 1, metrics.GetOrRegisterCounter("definition.files.loaded", reg).Count())
	assert.Empty(t, res.Arena.Pending())

	order, _ := res.Schema("Order").Property("id")
	user, _ := res.Schema("user").Property("id")
	assert.True(t, order.Same(user), "one definition shared across models")
}

func TestGenerateOpenAPI(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{
		"api.yaml": `
openapi: 3.0.0
components:
  schemas:
    Pet:
      type: object
      required: [name]
      properties:
        name: {type: string}
        owner: {$ref: "#/components/schemas/Owner"}
    Owner:
      type: object
      properties:
        pets:
          type: array
          items: {$ref: "#/components/schemas/Pet"}
`,
	})

	loader := source.NewLoader(logr.Discard())
	provider, err := source.NewOpenAPIProvider(filepath.Join(dir, "api.yaml"), loader)
	require.NoError(t, err)

	res, err := New(config.Default(), WithLoader(loader)).Generate(provider)
	require.NoError(t, err)
	require.Len(t, res.Schemas, 2)
	assert.Equal(t, "Owner", res.Schemas[0].ClassName())
	assert.Equal(t, "Pet", res.Schemas[1].ClassName())

	owner, ok := res.Schema("Pet").Property("owner")
	require.True(t, ok)
	require.NotNil(t, owner.Property().NestedSchema())
	assert.Empty(t, res.Arena.Pending())
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	t.Run("empty directory", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		_, err := New(config.Default()).Generate(source.NewDirectoryProvider(dir, source.NewLoader(logr.Discard())))
		assert.ErrorIs(t, err, errs.ErrNoSchemas)
	})

	t.Run("missing external file", func(t *testing.T) {
		t.Parallel()
		dir := writeFiles(t, map[string]string{
			"a.json": `{"properties": {"x": {"$ref": "missing.json"}}}`,
		})
		_, err := New(config.Default()).Generate(source.NewDirectoryProvider(dir, source.NewLoader(logr.Discard())))
		assert.ErrorIs(t, err, errs.ErrMissingSchemaFile)
	})

	t.Run("no documents", func(t *testing.T) {
		t.Parallel()
		_, err := New(config.Default()).Compile()
		assert.ErrorIs(t, err, errs.ErrNoSchemas)
	})
}

func TestCompilePostProcessesNestedModels(t *testing.T) {
	t.Parallel()

	doc := source.NewDocument("shape.json", map[string]any{
		"$id": "Shape",
		"properties": map[string]any{
			"box": map[string]any{
				"type":       "object",
				"properties": map[string]any{"w": map[string]any{"type": "integer"}, "h": map[string]any{"type": "integer"}},
				"anyOf": []any{
					map[string]any{"properties": map[string]any{"w": map[string]any{"minimum": 1}}},
					map[string]any{"properties": map[string]any{"h": map[string]any{"minimum": 1}}},
				},
			},
		},
	})

	res, err := New(config.Default()).Compile(doc)
	require.NoError(t, err)

	models := Models(res.Schemas...)
	require.Len(t, models, 4)
	assert.Equal(t, "Shape", models[0].ClassName())

	box := models[1]
	assert.Equal(t, "Shape_box", box.ClassName())
	require.Len(t, box.Methods(), 1)
	assert.Equal(t, postprocess.MethodName(0), box.Methods()[0].Name)
	assert.Equal(t, []string{"validateComposition_0"}, box.HookCalls(model.HookBeforeMutation, "w"))
	assert.Equal(t, []string{"validateComposition_0"}, box.HookCalls(model.HookBeforeMutation, "h"))
	assert.Empty(t, res.Schemas[0].Methods())
}

func TestClassName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  *source.Document
		want string
	}{
		{"file name", source.NewDocument("/schemas/person.json", map[string]any{}), "person"},
		{"yaml file name", source.NewDocument("dir/address.schema.yaml", map[string]any{}), "address.schema"},
		{"plain id", source.NewDocument("x.json", map[string]any{"$id": "Customer"}), "Customer"},
		{"url id", source.NewDocument("x.json", map[string]any{"$id": "https://example.com/schemas/invoice.json#"}), "invoice"},
		{"empty id", source.NewDocument("fallback.json", map[string]any{"$id": ""}), "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassName(tt.doc))
		})
	}
}
