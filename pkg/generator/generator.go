// Package generator runs a compilation: it builds one model per source
// document, checks the resulting property graph and post-processes every
// finished model.
package generator

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/vhavlena/schemagraph/pkg/config"
	"github.com/vhavlena/schemagraph/pkg/definition"
	errs "github.com/vhavlena/schemagraph/pkg/err"
	"github.com/vhavlena/schemagraph/pkg/model"
	"github.com/vhavlena/schemagraph/pkg/postprocess"
	"github.com/vhavlena/schemagraph/pkg/processor"
	"github.com/vhavlena/schemagraph/pkg/source"
)

// Generator compiles schema documents into models.
type Generator struct {
	cfg            config.Config
	log            logr.Logger
	metrics        metrics.Registry
	loader         source.Loader
	postProcessors []postprocess.PostProcessor
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(g *Generator) { g.log = log }
}

// WithMetrics sets the registry receiving the compilation counters.
func WithMetrics(reg metrics.Registry) Option {
	return func(g *Generator) { g.metrics = reg }
}

// WithLoader sets the loader of external schema files.
func WithLoader(loader source.Loader) Option {
	return func(g *Generator) { g.loader = loader }
}

// WithPostProcessors appends post processors run after the built-in ones.
func WithPostProcessors(pp ...postprocess.PostProcessor) Option {
	return func(g *Generator) { g.postProcessors = append(g.postProcessors, pp...) }
}

// New creates a Generator.
func New(cfg config.Config, opts ...Option) *Generator {
	g := &Generator{cfg: cfg, log: logr.Discard()}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = metrics.NewRegistry()
	}
	if g.loader == nil {
		g.loader = source.NewLoader(g.log)
	}
	g.postProcessors = append([]postprocess.PostProcessor{postprocess.NewCompositionValidation(g.log)}, g.postProcessors...)
	return g
}

// Result is the outcome of one compilation run.
type Result struct {
	// Schemas holds the root model of every source document in provider order.
	Schemas  []*model.Schema
	Arena    *model.Arena
	Registry *definition.Registry
}

// Schema returns the root model named className.
func (r *Result) Schema(className string) *model.Schema {
	for _, s := range r.Schemas {
		if s.ClassName() == className {
			return s
		}
	}
	return nil
}

// Generate compiles every document of provider in one run. All documents
// share the property arena and the cache of external files.
//
// Parameters:
//
//	provider source.Provider: Yields the documents to compile.
//
// Returns:
//
//	*Result: The compiled models.
//	error: The first schema error, compilation stops there.
func (g *Generator) Generate(provider source.Provider) (*Result, error) {
	docs, err := provider.Schemas()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errs.ErrEmptySource(provider.BaseDirectory())
	}
	return g.compile(docs)
}

// Compile compiles documents in one run.
func (g *Generator) Compile(docs ...*source.Document) (*Result, error) {
	if len(docs) == 0 {
		return nil, errs.ErrEmptySource("input")
	}
	return g.compile(docs)
}

func (g *Generator) compile(docs []*source.Document) (*Result, error) {
	arena := model.NewArena()
	factory := processor.NewFactory(g.cfg, arena, g.log, g.metrics)
	registry := definition.NewRegistry(arena, factory, g.loader, g.log, g.metrics)
	res := &Result{Arena: arena, Registry: registry}

	for _, doc := range docs {
		className := ClassName(doc)
		g.log.V(1).Info("compiling schema", "class", className, "file", doc.File())

		schema := model.NewSchema(className, doc)
		dict := registry.NewDictionary(doc, schema)
		if err := factory.BuildSchema(definition.Scope{Schema: schema, Dictionary: dict}, doc); err != nil {
			return nil, err
		}
		res.Schemas = append(res.Schemas, schema)
	}

	if pending := arena.Pending(); len(pending) > 0 {
		return nil, errs.ErrDangling(len(pending))
	}

	for _, s := range Models(res.Schemas...) {
		for _, pp := range g.postProcessors {
			if err := pp.Process(s, g.cfg); err != nil {
				return nil, err
			}
		}
	}
	g.log.V(1).Info("compilation finished", "models", len(res.Schemas), "properties", arena.Len(), "externalFiles", len(registry.Files()))
	return res, nil
}

// ClassName derives the model name of a document from its $id or file name.
func ClassName(doc *source.Document) string {
	name := doc.File()
	if obj, ok := doc.Object(); ok {
		if id, ok := obj["$id"].(string); ok && id != "" {
			name = strings.TrimSuffix(id, "#")
		}
	}
	base := path.Base(filepath.ToSlash(name))
	return strings.TrimSuffix(base, path.Ext(base))
}

// Models returns roots and every model nested in them through properties,
// composition branches and collection elements, each once.
func Models(roots ...*model.Schema) []*model.Schema {
	var out []*model.Schema
	seen := map[*model.Schema]bool{}
	seenProps := map[*model.Property]bool{}
	var visitSchema func(s *model.Schema)
	var visitProperty func(p *model.Property)

	visitValidators := func(validators []model.Validator) {
		for _, v := range validators {
			if t, ok := v.(*model.TemplatedLeaf); ok {
				visitProperty(t.Element.Property())
				continue
			}
			if c, ok := model.AsComposed(v); ok {
				for _, b := range c.Branches {
					visitProperty(b.Property())
				}
			}
		}
	}
	visitProperty = func(p *model.Property) {
		if p == nil || seenProps[p] {
			return
		}
		seenProps[p] = true
		visitValidators(p.Validators())
		if p.NestedSchema() != nil {
			visitSchema(p.NestedSchema())
		}
	}
	visitSchema = func(s *model.Schema) {
		if seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
		for _, ref := range s.Properties() {
			visitProperty(ref.Property())
		}
		visitValidators(s.BaseValidators())
	}

	for _, r := range roots {
		visitSchema(r)
	}
	return out
}
