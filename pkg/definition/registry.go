package definition

import (
	"sort"

	"github.com/go-logr/logr"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/vhavlena/schemagraph/pkg/model"
	"github.com/vhavlena/schemagraph/pkg/source"
)

const (
	metricFilesLoaded = "definition.files.loaded"
	metricResolved    = "definition.references.resolved"
	metricReused      = "definition.references.reused"
	metricDeferred    = "definition.references.deferred"
)

// Registry is the state shared by every dictionary of one compilation run:
// the property arena, the resolution memo and the external documents parsed
// so far. External files are loaded at most once per run.
type Registry struct {
	arena   *model.Arena
	factory PropertyFactory
	loader  source.Loader
	log     logr.Logger
	metrics metrics.Registry
	files   map[string]*Dictionary
	entries map[Key]*entry
	waiting map[Key][]model.Ref
}

// NewRegistry creates a run-scoped registry.
//
// Parameters:
//
//	arena *model.Arena: The arena properties of the run are stored in.
//	factory PropertyFactory: Builds the properties references resolve to.
//	loader source.Loader: Loads external schema files.
//	log logr.Logger: The logger.
//	reg metrics.Registry: Receives the resolution counters, may be nil.
//
// Returns:
//
//	*Registry: The registry.
func NewRegistry(arena *model.Arena, factory PropertyFactory, loader source.Loader, log logr.Logger, reg metrics.Registry) *Registry {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Registry{
		arena:   arena,
		factory: factory,
		loader:  loader,
		log:     log,
		metrics: reg,
		files:   make(map[string]*Dictionary),
		entries: make(map[Key]*entry),
		waiting: make(map[Key][]model.Ref),
	}
}

// Arena returns the property arena of the run.
func (r *Registry) Arena() *model.Arena {
	return r.arena
}

// Metrics returns the metrics registry of the run.
func (r *Registry) Metrics() metrics.Registry {
	return r.metrics
}

// NewDictionary creates the dictionary of a document compiled into schema.
func (r *Registry) NewDictionary(doc *source.Document, schema *model.Schema) *Dictionary {
	d := &Dictionary{
		registry: r,
		file:     doc.File(),
		dir:      doc.Directory(),
		defs:     make(map[string]*SchemaDefinition),
	}
	d.SetUp(doc, schema)
	return d
}

// Files returns the locations of the external files loaded so far.
func (r *Registry) Files() []string {
	files := make([]string, 0, len(r.files))
	for f := range r.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// external returns the dictionary of an external file, loading it on first use.
func (r *Registry) external(location string) (*Dictionary, error) {
	if d, ok := r.files[location]; ok {
		return d, nil
	}
	doc, err := r.loader.Load(location)
	if err != nil {
		return nil, err
	}
	d := r.NewDictionary(doc, model.NewSchema("", doc))
	r.files[location] = d
	r.log.V(1).Info("indexed external schema file", "location", location, "definitions", d.Keys())
	r.counter(metricFilesLoaded).Inc(1)
	return d, nil
}

func (r *Registry) counter(name string) metrics.Counter {
	return metrics.GetOrRegisterCounter(name, r.metrics)
}
