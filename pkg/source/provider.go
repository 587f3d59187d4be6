package source

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	errs "github.com/vhavlena/schemagraph/pkg/err"
)

// Provider yields the root documents of a compilation run.
type Provider interface {
	// Schemas returns the documents to compile, in a stable order.
	Schemas() ([]*Document, error)
	// BaseDirectory is the directory external references are resolved against.
	BaseDirectory() string
}

// DirectoryProvider provides every JSON or YAML file below a directory.
type DirectoryProvider struct {
	dir    string
	loader Loader
}

// NewDirectoryProvider creates a provider walking dir recursively.
func NewDirectoryProvider(dir string, loader Loader) *DirectoryProvider {
	return &DirectoryProvider{dir: dir, loader: loader}
}

// Schemas walks the directory and loads every *.json, *.yaml and *.yml file.
func (p *DirectoryProvider) Schemas() ([]*Document, error) {
	var files []string
	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errs.ErrInvalidFile(p.dir, err)
	}
	sort.Strings(files)

	docs := make([]*Document, 0, len(files))
	for _, file := range files {
		doc, err := p.loader.Load(file)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// BaseDirectory returns the walked directory.
func (p *DirectoryProvider) BaseDirectory() string {
	return p.dir
}

// OpenAPIProvider provides the component schemas of an OpenAPI v3 document.
type OpenAPIProvider struct {
	file string
	spec map[string]any
}

// NewOpenAPIProvider loads an OpenAPI v3 document. It fails if the document
// declares no components.schemas.
func NewOpenAPIProvider(file string, loader Loader) (*OpenAPIProvider, error) {
	doc, err := loader.Load(file)
	if err != nil {
		return nil, err
	}
	spec, _ := doc.Object()
	components, _ := spec["components"].(map[string]any)
	schemas, _ := components["schemas"].(map[string]any)
	if len(schemas) == 0 {
		return nil, errs.ErrEmptyOpenAPI(file)
	}
	return &OpenAPIProvider{file: file, spec: spec}, nil
}

// Schemas returns one document per component schema. The schema key becomes
// the $id unless the schema declares one. The OpenAPI envelope is kept in each
// document so #/components/schemas/... references keep resolving.
func (p *OpenAPIProvider) Schemas() ([]*Document, error) {
	components := p.spec["components"].(map[string]any)
	schemas := components["schemas"].(map[string]any)

	keys := make([]string, 0, len(schemas))
	for k := range schemas {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	docs := make([]*Document, 0, len(keys))
	for _, key := range keys {
		schema, ok := schemas[key].(map[string]any)
		if !ok {
			return nil, errs.ErrInvalidFile(p.file, nil)
		}
		merged := make(map[string]any, len(p.spec)+len(schema)+1)
		for k, v := range p.spec {
			merged[k] = v
		}
		for k, v := range schema {
			merged[k] = v
		}
		if _, ok := schema["$id"]; !ok {
			merged["$id"] = key
		}
		docs = append(docs, NewDocument(p.file, merged))
	}
	return docs, nil
}

// BaseDirectory returns the directory of the OpenAPI document.
func (p *OpenAPIProvider) BaseDirectory() string {
	return Dir(p.file)
}
