// Package source provides the parsed schema documents a compilation run reads.
package source

import (
	"encoding/json"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	jptr "github.com/qri-io/jsonpointer"
	"sigs.k8s.io/yaml"

	errs "github.com/vhavlena/schemagraph/pkg/err"
)

// Document is an immutable view of one parsed JSON document, or of a sub-tree
// of it, together with the identity (path or URL) of the file it came from.
type Document struct {
	file string
	json any
}

// NewDocument wraps a decoded JSON value.
func NewDocument(file string, value any) *Document {
	return &Document{file: file, json: value}
}

// File returns the identity of the originating file.
func (d *Document) File() string {
	return d.file
}

// JSON returns the wrapped JSON value.
func (d *Document) JSON() any {
	return d.json
}

// Object returns the wrapped value as a JSON object.
func (d *Document) Object() (map[string]any, bool) {
	obj, ok := d.json.(map[string]any)
	return obj, ok
}

// WithJSON returns a document from the same file wrapping another value.
func (d *Document) WithJSON(value any) *Document {
	return &Document{file: d.file, json: value}
}

// Get returns the member key of an object document.
func (d *Document) Get(key string) (*Document, bool) {
	obj, ok := d.Object()
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	if !ok {
		return nil, false
	}
	return d.WithJSON(v), true
}

// Lookup walks the document segment by segment. Objects are indexed by key,
// arrays by decimal index.
//
// Parameters:
//
//	ptr jptr.Pointer: The decoded JSON pointer segments.
//
// Returns:
//
//	*Document: The sub-tree at the end of the path.
//	error: An unresolved path error naming the first missing segment.
func (d *Document) Lookup(ptr jptr.Pointer) (*Document, error) {
	current := d.json
	for _, segment := range ptr {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, errs.ErrUnresolvedSegment(segment, d.file)
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, errs.ErrUnresolvedSegment(segment, d.file)
			}
			current = node[idx]
		default:
			return nil, errs.ErrUnresolvedSegment(segment, d.file)
		}
	}
	return d.WithJSON(current), nil
}

// Directory returns the directory relative references of this document are
// resolved against.
func (d *Document) Directory() string {
	return Dir(d.file)
}

// Dir returns the parent location of a file path or URL.
func Dir(location string) string {
	if IsURL(location) {
		i := strings.LastIndex(location, "/")
		if i < 0 {
			return location
		}
		return location[:i]
	}
	return filepath.Dir(location)
}

// Join resolves location against dir.
func Join(dir, location string) string {
	if IsURL(location) || filepath.IsAbs(location) {
		return location
	}
	if IsURL(dir) {
		return strings.TrimSuffix(dir, "/") + "/" + path.Clean(location)
	}
	return filepath.Join(dir, location)
}

// Parse decodes a JSON or YAML schema document. YAML is detected by the
// file extension. The document root must be an object.
//
// Parameters:
//
//	location string: The file identity recorded on the document.
//	data []byte: The raw document.
//
// Returns:
//
//	*Document: The parsed document.
//	error: An invalid schema file error.
func Parse(location string, data []byte) (*Document, error) {
	raw := data
	switch strings.ToLower(path.Ext(location)) {
	case ".yaml", ".yml":
		converted, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, errs.ErrInvalidFile(location, err)
		}
		raw = converted
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errs.ErrInvalidFile(location, err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil, errs.ErrInvalidFile(location, nil)
	}
	return NewDocument(location, obj), nil
}
