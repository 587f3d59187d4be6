package source

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/xeipuuv/gojsonreference"

	errs "github.com/vhavlena/schemagraph/pkg/err"
)

// Loader reads and parses schema documents by location.
type Loader interface {
	Load(location string) (*Document, error)
}

// IsURL reports whether a location is an absolute, retrievable URL rather
// than a path relative to the current source directory.
func IsURL(location string) bool {
	ref, err := gojsonreference.NewJsonReference(location)
	if err != nil {
		return false
	}
	return ref.HasFullUrl && !ref.HasFileScheme
}

// FileLoader loads documents from the local file system or over HTTP.
type FileLoader struct {
	client *http.Client
	log    logr.Logger
}

// NewLoader creates a FileLoader.
func NewLoader(log logr.Logger) *FileLoader {
	return &FileLoader{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

// Load reads location and parses it. A missing local file is reported as a
// missing schema file, every other failure as an invalid schema file.
func (l *FileLoader) Load(location string) (*Document, error) {
	l.log.V(1).Info("loading schema document", "location", location)
	if IsURL(location) {
		return l.fetch(location)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.ErrMissingFile(location)
		}
		return nil, errs.ErrInvalidFile(location, err)
	}
	return Parse(location, data)
}

func (l *FileLoader) fetch(location string) (*Document, error) {
	resp, err := l.client.Get(location)
	if err != nil {
		return nil, errs.ErrInvalidFile(location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.ErrInvalidFile(location, fmt.Errorf("unexpected status %s", resp.Status))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.ErrInvalidFile(location, err)
	}
	return Parse(location, data)
}
