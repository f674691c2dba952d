// Package schema loads data-source definitions from YAML files and
// caches them for the lifetime of a run. Two cache tiers sit in front of
// the filesystem: a parsed-schema map keyed by source name, and an LRU
// file-content cache invalidated by mtime.
package schema

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

const defaultFileCacheSize = 64

// Loader resolves source names to validated schema definitions.
type Loader struct {
	dir    string
	logger *slog.Logger
	files  *FileCache

	mu      sync.RWMutex
	schemas map[string]*core.Schema
}

// NewLoader creates a loader reading schema files from dir. A source
// named "app" is expected at dir/app.yaml.
func NewLoader(dir string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	files, err := NewFileCache(defaultFileCacheSize, logger)
	if err != nil {
		return nil, err
	}
	return &Loader{
		dir:     dir,
		logger:  logger,
		files:   files,
		schemas: make(map[string]*core.Schema),
	}, nil
}

// Load returns the schema for the named source, parsing its file on
// first use. Parsed schemas are immutable for the lifetime of the loader.
func (l *Loader) Load(source string) (*core.Schema, error) {
	l.mu.RLock()
	s, ok := l.schemas[source]
	l.mu.RUnlock()
	if ok {
		return s, nil
	}

	path := filepath.Join(l.dir, source+".yaml")
	s, err := l.parseFile(source, path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cached, ok := l.schemas[source]; ok {
		return cached, nil
	}
	l.schemas[source] = s
	l.logger.Debug("schema loaded", "source", source, "tables", len(s.Tables))
	return s, nil
}

// Invalidate drops the parsed schema for a source so the next Load
// re-reads its file.
func (l *Loader) Invalidate(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.schemas, source)
}

// Sources returns the names of the schemas parsed so far.
func (l *Loader) Sources() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.schemas))
	for name := range l.schemas {
		names = append(names, name)
	}
	return names
}

func (l *Loader) parseFile(source, path string) (*core.Schema, error) {
	data, err := l.files.Read(path)
	if err != nil {
		return nil, &core.ConfigError{
			Field:   source,
			Message: fmt.Sprintf("cannot read schema file %s: %v", path, err),
		}
	}

	var s core.Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, &core.ConfigError{
			Field:   source,
			Message: fmt.Sprintf("invalid schema file %s: %v", path, err),
		}
	}
	if s.Source == "" {
		s.Source = source
	}
	for name, tbl := range s.Tables {
		tbl.Name = name
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
