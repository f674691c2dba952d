package schema

import (
	"log/slog"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedFile struct {
	data    []byte
	modTime time.Time
	size    int64
}

// FileCache is an LRU cache of file contents keyed by path. Entries are
// invalidated by comparing size and mtime against the file on every read,
// so an edited schema file is picked up without a restart.
type FileCache struct {
	entries *lru.Cache[string, cachedFile]
	logger  *slog.Logger
}

// NewFileCache creates a cache holding at most capacity files.
func NewFileCache(capacity int, logger *slog.Logger) (*FileCache, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	entries, err := lru.New[string, cachedFile](capacity)
	if err != nil {
		return nil, err
	}
	return &FileCache{entries: entries, logger: logger}, nil
}

// Read returns the file contents, from cache when the file is unchanged.
func (c *FileCache) Read(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if cached, ok := c.entries.Get(path); ok {
		if cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
			return cached.data, nil
		}
		c.logger.Debug("cached file changed on disk", "path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.entries.Add(path, cachedFile{data: data, modTime: info.ModTime(), size: info.Size()})
	return data, nil
}

// Purge drops every cached entry.
func (c *FileCache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached files.
func (c *FileCache) Len() int {
	return c.entries.Len()
}
