package backend

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*slog.Logger) Backend)
)

// Register adds a backend factory to the registry.
// Called by backend implementations in their init() functions.
func Register(kind string, factory func(*slog.Logger) Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// Get retrieves a backend factory by kind.
func Get(kind string) (func(*slog.Logger) Backend, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[kind]
	return f, ok
}

// New creates a backend instance for the config's kind. The logger is
// passed to the backend constructor (nil uses a discard logger).
func New(cfg core.BackendConfig, logger *slog.Logger) (Backend, error) {
	if cfg.Kind == "" {
		return nil, &core.ConfigError{Field: "kind", Message: "backend kind not specified"}
	}
	factory, ok := Get(cfg.Kind)
	if !ok {
		return nil, &UnknownBackendError{Kind: cfg.Kind, Available: List()}
	}
	return factory(logger), nil
}

// List returns all registered backend kinds (sorted).
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// IsRegistered checks if a backend kind is registered.
func IsRegistered(kind string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

// UnknownBackendError is returned when an unknown backend kind is requested.
type UnknownBackendError struct {
	Kind      string
	Available []string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown backend kind %q (available: %v)", e.Kind, e.Available)
}
