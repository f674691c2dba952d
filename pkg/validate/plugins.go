package validate

import (
	"sort"
	"sync"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

// PluginFunc is a named validator invoked when a field's rules name it.
// It receives the full record so it can implement cross-field checks.
// A non-nil error is reported as the field's validation message.
type PluginFunc func(table, field string, value any, rec core.Record) error

var (
	pluginsMu sync.RWMutex
	plugins   = make(map[string]PluginFunc)
)

// RegisterPlugin makes a validator available under the given name.
// Typically called from an init function. Re-registering a name replaces
// the previous validator.
func RegisterPlugin(name string, fn PluginFunc) {
	pluginsMu.Lock()
	defer pluginsMu.Unlock()
	plugins[name] = fn
}

// Plugin returns the named validator.
func Plugin(name string) (PluginFunc, bool) {
	pluginsMu.RLock()
	defer pluginsMu.RUnlock()
	fn, ok := plugins[name]
	return fn, ok
}

// Plugins returns the registered validator names in sorted order.
func Plugins() []string {
	pluginsMu.RLock()
	defer pluginsMu.RUnlock()
	names := make([]string, 0, len(plugins))
	for name := range plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
