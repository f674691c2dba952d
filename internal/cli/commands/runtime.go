package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbase/internal/config"
	"github.com/leapstack-labs/leapbase/internal/schema"
	"github.com/leapstack-labs/leapbase/internal/source"
)

// Runtime carries the loaded configuration and logger into commands.
type Runtime struct {
	Config *config.Config
	Logger *slog.Logger
}

// runtimeKey is used to store the runtime in context.
type runtimeKey struct{}

// WithRuntime stores the runtime in a context.
func WithRuntime(ctx context.Context, rt *Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// RuntimeFrom retrieves the runtime installed by the root command.
func RuntimeFrom(cmd *cobra.Command) (*Runtime, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*Runtime)
	if !ok || rt == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return rt, nil
}

// OpenStack builds the schema loader and connection cache for the
// configured sources. The caller owns the cache and must Clear it.
func (rt *Runtime) OpenStack() (*schema.Loader, *source.Cache, error) {
	loader, err := schema.NewLoader(rt.Config.SchemaDir, rt.Logger)
	if err != nil {
		return nil, nil, err
	}
	cache := source.NewCache(rt.Config.Sources, loader, rt.Logger)
	return loader, cache, nil
}
