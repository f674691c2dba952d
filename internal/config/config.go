// Package config loads project configuration from file, environment and
// flags. Precedence, highest first: flags, env vars, config file,
// defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

// Defaults.
const (
	DefaultSchemaDir   = "schemas"
	DefaultJournalPath = "leapbase.db"

	envPrefix = "LEAPBASE_"
)

// Config is the resolved project configuration.
type Config struct {
	// SchemaDir holds one <alias>.yaml schema file per source.
	SchemaDir string `koanf:"schema_dir"`

	// JournalPath is the SQLite file recording workflow runs.
	JournalPath string `koanf:"journal_path"`

	Verbose bool `koanf:"verbose"`

	// Sources maps source aliases to backend targets.
	Sources map[string]core.BackendConfig `koanf:"sources"`
}

// findConfigFile returns the config file to use.
// Priority: explicit path > leapbase.yaml > leapbase.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"leapbase.yaml", "leapbase.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load resolves the configuration. cfgFile may be empty, in which case
// leapbase.yaml is looked up in the working directory. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"schema_dir":   DefaultSchemaDir,
		"journal_path": DefaultJournalPath,
		"verbose":      false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, &core.ConfigError{Field: "config", Message: fmt.Sprintf("config file %s not found", cfgFile)}
		}
	}
	if used := findConfigFile(cfgFile); used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// LEAPBASE_SCHEMA_DIR -> schema_dir
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for alias, src := range c.Sources {
		if src.Kind == "" {
			return &core.ConfigError{
				Field:   "sources." + alias,
				Message: "backend kind is required",
			}
		}
	}
	return nil
}
