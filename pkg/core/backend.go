package core

// BackendConfig holds the connection configuration for one data source.
type BackendConfig struct {
	// Kind is the backend kind (sqlite, memtab, postgres, duckdb).
	Kind string `yaml:"kind" koanf:"kind"`

	// Path is the storage location for file-based backends: a database
	// file for sqlite/duckdb, a directory of table files for memtab.
	// Use ":memory:" for in-memory databases.
	Path string `yaml:"path,omitempty" koanf:"path"`

	// Host, Port, Database, Username, Password configure network backends.
	Host     string `yaml:"host,omitempty" koanf:"host"`
	Port     int    `yaml:"port,omitempty" koanf:"port"`
	Database string `yaml:"database,omitempty" koanf:"database"`
	Username string `yaml:"username,omitempty" koanf:"username"`
	Password string `yaml:"password,omitempty" koanf:"password"`

	// Options carries driver-specific options (e.g. sslmode).
	Options map[string]string `yaml:"options,omitempty" koanf:"options"`
}
