package core

import (
	"fmt"
	"sort"
)

// FieldType is the semantic type of a schema field. Backends map semantic
// types to their native column types through their dialect.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldInteger  FieldType = "integer"
	FieldFloat    FieldType = "float"
	FieldBoolean  FieldType = "boolean"
	FieldDatetime FieldType = "datetime"
	FieldDate     FieldType = "date"
	FieldTime     FieldType = "time"
	FieldJSON     FieldType = "json"
	FieldBinary   FieldType = "binary"
)

// ValidFieldType reports whether t is one of the known semantic types.
func ValidFieldType(t FieldType) bool {
	switch t {
	case FieldString, FieldInteger, FieldFloat, FieldBoolean,
		FieldDatetime, FieldDate, FieldTime, FieldJSON, FieldBinary:
		return true
	}
	return false
}

// ForeignKey declares that a field references a column in another table.
type ForeignKey struct {
	Table    string `yaml:"table"`
	Column   string `yaml:"column"`
	OnDelete string `yaml:"on_delete,omitempty"` // e.g. CASCADE, SET NULL, RESTRICT
}

// Rules is the per-field validation rule set evaluated before any mutation
// reaches a backend. All limits are optional; nil means "no constraint".
type Rules struct {
	MinLength *int     `yaml:"min_length,omitempty"`
	MaxLength *int     `yaml:"max_length,omitempty"`
	MinValue  *float64 `yaml:"min_value,omitempty"`
	MaxValue  *float64 `yaml:"max_value,omitempty"`

	// Pattern is a regular expression the value must match.
	Pattern string `yaml:"pattern,omitempty"`

	// Format names a built-in format validator: email, url, phone.
	Format string `yaml:"format,omitempty"`

	// Validator names a registered plugin validator. Plugin validators
	// receive the table name and the full record, so they can implement
	// cross-field logic.
	Validator string `yaml:"validator,omitempty"`

	// ErrorMessage, when set, overrides the default message of whichever
	// rule fails first for this field.
	ErrorMessage string `yaml:"error_message,omitempty"`
}

// Field is one column definition in a table.
type Field struct {
	Name       string      `yaml:"name"`
	Type       FieldType   `yaml:"type"`
	PrimaryKey bool        `yaml:"primary_key,omitempty"`
	Unique     bool        `yaml:"unique,omitempty"`
	Required   bool        `yaml:"required,omitempty"`
	Default    any         `yaml:"default,omitempty"`
	ForeignKey *ForeignKey `yaml:"foreign_key,omitempty"`
	Rules      *Rules      `yaml:"rules,omitempty"`
}

// AutoKey reports whether the field is an automatically assigned key:
// a single integer primary key populated by the backend.
func (f *Field) AutoKey() bool {
	return f.PrimaryKey && f.Type == FieldInteger
}

// Index declares a secondary index, created after the table DDL.
type Index struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
}

// Table is one table definition: an ordered field list plus optional
// composite primary key and index declarations.
type Table struct {
	Name       string   `yaml:"-"`
	Fields     []Field  `yaml:"fields"`
	PrimaryKey []string `yaml:"primary_key,omitempty"` // composite PK override
	Indexes    []Index  `yaml:"indexes,omitempty"`
}

// Field returns the definition of the named field.
func (t *Table) Field(name string) (*Field, bool) {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i], true
		}
	}
	return nil, false
}

// PrimaryKeyColumns returns the effective primary key: the composite
// declaration when present, otherwise every field flagged primary_key.
func (t *Table) PrimaryKeyColumns() []string {
	if len(t.PrimaryKey) > 0 {
		return t.PrimaryKey
	}
	var cols []string
	for i := range t.Fields {
		if t.Fields[i].PrimaryKey {
			cols = append(cols, t.Fields[i].Name)
		}
	}
	return cols
}

// SchemaMeta is the per-source metadata block of a schema definition.
type SchemaMeta struct {
	// Backend is the storage engine kind (sqlite, memtab, postgres, duckdb).
	Backend string `yaml:"backend"`

	// Location is the storage location: a database file, a directory of
	// table files, or a host for client/server engines.
	Location string `yaml:"location"`

	// Label is the human-readable display name for this source.
	Label string `yaml:"label,omitempty"`
}

// Schema is one data source definition: table name to table definition,
// plus the metadata block. Loaded once per source and treated as immutable
// for the lifetime of that source's connection.
type Schema struct {
	Source string            `yaml:"source"`
	Meta   SchemaMeta        `yaml:"meta"`
	Tables map[string]*Table `yaml:"tables"`
}

// Table returns the named table definition.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// TableNames returns all table names in sorted order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the schema for structural problems: missing metadata,
// unknown field types, foreign keys pointing at undefined tables.
func (s *Schema) Validate() error {
	if s.Meta.Backend == "" {
		return &ConfigError{Field: "meta.backend", Message: "backend kind is required"}
	}
	for name, tbl := range s.Tables {
		if len(tbl.Fields) == 0 {
			return &ConfigError{Field: name, Message: "table has no fields"}
		}
		for i := range tbl.Fields {
			f := &tbl.Fields[i]
			if !ValidFieldType(f.Type) {
				return &ConfigError{
					Field:   fmt.Sprintf("%s.%s", name, f.Name),
					Message: fmt.Sprintf("unknown field type %q", f.Type),
				}
			}
			if fk := f.ForeignKey; fk != nil {
				if _, ok := s.Tables[fk.Table]; !ok {
					return &ConfigError{
						Field:   fmt.Sprintf("%s.%s", name, f.Name),
						Message: fmt.Sprintf("foreign key references undefined table %q", fk.Table),
					}
				}
			}
		}
		for _, col := range tbl.PrimaryKey {
			if _, ok := tbl.Field(col); !ok {
				return &ConfigError{
					Field:   name,
					Message: fmt.Sprintf("composite primary key references undefined field %q", col),
				}
			}
		}
	}
	return nil
}
