package core

import (
	"fmt"
	"sort"
	"strings"
)

// ConfigError reports missing or invalid configuration. Fatal at
// construction time; never retried.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}

// OpError wraps a backend failure with the operation and backend kind that
// produced it.
type OpError struct {
	Op      string // e.g. "insert", "create_table", "connect"
	Backend string // backend kind, e.g. "sqlite"
	Table   string // affected table, if any
	Err     error
}

func (e *OpError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s %s on %s: %v", e.Backend, e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// ConstraintKind classifies a constraint violation.
type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintNotNull    ConstraintKind = "not_null"
	ConstraintOther      ConstraintKind = "constraint"
)

// ConstraintError is a row-level constraint violation surfaced from a
// backend: duplicate key, foreign-key violation, NOT NULL violation.
// Never retried, never a crash.
type ConstraintError struct {
	Kind    ConstraintKind
	Table   string
	Backend string
	Err     error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s %s violation on %s: %v", e.Backend, e.Kind, e.Table, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// ValidationErrors maps field names to validation messages. Returned to the
// caller instead of raising; no backend call is made when validation fails.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, v[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
