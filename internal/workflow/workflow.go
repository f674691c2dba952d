// Package workflow executes ordered multi-step data workflows against
// cached source connections, with optional single-transaction semantics
// and step results that later steps can reference.
package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

// Step kinds.
const (
	StepQuery   = "query"
	StepInsert  = "insert"
	StepUpdate  = "update"
	StepUpsert  = "upsert"
	StepDelete  = "delete"
	StepEval    = "eval"
	StepDisplay = "display"
)

// Step is one named workflow operation.
type Step struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Source string `yaml:"source,omitempty"`

	// Data operation fields.
	Table    string             `yaml:"table,omitempty"`
	Tables   []string           `yaml:"tables,omitempty"`
	Fields   []string           `yaml:"fields,omitempty"`
	Values   core.Record        `yaml:"values,omitempty"`
	Where    core.ConditionTree `yaml:"where,omitempty"`
	Order    any                `yaml:"order,omitempty"`
	Limit    int                `yaml:"limit,omitempty"`
	Joins    []core.Join        `yaml:"joins,omitempty"`
	AutoJoin bool               `yaml:"auto_join,omitempty"`

	// Expr is the Starlark expression of an eval step. Prior step
	// results are bound as the list `results`.
	Expr string `yaml:"expr,omitempty"`

	// Message is the display step's template. Result placeholders are
	// interpolated before output.
	Message string `yaml:"message,omitempty"`
}

// Workflow is an ordered list of steps, optionally executed inside one
// transaction per touched source.
type Workflow struct {
	Name          string `yaml:"name"`
	Transactional bool   `yaml:"transactional,omitempty"`
	Steps         []Step `yaml:"steps"`
}

// Validate checks the workflow for structural problems before any step
// runs.
func (w *Workflow) Validate() error {
	if len(w.Steps) == 0 {
		return &core.ConfigError{Field: w.Name, Message: "workflow has no steps"}
	}
	for i, s := range w.Steps {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("step %d", i)
		}
		switch s.Kind {
		case StepQuery:
			if s.Table == "" && len(s.Tables) == 0 {
				return &core.ConfigError{Field: label, Message: "query step needs a table"}
			}
		case StepInsert, StepUpsert:
			if s.Table == "" {
				return &core.ConfigError{Field: label, Message: s.Kind + " step needs a table"}
			}
			if len(s.Values) == 0 {
				return &core.ConfigError{Field: label, Message: s.Kind + " step needs values"}
			}
		case StepUpdate:
			if s.Table == "" {
				return &core.ConfigError{Field: label, Message: "update step needs a table"}
			}
			if len(s.Values) == 0 {
				return &core.ConfigError{Field: label, Message: "update step needs values"}
			}
		case StepDelete:
			if s.Table == "" {
				return &core.ConfigError{Field: label, Message: "delete step needs a table"}
			}
		case StepEval:
			if s.Expr == "" {
				return &core.ConfigError{Field: label, Message: "eval step needs an expression"}
			}
		case StepDisplay:
			if s.Message == "" {
				return &core.ConfigError{Field: label, Message: "display step needs a message"}
			}
		default:
			return &core.ConfigError{Field: label, Message: fmt.Sprintf("unknown step kind %q", s.Kind)}
		}
		if s.isDataOp() && s.Source == "" {
			return &core.ConfigError{Field: label, Message: "data step needs a source alias"}
		}
	}
	return nil
}

func (s *Step) isDataOp() bool {
	switch s.Kind {
	case StepQuery, StepInsert, StepUpdate, StepUpsert, StepDelete:
		return true
	}
	return false
}

// Load parses and validates a workflow file.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.ConfigError{Field: path, Message: fmt.Sprintf("cannot read workflow file: %v", err)}
	}
	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, &core.ConfigError{Field: path, Message: fmt.Sprintf("invalid workflow file: %v", err)}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}
