// Package validate checks records against schema rules before any
// mutation reaches a backend. Validation is synchronous and offline:
// a failing record never produces a backend call.
package validate

import (
	"fmt"
	"log/slog"
	"regexp"
	"unicode/utf8"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

// Validator evaluates schema rules for one source.
type Validator struct {
	schema *core.Schema
	logger *slog.Logger
}

// New creates a validator over the given schema.
// If logger is nil, a discard logger is used.
func New(schema *core.Schema, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Validator{schema: schema, logger: logger}
}

// ValidateInsert checks a record destined for insertion. Every required
// field that is absent and has neither a default nor an auto-assigned key
// is flagged, independently of rule failures on present fields. Returns
// nil when the record is valid.
func (v *Validator) ValidateInsert(table string, rec core.Record) core.ValidationErrors {
	tbl, ok := v.schema.Table(table)
	if !ok {
		return core.ValidationErrors{table: fmt.Sprintf("unknown table %q", table)}
	}

	errs := make(core.ValidationErrors)
	for i := range tbl.Fields {
		f := &tbl.Fields[i]
		if !f.Required {
			continue
		}
		if _, present := rec[f.Name]; present {
			continue
		}
		if f.Default != nil || f.AutoKey() {
			continue
		}
		errs[f.Name] = fmt.Sprintf("%s is required", f.Name)
	}

	v.checkPresent(tbl, rec, errs)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateUpdate checks a partial record destined for an update. Absent
// fields are not flagged; only the fields present in the record are
// checked against their rules.
func (v *Validator) ValidateUpdate(table string, rec core.Record) core.ValidationErrors {
	tbl, ok := v.schema.Table(table)
	if !ok {
		return core.ValidationErrors{table: fmt.Sprintf("unknown table %q", table)}
	}

	errs := make(core.ValidationErrors)
	v.checkPresent(tbl, rec, errs)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// checkPresent runs field rules for every field present in the record.
// The first failing rule per field wins; failures accumulate across
// fields.
func (v *Validator) checkPresent(tbl *core.Table, rec core.Record, errs core.ValidationErrors) {
	for i := range tbl.Fields {
		f := &tbl.Fields[i]
		val, present := rec[f.Name]
		if !present {
			continue
		}
		if msg := v.checkField(tbl.Name, f, val, rec); msg != "" {
			if f.Rules != nil && f.Rules.ErrorMessage != "" {
				msg = f.Rules.ErrorMessage
			}
			errs[f.Name] = msg
		}
	}
}

// checkField evaluates one field's rules in declaration order and
// returns the first failure message, or "" when the value passes.
func (v *Validator) checkField(table string, f *core.Field, val any, rec core.Record) string {
	if val == nil {
		if f.Required {
			return fmt.Sprintf("%s is required", f.Name)
		}
		return ""
	}
	r := f.Rules
	if r == nil {
		return ""
	}

	if r.MinLength != nil || r.MaxLength != nil || r.Pattern != "" || r.Format != "" {
		s, ok := val.(string)
		if !ok {
			return fmt.Sprintf("%s must be a string", f.Name)
		}
		n := utf8.RuneCountInString(s)
		if r.MinLength != nil && n < *r.MinLength {
			return fmt.Sprintf("%s must be at least %d characters", f.Name, *r.MinLength)
		}
		if r.MaxLength != nil && n > *r.MaxLength {
			return fmt.Sprintf("%s must be at most %d characters", f.Name, *r.MaxLength)
		}
		if r.Pattern != "" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				v.logger.Warn("invalid pattern rule", "table", table, "field", f.Name, "error", err)
				return fmt.Sprintf("%s has an invalid pattern rule", f.Name)
			}
			if !re.MatchString(s) {
				return fmt.Sprintf("%s does not match the required pattern", f.Name)
			}
		}
		if r.Format != "" {
			if msg := checkFormat(f.Name, r.Format, s); msg != "" {
				return msg
			}
		}
	}

	if r.MinValue != nil || r.MaxValue != nil {
		n, ok := asNumber(val)
		if !ok {
			return fmt.Sprintf("%s must be numeric", f.Name)
		}
		if r.MinValue != nil && n < *r.MinValue {
			return fmt.Sprintf("%s must be at least %v", f.Name, *r.MinValue)
		}
		if r.MaxValue != nil && n > *r.MaxValue {
			return fmt.Sprintf("%s must be at most %v", f.Name, *r.MaxValue)
		}
	}

	if r.Validator != "" {
		fn, ok := Plugin(r.Validator)
		if !ok {
			v.logger.Warn("unknown plugin validator", "table", table, "field", f.Name, "validator", r.Validator)
			return fmt.Sprintf("%s references unknown validator %q", f.Name, r.Validator)
		}
		if err := fn(table, f.Name, val, rec); err != nil {
			return err.Error()
		}
	}
	return ""
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
