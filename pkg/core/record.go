package core

// Record is one row keyed by field name. Every backend returns records in
// this shape, never positional tuples.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Has reports whether the record contains a non-nil value for the field.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}
