package core

// OrKey is the reserved condition-tree key whose value is a list of
// sub-trees OR'd together. All other top-level keys AND.
const OrKey = "_or"

// ConditionTree is the declarative WHERE representation: field name to
// either a literal (equality, or IS NULL for a nil literal), a slice
// (membership), or an operator object (map of operator name to operand).
//
// An absent or empty tree matches all rows. Destructive callers are warned
// before that applies.
type ConditionTree map[string]any

// Empty reports whether the tree matches all rows.
func (c ConditionTree) Empty() bool { return len(c) == 0 }

// Operator names accepted in condition operator objects.
const (
	OpEq      = "eq"
	OpNe      = "ne"
	OpGt      = "gt"
	OpGte     = "gte"
	OpLt      = "lt"
	OpLte     = "lte"
	OpLike    = "like"
	OpNull    = "null"
	OpNotNull = "notnull"
	OpIn      = "in"
)

// JoinKind is the join type allow-list. Unknown kinds fall back to inner.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinRight JoinKind = "right"
	JoinFull  JoinKind = "full"
	JoinCross JoinKind = "cross"
)

// NormalizeJoinKind maps a caller-provided kind onto the allow-list,
// defaulting unknown kinds to inner.
func NormalizeJoinKind(kind string) JoinKind {
	switch JoinKind(kind) {
	case JoinInner, JoinLeft, JoinRight, JoinFull, JoinCross:
		return JoinKind(kind)
	default:
		return JoinInner
	}
}

// Join is one explicit join specification.
type Join struct {
	Kind     string `yaml:"kind,omitempty"`
	Table    string `yaml:"table"`
	LeftKey  string `yaml:"left_key"`  // qualified or bare column on the already-joined side
	RightKey string `yaml:"right_key"` // column on the joined table
}
