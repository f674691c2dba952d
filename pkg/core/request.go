package core

// Action identifies one data operation in a Request.
type Action string

const (
	ActionCreate     Action = "create" // DDL: create table
	ActionRead       Action = "read"
	ActionInsert     Action = "insert"
	ActionUpdate     Action = "update"
	ActionUpsert     Action = "upsert"
	ActionDelete     Action = "delete"
	ActionListTables Action = "list_tables"
)

// Request is the uniform data-operation request consumed by the core.
// Callers (CLI, workflow steps, the navigation engine) produce these;
// resolved identity is not consulted here.
type Request struct {
	Action Action `yaml:"action"`

	// Model names the data source (schema alias) the operation targets.
	Model string `yaml:"model,omitempty"`

	// Tables lists the table(s) the operation reads from or writes to.
	// Write operations use exactly the first entry.
	Tables []string `yaml:"tables,omitempty"`

	// Fields restricts the columns returned by a read. Empty means all.
	Fields []string `yaml:"fields,omitempty"`

	// Values is the record to insert, upsert, or apply as an update.
	Values Record `yaml:"values,omitempty"`

	// Where is the declarative condition tree. An empty tree matches all
	// rows.
	Where ConditionTree `yaml:"where,omitempty"`

	// Order is the ordering specification: a raw string, a []string of
	// "field [ASC|DESC]" tokens, or a map of field to direction.
	Order any `yaml:"order,omitempty"`

	// Limit caps the number of rows returned by a read. Zero means no cap.
	Limit int `yaml:"limit,omitempty"`

	// Joins is the explicit ordered join list for multi-table reads.
	Joins []Join `yaml:"joins,omitempty"`

	// AutoJoin enables foreign-key-driven join discovery when no explicit
	// joins are given.
	AutoJoin bool `yaml:"auto_join,omitempty"`
}

// Table returns the primary table of the request, or "" when none is set.
func (r *Request) Table() string {
	if len(r.Tables) == 0 {
		return ""
	}
	return r.Tables[0]
}
