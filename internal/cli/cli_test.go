package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `meta:
  backend: memtab
  location: data
tables:
  users:
    fields:
      - name: id
        type: integer
        primary_key: true
      - name: email
        type: string
        unique: true
        required: true
        rules:
          format: email
      - name: name
        type: string
`

// project lays out a config file, schema dir and seeded memtab data in
// a temp directory.
type project struct {
	configPath string
	dataDir    string
}

func newProject(t *testing.T) *project {
	t.Helper()
	root := t.TempDir()

	schemaDir := filepath.Join(root, "schemas")
	dataDir := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(schemaDir, 0o755))
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "app.yaml"), []byte(testSchema), 0o644))

	configPath := filepath.Join(root, "leapbase.yaml")
	cfg := fmt.Sprintf(`schema_dir: %s
journal_path: %s
sources:
  app:
    kind: memtab
    path: %s
`, schemaDir, filepath.Join(root, "journal.db"), dataDir)
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))

	return &project{configPath: configPath, dataDir: dataDir}
}

func (p *project) seedUsers(t *testing.T, rows string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(p.dataDir, "users.json"), []byte(rows), 0o644))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leapbase v")
}

func TestQueryCommand(t *testing.T) {
	p := newProject(t)
	p.seedUsers(t, `[
  {"id": 1, "email": "ada@example.com", "name": "Ada"},
  {"id": 2, "email": "bob@example.com", "name": "Bob"}
]`)

	out, err := execute(t, "--config", p.configPath, "query", "app", "users",
		"--where", `{"name": "Ada"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "ada@example.com")
	assert.NotContains(t, out, "bob@example.com")
	assert.Contains(t, out, "(1 rows)")
}

func TestQueryCommandJSONOutput(t *testing.T) {
	p := newProject(t)
	p.seedUsers(t, `[{"id": 1, "email": "ada@example.com", "name": "Ada"}]`)

	out, err := execute(t, "--config", p.configPath, "query", "app", "users",
		"--format", "json", "--fields", "email")
	require.NoError(t, err)
	assert.Contains(t, out, `"email": "ada@example.com"`)
	assert.NotContains(t, out, `"name"`)
}

func TestQueryCommandBadWhere(t *testing.T) {
	p := newProject(t)
	p.seedUsers(t, `[]`)

	_, err := execute(t, "--config", p.configPath, "query", "app", "users",
		"--where", "{not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --where")
}

func TestTablesCommand(t *testing.T) {
	p := newProject(t)
	p.seedUsers(t, `[]`)

	out, err := execute(t, "--config", p.configPath, "tables", "app")
	require.NoError(t, err)
	assert.Contains(t, out, "users")
	assert.Contains(t, out, "yes")
}

func TestValidateCommandSchemas(t *testing.T) {
	p := newProject(t)

	out, err := execute(t, "--config", p.configPath, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "app: ok")
}

func TestValidateCommandRecord(t *testing.T) {
	p := newProject(t)

	out, err := execute(t, "--config", p.configPath, "validate", "app", "users",
		`{"email": "ada@example.com"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	_, err = execute(t, "--config", p.configPath, "validate", "app", "users",
		`{"email": "nope"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid email")
}

func TestRunCommandExecutesWorkflow(t *testing.T) {
	p := newProject(t)
	p.seedUsers(t, `[]`)

	wfPath := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(wfPath, []byte(`name: demo
steps:
  - name: add
    kind: insert
    source: app
    table: users
    values:
      email: ada@example.com
      name: Ada
  - name: announce
    kind: display
    message: "created user {{result.0}}"
`), 0o644))

	out, err := execute(t, "--config", p.configPath, "run", wfPath)
	require.NoError(t, err)
	assert.Contains(t, out, "created user 1")
	assert.Contains(t, out, "Workflow demo: 2 steps completed")

	// The run was journaled.
	out, err = execute(t, "--config", p.configPath, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "completed")
}

func TestRunCommandNoJournal(t *testing.T) {
	p := newProject(t)
	p.seedUsers(t, `[]`)

	wfPath := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(wfPath, []byte(`name: quiet
steps:
  - name: add
    kind: insert
    source: app
    table: users
    values:
      email: a@example.com
`), 0o644))

	_, err := execute(t, "--config", p.configPath, "run", wfPath, "--no-journal")
	require.NoError(t, err)

	out, err := execute(t, "--config", p.configPath, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded")
}
