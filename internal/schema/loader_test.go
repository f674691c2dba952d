package schema

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

const appYAML = `source: app
meta:
  backend: sqlite
  location: app.db
  label: Application data
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
  posts:
    fields:
      - name: id
        type: integer
        primary_key: true
      - name: user_id
        type: integer
        foreign_key:
          table: users
          column: id
      - name: title
        type: string
`

func writeSchema(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesAndValidates(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "app.yaml", appYAML)

	l, err := NewLoader(dir, nil)
	require.NoError(t, err)

	s, err := l.Load("app")
	require.NoError(t, err)
	assert.Equal(t, "app", s.Source)
	assert.Equal(t, "sqlite", s.Meta.Backend)
	assert.Len(t, s.Tables, 2)

	users, ok := s.Table("users")
	require.True(t, ok)
	assert.Equal(t, "users", users.Name)

	email, ok := users.Field("email")
	require.True(t, ok)
	assert.True(t, email.Unique)
	require.NotNil(t, email.Rules)
	assert.Equal(t, "email", email.Rules.Format)

	posts, _ := s.Table("posts")
	userID, ok := posts.Field("user_id")
	require.True(t, ok)
	require.NotNil(t, userID.ForeignKey)
	assert.Equal(t, "users", userID.ForeignKey.Table)
	assert.Equal(t, "id", userID.ForeignKey.Column)
}

func TestLoadReturnsSameInstance(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "app.yaml", appYAML)

	l, err := NewLoader(dir, nil)
	require.NoError(t, err)

	a, err := l.Load("app")
	require.NoError(t, err)
	b, err := l.Load("app")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestLoadMissingFile(t *testing.T) {
	l, err := NewLoader(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = l.Load("nope")
	var cerr *core.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestLoadRejectsInvalidSchema(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "bad.yaml", `
meta:
  backend: sqlite
tables:
  users:
    fields:
      - name: id
        type: wat
`)

	l, err := NewLoader(dir, nil)
	require.NoError(t, err)

	_, err = l.Load("bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field type")
}

func TestInvalidateForcesReload(t *testing.T) {
	dir := t.TempDir()
	path := writeSchema(t, dir, "app.yaml", appYAML)

	l, err := NewLoader(dir, nil)
	require.NoError(t, err)

	s, err := l.Load("app")
	require.NoError(t, err)
	assert.Len(t, s.Tables, 2)

	updated := appYAML + `  tags:
    fields:
      - name: id
        type: integer
        primary_key: true
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	// Ensure a distinct mtime even on coarse filesystem clocks.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	l.Invalidate("app")
	s, err = l.Load("app")
	require.NoError(t, err)
	assert.Len(t, s.Tables, 3)
}

func TestFileCacheInvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeSchema(t, dir, "f.txt", "one")

	c, err := NewFileCache(4, nil)
	require.NoError(t, err)

	data, err := c.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, os.WriteFile(path, []byte("two!"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	data, err = c.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "two!", string(data))
}

func TestFileCacheEvicts(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(2, nil)
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c"} {
		path := writeSchema(t, dir, name, name)
		_, err := c.Read(path)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
}
