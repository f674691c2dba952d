package backend

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

// stubBackend fills the contract gaps BaseSQLBackend leaves to concrete
// engines, so registry tests have something to register.
type stubBackend struct {
	BaseSQLBackend
}

func (s *stubBackend) Connect(_ context.Context, cfg core.BackendConfig, schema *core.Schema) error {
	s.Cfg = cfg
	s.Schema = schema
	return nil
}

func (s *stubBackend) TableExists(context.Context, string) (bool, error) { return false, nil }

func (s *stubBackend) ListTables(context.Context) ([]string, error) { return nil, nil }

var _ Backend = (*stubBackend)(nil)

func stubFactory(kind string) func(*slog.Logger) Backend {
	return func(logger *slog.Logger) Backend {
		return &stubBackend{BaseSQLBackend: BaseSQLBackend{Logger: logger, KindName: kind}}
	}
}

func TestRegisterAndGet(t *testing.T) {
	Register("stub-a", stubFactory("stub-a"))

	factory, ok := Get("stub-a")
	require.True(t, ok)
	assert.Equal(t, "stub-a", factory(nil).Kind())

	_, ok = Get("never-registered")
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	Register("stub-b", stubFactory("stub-b"))

	b, err := New(core.BackendConfig{Kind: "stub-b"}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, "stub-b", b.Kind())
}

func TestNewMissingKind(t *testing.T) {
	_, err := New(core.BackendConfig{}, nil)
	require.Error(t, err)

	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "kind", cfgErr.Field)
}

func TestNewUnknownKind(t *testing.T) {
	Register("stub-c", stubFactory("stub-c"))

	_, err := New(core.BackendConfig{Kind: "no-such-engine"}, nil)
	require.Error(t, err)

	var unknown *UnknownBackendError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "no-such-engine", unknown.Kind)
	assert.Contains(t, unknown.Available, "stub-c")
	assert.Contains(t, err.Error(), "no-such-engine")
}

func TestListAndIsRegistered(t *testing.T) {
	Register("stub-d", stubFactory("stub-d"))
	Register("stub-e", stubFactory("stub-e"))

	kinds := List()
	assert.Contains(t, kinds, "stub-d")
	assert.Contains(t, kinds, "stub-e")
	assert.IsIncreasing(t, kinds)

	assert.True(t, IsRegistered("stub-d"))
	assert.False(t, IsRegistered("stub-z"))
}
