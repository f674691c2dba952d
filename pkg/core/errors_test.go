package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := &OpError{Op: "insert", Backend: "sqlite", Table: "users", Err: cause}

	assert.Equal(t, "sqlite insert on users: disk full", err.Error())
	assert.True(t, errors.Is(err, cause))

	err = &OpError{Op: "connect", Backend: "postgres", Err: cause}
	assert.Equal(t, "postgres connect: disk full", err.Error())
}

func TestConstraintErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("UNIQUE constraint failed: users.email")
	err := &ConstraintError{Kind: ConstraintUnique, Table: "users", Backend: "sqlite", Err: cause}

	assert.Contains(t, err.Error(), "unique violation on users")
	assert.True(t, errors.Is(err, cause))

	var cerr *ConstraintError
	wrapped := fmt.Errorf("step failed: %w", err)
	require.ErrorAs(t, wrapped, &cerr)
	assert.Equal(t, ConstraintUnique, cerr.Kind)
}

func TestConfigError(t *testing.T) {
	assert.Equal(t, "config error: sources.app: backend kind is required",
		(&ConfigError{Field: "sources.app", Message: "backend kind is required"}).Error())
	assert.Equal(t, "config error: boom",
		(&ConfigError{Message: "boom"}).Error())
}

func TestValidationErrorsMessageIsSorted(t *testing.T) {
	verrs := ValidationErrors{
		"name":  "name is required",
		"email": "email is not a valid email",
	}
	assert.Equal(t,
		"validation failed: email: email is not a valid email; name: name is required",
		verrs.Error())
}
