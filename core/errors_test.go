package core_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/onhold/core"
)

func TestValidationError(t *testing.T) {
	err := core.NewValidationError(errors.New("invalid date"), core.FieldError{Field: "date", Error: "date must be formatted as YYYY-MM-DD"})
	assert.EqualError(t, err, "invalid date")

	vErr, ok := errors.Cause(errors.Wrap(err, "running batch")).(*core.ValidationError)
	assert.True(t, ok)
	assert.Equal(t, []core.FieldError{{Field: "date", Error: "date must be formatted as YYYY-MM-DD"}}, vErr.Fields)

	assert.EqualError(t, core.NewValidationError(nil), "")
}

func TestIsShutdown(t *testing.T) {
	err := core.NewShutdownError("encrypting contact_email: entropy source failed")
	assert.EqualError(t, err, "encrypting contact_email: entropy source failed")
	assert.True(t, core.IsShutdown(err))
	assert.True(t, core.IsShutdown(errors.Wrap(err, "creating record")))
	assert.False(t, core.IsShutdown(errors.New("record not found")))
	assert.False(t, core.IsShutdown(nil))
}
