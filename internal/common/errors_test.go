package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_UnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("register: %w", NewValidationError("email", "%q is required", "email"))

	assert.True(t, errors.Is(err, ErrValidation))

	var ve *ValidationError
	if assert.True(t, errors.As(err, &ve)) {
		assert.Equal(t, "email", ve.Field)
		assert.Equal(t, `"email" is required`, ve.Error())
	}
}

func TestInvalidIDError(t *testing.T) {
	err := InvalidIDError("nope")
	assert.Equal(t, "_id", err.Field)
	assert.Contains(t, err.Error(), `"nope"`)
}

func TestConflictError_As(t *testing.T) {
	err := fmt.Errorf("create channel: %w", &ConflictError{Entity: "Channel", Field: "desc"})

	var ce *ConflictError
	if assert.True(t, errors.As(err, &ce)) {
		assert.Equal(t, "desc", ce.Field)
		assert.Equal(t, "Channel with this desc already exists", ce.Error())
	}
	assert.False(t, errors.Is(err, ErrValidation))
}

func TestNotFoundError_IsSentinel(t *testing.T) {
	err := fmt.Errorf("send: %w", &NotFoundError{Entity: "Recipient"})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "send: Recipient not found", err.Error())
}
