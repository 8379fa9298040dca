package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"validation", Validation("price must be positive, got %d", -1), KindValidation},
		{"authorization", Authorization("caller is not the subscriber"), KindAuthorization},
		{"conflict", Conflict("subscriber already has an active subscription"), KindStateConflict},
		{"not found", NotFound("plan %d not assigned", 42), KindNotFound},
		{"external", External(errors.New("insufficient balance"), "renewal rejected"), KindExternal},
		{"unclassified", errors.New("boom"), Kind("")},
		{"nil cause preserved", Validation("bad input"), KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestWrappedErrorsKeepKind(t *testing.T) {
	inner := Conflict("duplicate intent hash")
	wrapped := fmt.Errorf("create intent: %w", inner)

	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Equal(t, KindStateConflict, KindOf(wrapped))
}

func TestExternalPreservesCause(t *testing.T) {
	cause := errors.New("transfer rejected")
	err := External(cause, "agent renewal failed")

	assert.True(t, IsExternal(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "transfer rejected")
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsValidation(Validation("x")))
	assert.True(t, IsAuthorization(Authorization("x")))
	assert.True(t, IsNotFound(NotFound("x")))
	assert.False(t, IsExternal(nil))
	assert.False(t, IsNotFound(errors.New("plain")))
}
