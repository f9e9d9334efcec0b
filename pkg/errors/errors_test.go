package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationError_UnwrapAndMessage(t *testing.T) {
	err := &OperationError{Op: "buy", Item: "Dune", ItemID: "42", Err: ErrUnavailable}

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, `buy item="Dune" id=42: remote service unavailable`, err.Error())

	var opErr *OperationError
	wrapped := fmt.Errorf("wrapped: %w", err)
	assert.True(t, errors.As(wrapped, &opErr))
	assert.Equal(t, "buy", opErr.Op)
}

func TestSessionError_Unwrap(t *testing.T) {
	err := &SessionError{Op: "register", Username: "alice", Err: ErrUnavailable}
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), `"alice"`)
}

func TestIsRemoteFault(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"local precondition", ErrInvalidState, false},
		{"wrapped local", &OperationError{Op: "remove", Err: ErrNotOwner}, false},
		{"gateway", ErrUnavailable, true},
		{"wrapped gateway", fmt.Errorf("buy: %w", ErrInsufficientFunds), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRemoteFault(tt.err))
		})
	}
}
