package tunnelerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err:  &Error{Type: Validation, Message: "bad tool name", Cause: errors.New("empty string")},
			want: "validation: bad tool name: empty string",
		},
		{
			name: "error without cause",
			err:  &Error{Type: Security, Message: "blocked"},
			want: "security: blocked",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("underlying")
	err := NewError(Internal, "wrap", cause)
	assert.Equal(t, cause, err.Unwrap())

	noCause := NewError(Internal, "wrap", nil)
	assert.Nil(t, noCause.Unwrap())
}

func TestError_Retryable(t *testing.T) {
	t.Parallel()
	assert.True(t, NewConnectionError("timeout", nil).Retryable())
	assert.True(t, NewToolExecutionError("github.create_issue", "failed", nil).Retryable())
	assert.False(t, NewAuthError("denied", nil).Retryable())
	assert.False(t, NewValidationError("bad input", nil).Retryable())
}

func TestCollapse(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Collapse(nil))

	original := NewSecurityError("blocked", nil)
	assert.Same(t, original, Collapse(original))

	plain := errors.New("some opaque error")
	collapsed := Collapse(plain)
	assert.Equal(t, Routing, collapsed.Type)
	assert.Equal(t, "some opaque error", collapsed.Message)
}

func TestTypeCheckers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		checker func(error) bool
		want    bool
	}{
		{"IsAuth matching", NewAuthError("x", nil), IsAuth, true},
		{"IsAuth non-matching", NewSecurityError("x", nil), IsAuth, false},
		{"IsAuth non-Error type", errors.New("plain"), IsAuth, false},
		{"IsToolExecution matching", NewToolExecutionError("t", "x", nil), IsToolExecution, true},
		{"IsInternal nil error", nil, IsInternal, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.checker(tt.err))
		})
	}
}
