package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionNotFoundError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *SessionNotFoundError
		expected string
	}{
		{
			name:     "basic case",
			err:      &SessionNotFoundError{ID: "abc12345"},
			expected: `session not found: id="abc12345"`,
		},
		{
			name:     "empty id",
			err:      &SessionNotFoundError{},
			expected: `session not found: id=""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestStorageError_Error(t *testing.T) {
	err := &StorageError{Op: "put", ID: "abc", Retryable: true, Err: errors.New("disk busy")}
	require.Equal(t, `storage put failed for session "abc" (transient): disk busy`, err.Error())

	err = &StorageError{Op: "load", Err: errors.New("permission denied")}
	require.Equal(t, `storage load failed (permanent): permission denied`, err.Error())
}

func TestInvalidStateError_Error(t *testing.T) {
	err := &InvalidStateError{ID: "abc", Op: "break workflow", Reason: "only one workflow on the stack"}
	require.Equal(t, `cannot break workflow session "abc": only one workflow on the stack`, err.Error())
}

func TestCategoryOf(t *testing.T) {
	cause := errors.New("cause")
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, CategoryNone},
		{"not found", &SessionNotFoundError{ID: "x"}, CategoryNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", &SessionNotFoundError{ID: "x"}), CategoryNotFound},
		{"workflow not found", &WorkflowNotFoundError{Name: "deploy"}, CategoryNotFound},
		{"storage", &StorageError{Op: "put", Err: cause}, CategoryStorage},
		{"invalid state", &InvalidStateError{ID: "x", Op: "break", Reason: "r"}, CategoryInvalidState},
		{"malformed", &MalformedRecordError{Source: "f.json", Err: cause}, CategoryMalformedRecord},
		{"unknown", cause, CategoryInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CategoryOf(tt.err))
		})
	}
}

func TestStorageError_UnwrapAndRetryable(t *testing.T) {
	cause := errors.New("locked")
	err := fmt.Errorf("save: %w", &StorageError{Op: "put", Retryable: true, Err: cause})

	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, cause)
	require.True(t, IsRetryable(err))
	require.False(t, IsRetryable(&StorageError{Op: "put", Err: cause}))
	require.False(t, IsRetryable(cause))
}

func TestDecodeSession_Malformed(t *testing.T) {
	_, err := DecodeSession("broken.json", []byte("{not json"))
	require.ErrorIs(t, err, ErrMalformedRecord)

	var mre *MalformedRecordError
	require.ErrorAs(t, err, &mre)
	require.Equal(t, "broken.json", mre.Source)

	_, err = DecodeSession("noid.json", []byte(`{"prompt":"x"}`))
	require.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecodeSession_NormalizesCursor(t *testing.T) {
	data := []byte(`{
		"session_id": "abc12345",
		"prompt": "p",
		"workflow_stack": [
			{"workflow_name": "w", "steps": ["a"], "current_step": 9},
			null
		],
		"created_at": "2025-03-14T09:00:00Z",
		"last_accessed": "2025-03-14T09:05:00Z"
	}`)
	s, err := DecodeSession("abc12345.json", data)
	require.NoError(t, err)
	require.Len(t, s.Stack, 1)
	require.Equal(t, 1, s.Stack[0].CurrentStep)
}
