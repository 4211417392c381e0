package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the session packages matches
// exactly one of these with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrStorage         = errors.New("storage fault")
	ErrInvalidState    = errors.New("invalid state")
	ErrMalformedRecord = errors.New("malformed record")
)

// ErrorCategory is the machine-readable name of an error category.
type ErrorCategory string

// Error category names.
const (
	CategoryNone            ErrorCategory = ""
	CategoryNotFound        ErrorCategory = "not_found"
	CategoryStorage         ErrorCategory = "storage_fault"
	CategoryInvalidState    ErrorCategory = "invalid_state"
	CategoryMalformedRecord ErrorCategory = "malformed_record"
	CategoryInternal        ErrorCategory = "internal"
)

// SessionNotFoundError indicates that no session with the given id exists.
type SessionNotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: id=%q", e.ID)
}

// Is matches ErrNotFound.
func (e *SessionNotFoundError) Is(target error) bool { return target == ErrNotFound }

// WorkflowNotFoundError indicates that no workflow definition has the given name.
type WorkflowNotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *WorkflowNotFoundError) Error() string {
	return fmt.Sprintf("workflow not found: %q", e.Name)
}

// Is matches ErrNotFound.
func (e *WorkflowNotFoundError) Is(target error) bool { return target == ErrNotFound }

// StorageError wraps a failure of the durable backend.
type StorageError struct {
	Op        string
	ID        string
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	if e.ID == "" {
		return fmt.Sprintf("storage %s failed (%s): %v", e.Op, kind, e.Err)
	}
	return fmt.Sprintf("storage %s failed for session %q (%s): %v", e.Op, e.ID, kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error { return e.Err }

// Is matches ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// InvalidStateError indicates an operation that the session's current shape
// does not allow.
type InvalidStateError struct {
	ID     string
	Op     string
	Reason string
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s session %q: %s", e.Op, e.ID, e.Reason)
}

// Is matches ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// MalformedRecordError indicates a persisted record that could not be decoded.
type MalformedRecordError struct {
	Source string
	Err    error
}

// Error implements the error interface.
func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed session record %s: %v", e.Source, e.Err)
}

// Unwrap returns the decode error.
func (e *MalformedRecordError) Unwrap() error { return e.Err }

// Is matches ErrMalformedRecord.
func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

// CategoryOf classifies err. A nil error has CategoryNone; errors outside the
// taxonomy are CategoryInternal.
func CategoryOf(err error) ErrorCategory {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrInvalidState):
		return CategoryInvalidState
	case errors.Is(err, ErrMalformedRecord):
		return CategoryMalformedRecord
	case errors.Is(err, ErrStorage):
		return CategoryStorage
	default:
		return CategoryInternal
	}
}

// IsRetryable reports whether err is a storage fault marked transient.
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Retryable
}
