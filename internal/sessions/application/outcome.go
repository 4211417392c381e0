package application

import (
	"github.com/zjrosen/vibe/internal/sessions/domain"
)

// ErrorInfo is the categorized error carried by a failed Outcome.
type ErrorInfo struct {
	Category  domain.ErrorCategory `json:"category"`
	Message   string               `json:"message"`
	Retryable bool                 `json:"retryable,omitempty"`
}

// Outcome is the result every Service operation returns.
type Outcome[T any] struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    T          `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// Err returns the failure as an error, or nil on success.
func (o Outcome[T]) Err() error {
	if o.Success || o.Error == nil {
		return nil
	}
	return outcomeError{info: *o.Error}
}

type outcomeError struct {
	info ErrorInfo
}

func (e outcomeError) Error() string {
	return string(e.info.Category) + ": " + e.info.Message
}

func succeed[T any](data T, message string) Outcome[T] {
	return Outcome[T]{Success: true, Message: message, Data: data}
}

func fail[T any](err error) Outcome[T] {
	return Outcome[T]{
		Success: false,
		Error: &ErrorInfo{
			Category:  domain.CategoryOf(err),
			Message:   err.Error(),
			Retryable: domain.IsRetryable(err),
		},
	}
}

// failWith returns a failed outcome that still carries data, for mutations
// that were applied in memory but could not be saved.
func failWith[T any](data T, err error) Outcome[T] {
	o := fail[T](err)
	o.Data = data
	return o
}
