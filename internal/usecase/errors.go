package usecase

import (
	"fmt"

	"mentor-ai/internal/domain"
)

// Error is returned by AskService. Kind drives the HTTP status; Reason is a
// stable machine-readable detail.
type Error struct {
	Kind   domain.ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind domain.ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}
