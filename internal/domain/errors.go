package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed question-answering call.
type ErrorKind string

const (
	ErrorInvalidInput       ErrorKind = "invalid-input"
	ErrorValidation         ErrorKind = "validation-error"
	ErrorServiceUnavailable ErrorKind = "service-unavailable"
	ErrorGeneric            ErrorKind = "generic-error"
)

// ParseErrorKind maps a wire code onto a known kind.
func ParseErrorKind(s string) (ErrorKind, bool) {
	switch k := ErrorKind(s); k {
	case ErrorInvalidInput, ErrorValidation, ErrorServiceUnavailable, ErrorGeneric:
		return k, true
	}
	return "", false
}

// AskError is returned by question-answering clients.
type AskError struct {
	Kind       ErrorKind
	StatusCode int
	Detail     string
	Err        error
}

func (e *AskError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("ask: %s (%d): %s", e.Kind, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("ask: %s (%d): %s: %v", e.Kind, e.StatusCode, e.Detail, e.Err)
}

func (e *AskError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf reports the kind carried by err, defaulting to ErrorGeneric.
func KindOf(err error) ErrorKind {
	var askErr *AskError
	if errors.As(err, &askErr) && askErr.Kind != "" {
		return askErr.Kind
	}
	return ErrorGeneric
}
