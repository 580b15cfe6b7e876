package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Error Kinds
// ============================================================================

// Retryable
var (
	ErrTransport = errors.New("transport error")
)

// Fatal
var (
	ErrAuthentication = errors.New("authentication rejected")
	ErrConflict       = errors.New("conflict")
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
)

// Payload
var (
	ErrDeserialization = errors.New("deserialization failed")
	ErrPrediction      = errors.New("prediction failed")
)

// ============================================================================
// Structured Error
// ============================================================================

// Error carries a kind sentinel together with the resource it concerns.
// errors.Is matches both the kind and the wrapped cause.
type Error struct {
	Kind       error
	Resource   string
	Key        string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Resource != "" {
		b.WriteString(e.Resource)
		if e.Key != "" {
			fmt.Fprintf(&b, " %q", e.Key)
		}
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("error")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewError builds an Error of the given kind.
func NewError(kind error, resource, key, message string) *Error {
	return &Error{Kind: kind, Resource: resource, Key: key, Message: message}
}

// Validationf is shorthand for a validation error on a single key.
func Validationf(resource, key, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Resource: resource, Key: key, Message: fmt.Sprintf(format, args...)}
}

// Annotate fills in the resource and key of err when it is an *Error that
// has none yet. Other errors are returned untouched.
func Annotate(err error, resource, key string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	if e.Resource != "" {
		return err
	}
	out := *e
	out.Resource = resource
	out.Key = key
	return &out
}

// StatusCode returns the HTTP status recorded in err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsRetryable reports whether err is a transport failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}
