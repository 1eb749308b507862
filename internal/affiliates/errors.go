package affiliates

import (
	"errors"
	"fmt"
)

// ErrorKind classifies data source failures so callers can react without inspecting message text.
type ErrorKind string

const (
	ErrorKindUnauthorized ErrorKind = "unauthorized"
	ErrorKindNotFound     ErrorKind = "not_found"
	ErrorKindValidation   ErrorKind = "validation"
	ErrorKindTransport    ErrorKind = "transport"
)

// SourceError is returned by data source adapters. Kind is assigned where the failure is observed.
type SourceError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Fields     map[string]string
	Err        error
}

func (e *SourceError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var sourceErr *SourceError
	if errors.As(err, &sourceErr) {
		return sourceErr.Kind
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ErrorKindValidation
	}
	return ""
}

// IsUnauthorized reports whether err signals a rejected or missing session.
func IsUnauthorized(err error) bool {
	return KindOf(err) == ErrorKindUnauthorized
}

// ErrAffiliateNotFound indicates that no affiliate exists for the identifier.
var ErrAffiliateNotFound = errors.New("affiliates: affiliate not found")

// ErrDuplicateEmail indicates that another affiliate already uses the email address.
var ErrDuplicateEmail = errors.New("affiliates: email already registered")

// ServiceError carries a dotted operation code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
