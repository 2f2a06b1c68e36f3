package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecord marks a raw record whose required fields are missing
	// or have the wrong shape. It is fatal for that record.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrMalformedPayload marks a response body that is not the expected JSON envelope.
	ErrMalformedPayload = errors.New("malformed payload")
)

// ValidationError reports the record kind and field that failed validation.
type ValidationError struct {
	Record string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: field %q: %s", e.Record, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRecord
}

func invalid(record, field, format string, args ...any) error {
	return &ValidationError{Record: record, Field: field, Reason: fmt.Sprintf(format, args...)}
}
