// Package common defines shared constants and sentinel errors used across
// the engine layers. Callers should use errors.Is / errors.As to match them.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal    = errors.New("internal error")
	ErrQuotaExceeded = errors.New("license quota exceeded")
)

// ValidationError reports missing or invalid input rejected before the store
// is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError is a shorthand constructor.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StoreError wraps connectivity or constraint failures coming from the store.
// The operation that produced it had no partial effect.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// WrapStore wraps err into a StoreError unless it is nil or already one of
// the engine's typed errors.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	var ve *ValidationError
	if errors.As(err, &se) || errors.As(err, &ve) || errors.Is(err, ErrQuotaExceeded) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Marker maps an error to the marker printed in the failure report.
func Marker(err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return MarkerValidation
	case errors.Is(err, ErrQuotaExceeded):
		return MarkerQuotaExceeded
	default:
		return MarkerStore
	}
}
