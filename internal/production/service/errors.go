package service

import (
	"errors"
	"fmt"

	"github.com/Gucbir/gucbirnest/internal/production/repository"
)

// ErrNotFound is re-exported so handlers depend on one package for the
// error taxonomy.
var ErrNotFound = repository.ErrNotFound

// ErrExternalEmpty marks a definitive empty answer from the ERP, as opposed
// to the ERP being unreachable.
var ErrExternalEmpty = errors.New("external system returned no data")

// ValidationError rejects malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidStateError rejects a legal request made against the wrong current
// state, e.g. pausing a unit that is not in progress.
type InvalidStateError struct {
	Current string
	Reason  string
}

func (e *InvalidStateError) Error() string {
	if e.Current == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (current status: %s)", e.Reason, e.Current)
}

// ConfigError marks a malformed configuration document, e.g. a serial
// counter with an empty prefix.
type ConfigError struct {
	Name   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("setting %s: %s", e.Name, e.Reason)
}

// ExternalUnavailableError wraps ERP transport failures. Retryable.
type ExternalUnavailableError struct {
	Err error
}

func (e *ExternalUnavailableError) Error() string {
	return fmt.Sprintf("external system unavailable: %v", e.Err)
}

func (e *ExternalUnavailableError) Unwrap() error { return e.Err }
