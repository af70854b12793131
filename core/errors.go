package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("document was modified concurrently")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return fmt.Sprintf("%s: %s", err.Fields[0].Field, err.Fields[0].Error)
		}
		return ""
	}
	return err.Err.Error()
}

// StoreError reports a failed store operation.
// A fatal StoreError cannot be fixed by retrying (bad credentials, corrupt data, misconfiguration).
type StoreError struct {
	Op    string
	Fatal bool
	Err   error
}

func NewStoreError(op string, err error, fatal bool) error {
	return &StoreError{Op: op, Fatal: fatal, Err: err}
}

func (err *StoreError) Error() string {
	kind := "unavailable"
	if err.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("store %s (%s): %v", err.Op, kind, err.Err)
}

func (err *StoreError) Unwrap() error { return err.Err }

// IsStoreUnavailable reports whether err is a retryable store failure.
func IsStoreUnavailable(err error) bool {
	var sErr *StoreError
	return errors.As(err, &sErr) && !sErr.Fatal
}

// IsStoreFatal reports whether err is a store failure that retrying will not fix.
func IsStoreFatal(err error) bool {
	var sErr *StoreError
	return errors.As(err, &sErr) && sErr.Fatal
}
