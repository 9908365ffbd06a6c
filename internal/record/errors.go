package record

import (
	"errors"
	"fmt"
)

// CoerceError reports a failure converting one raw property into its typed
// column value. It carries structured fields so callers can classify the
// failure without string matching.
type CoerceError struct {
	// Code identifies the failure category.
	Code CoerceErrorCode

	// Entity and Column locate the failing property.
	Entity string
	Column string

	// Kind is the declared column kind being converted.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause (optional).
	Err error
}

// CoerceErrorCode categorizes coercion failures.
type CoerceErrorCode string

const (
	// CodeUnparseable indicates the raw value could not be parsed for the
	// declared kind.
	CodeUnparseable CoerceErrorCode = "UNPARSEABLE"

	// CodeAmbiguousRef indicates a reference probe matched more than one
	// record for a single target entity.
	CodeAmbiguousRef CoerceErrorCode = "AMBIGUOUS_REFERENCE"

	// CodeRefNotFound indicates a reference probe matched no record across
	// any eligible target entity.
	CodeRefNotFound CoerceErrorCode = "REFERENCE_NOT_FOUND"

	// CodeUnknownOption indicates an option label or value outside the
	// column's option catalogue.
	CodeUnknownOption CoerceErrorCode = "UNKNOWN_OPTION"

	// CodeKindUnsupported indicates a column kind with no registered
	// coercer. This is a deliberate fail-fast, never silent data loss.
	CodeKindUnsupported CoerceErrorCode = "KIND_UNSUPPORTED"

	// CodeMissingTimeZone indicates a local-time tagged value read back
	// without its time-zone sibling column. Not recoverable: the
	// conversion cannot be reversed safely.
	CodeMissingTimeZone CoerceErrorCode = "MISSING_TIME_ZONE"

	// CodeUnknownColumn indicates a property with no column descriptor on
	// the target entity.
	CodeUnknownColumn CoerceErrorCode = "UNKNOWN_COLUMN"
)

// Error implements the error interface.
func (e *CoerceError) Error() string {
	loc := e.Entity
	if e.Column != "" {
		loc = loc + "." + e.Column
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Code, loc, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, loc, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *CoerceError) Unwrap() error {
	return e.Err
}

// NewCoerceError creates a CoerceError with the given code and location.
func NewCoerceError(code CoerceErrorCode, entity, column string, kind Kind, format string, args ...any) *CoerceError {
	return &CoerceError{
		Code:    code,
		Entity:  entity,
		Column:  column,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsAmbiguousRef reports whether err is an ambiguous-reference coercion
// error. Uses errors.As to handle wrapped errors.
func IsAmbiguousRef(err error) bool {
	var ce *CoerceError
	return errors.As(err, &ce) && ce.Code == CodeAmbiguousRef
}

// IsRefNotFound reports whether err is a reference-not-found coercion error.
func IsRefNotFound(err error) bool {
	var ce *CoerceError
	return errors.As(err, &ce) && ce.Code == CodeRefNotFound
}

// IsUnknownColumn reports whether err is an unknown-column error.
func IsUnknownColumn(err error) bool {
	var ce *CoerceError
	return errors.As(err, &ce) && ce.Code == CodeUnknownColumn
}
