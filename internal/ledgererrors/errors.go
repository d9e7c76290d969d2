// Package ledgererrors defines the error kinds surfaced by round accounting.
//
// Every error produced by the accounting core is one of three kinds:
//
//   - ValidationError: malformed input, rejected before any mutation.
//   - ConsistencyError: an invariant was violated. Fatal for the round, never retried.
//   - TransientStorageError: the storage boundary failed in a way that may succeed on retry.
//
// Errors are wrapped with github.com/pkg/errors so callers can use errors.As to
// recover the kind while keeping the stack of the failing call site.
package ledgererrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies the class of a ledger error.
type Kind int

const (
	// KindValidation marks malformed input.
	KindValidation Kind = iota + 1
	// KindConsistency marks an invariant violation.
	KindConsistency
	// KindTransientStorage marks a retryable storage failure.
	KindTransientStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindConsistency:
		return "ConsistencyError"
	case KindTransientStorage:
		return "TransientStorageError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// LedgerError carries a kind, a message and an optional inner cause.
type LedgerError struct {
	Kind    Kind
	message string
	inner   error
}

// Error satisfies the error interface and prints human-readable errors.
func (e LedgerError) Error() string {
	if e.inner != nil {
		return e.Kind.String() + ": " + e.message + ": " + e.inner.Error()
	}
	return e.Kind.String() + ": " + e.message
}

// Unwrap satisfies the errors.Unwrap interface
func (e LedgerError) Unwrap() error {
	return e.inner
}

// Cause satisfies the github.com/pkg/errors.Cause interface
func (e LedgerError) Cause() error {
	return e.inner
}

func newError(kind Kind, inner error, format string, args ...interface{}) error {
	return errors.WithStack(LedgerError{
		Kind:    kind,
		message: fmt.Sprintf(format, args...),
		inner:   inner,
	})
}

// Validationf creates a ValidationError.
func Validationf(format string, args ...interface{}) error {
	return newError(KindValidation, nil, format, args...)
}

// Consistencyf creates a ConsistencyError.
func Consistencyf(format string, args ...interface{}) error {
	return newError(KindConsistency, nil, format, args...)
}

// WrapConsistency creates a ConsistencyError around an underlying cause.
func WrapConsistency(inner error, format string, args ...interface{}) error {
	return newError(KindConsistency, inner, format, args...)
}

// WrapTransient creates a TransientStorageError around a storage failure.
func WrapTransient(inner error, format string, args ...interface{}) error {
	return newError(KindTransientStorage, inner, format, args...)
}

// KindOf returns the kind of the first LedgerError in err's chain, or 0.
func KindOf(err error) Kind {
	var le LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsConsistency reports whether err is a ConsistencyError.
func IsConsistency(err error) bool {
	return KindOf(err) == KindConsistency
}

// IsTransient reports whether err is a TransientStorageError.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransientStorage
}
