// Package vecerr defines the error taxonomy shared by every vec0 layer.
//
// Errors are classified into three kinds:
//   - Validation: malformed declarations, wrong vector dimension or type,
//     unknown predicate columns. Raised before any state is mutated.
//   - Resource: a memory reservation failed during query or mutation setup.
//   - Consistency: stored chunk data disagrees with the declared schema.
//
// Use errors.Is against ErrValidation, ErrResource or ErrConsistency to test
// the kind, or against the specific sentinels for finer checks.
package vecerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind uint8

const (
	KindValidation Kind = iota + 1
	KindResource
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindResource:
		return "resource"
	case KindConsistency:
		return "consistency"
	}
	return "unknown"
}

// Kind sentinels.
var (
	ErrValidation  = errors.New("vec0: validation error")
	ErrResource    = errors.New("vec0: resource error")
	ErrConsistency = errors.New("vec0: consistency error")
)

// Specific sentinels.
var (
	ErrTypeMismatch    = errors.New("vector type mismatch")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrInvalidVector   = errors.New("invalid vector")
	ErrNullVector      = errors.New("vector value must not be NULL")
	ErrMissingK        = errors.New("k is required for a KNN query")
	ErrRowidExists     = errors.New("rowid already exists")
	ErrRowidNotFound   = errors.New("rowid not found")
	ErrBudgetExceeded  = errors.New("memory budget exceeded")
	ErrTableNotFound   = errors.New("table not found")
	ErrImmutableColumn = errors.New("column is immutable")
)

// Error is a classified error carrying the failed operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("vec0: %v", e.Err)
	}
	return fmt.Sprintf("vec0: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrResource:
		return e.Kind == KindResource
	case ErrConsistency:
		return e.Kind == KindConsistency
	}
	return false
}

// DimensionMismatchError reports a vector whose length disagrees with the
// declared column dimension.
type DimensionMismatchError struct {
	Column   string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
	}
	return fmt.Sprintf("dimension mismatch for column %q: expected %d, got %d", e.Column, e.Expected, e.Actual)
}

// Validation wraps err as a validation error for op.
func Validation(op string, err error) error {
	return wrap(KindValidation, op, err)
}

// Validationf formats a validation error for op.
func Validationf(op, format string, args ...any) error {
	return wrap(KindValidation, op, fmt.Errorf(format, args...))
}

// Resource wraps err as a resource error for op.
func Resource(op string, err error) error {
	return wrap(KindResource, op, err)
}

// Consistency wraps err as a consistency error for op.
func Consistency(op string, err error) error {
	return wrap(KindConsistency, op, err)
}

// Consistencyf formats a consistency error for op.
func Consistencyf(op, format string, args ...any) error {
	return wrap(KindConsistency, op, fmt.Errorf(format, args...))
}

// DimensionMismatch returns a validation error for a vector of the wrong length.
func DimensionMismatch(op, column string, expected, actual int) error {
	return wrap(KindValidation, op, &DimensionMismatchError{Column: column, Expected: expected, Actual: actual})
}

// KindOf returns the kind of err, or 0 when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == kind && op == "" {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
