package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation indicates malformed or missing input, rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates the operation is illegal for the current status.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrQuantityExceeded indicates a return larger than the remaining balance.
	ErrQuantityExceeded = errors.New("quantity exceeds remaining balance")
	// ErrPermission indicates a missing or non-admin identity on an admin operation.
	ErrPermission = errors.New("permission denied")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrStorage indicates a transaction or commit failure.
	ErrStorage = errors.New("storage failure")
	// ErrUnauthenticated indicates the request carries no identity.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Is lets errors.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// QuantityExceededError reports the first offending return line.
type QuantityExceededError struct {
	ProductID int64
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *QuantityExceededError) Error() string {
	return fmt.Sprintf("product %d: requested %s, remaining %s", e.ProductID, e.Requested, e.Remaining)
}

// Is lets errors.Is match ErrQuantityExceeded.
func (e *QuantityExceededError) Is(target error) bool { return target == ErrQuantityExceeded }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Is lets errors.Is match ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Missing builds a NotFoundError.
func Missing(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// StorageError wraps a database failure. The caller must retry the whole operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError unless it already carries a domain kind.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsDomainError reports whether err already maps to one of the domain kinds.
func IsDomainError(err error) bool {
	for _, kind := range []error{ErrValidation, ErrInvalidState, ErrQuantityExceeded, ErrPermission, ErrNotFound, ErrStorage, ErrUnauthenticated, ErrIdempotencyConflict} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsServerError reports whether err should be logged as a server-side failure.
func IsServerError(err error) bool {
	return err != nil && (!IsDomainError(err) || errors.Is(err, ErrStorage))
}
