package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates a product cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict indicates a uniqueness rule was violated.
	ErrConflict = errors.New("conflict")
	// ErrInternal is returned in place of unexpected failures.
	ErrInternal = errors.New("internal error")
)

// IsDomainError reports whether err belongs to the caller-visible taxonomy.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrConflict)
}
