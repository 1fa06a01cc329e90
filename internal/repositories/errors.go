package repositories

import (
	"errors"
	"fmt"
)

// ErrSlotNotFound is wrapped by StoreError when a key is missing.
var ErrSlotNotFound = errors.New("slot not found")

// StoreError implements RepositoryError for backends without a richer error model.
type StoreError struct {
	Op          string
	Key         string
	Err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.notFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.conflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.unavailable }

// NewNotFoundError reports a missing key.
func NewNotFoundError(op, key string) *StoreError {
	return &StoreError{Op: op, Key: key, Err: ErrSlotNotFound, notFound: true}
}

// NewUnavailableError reports a transient backend failure.
func NewUnavailableError(op, key string, err error) *StoreError {
	return &StoreError{Op: op, Key: key, Err: err, unavailable: true}
}

// NewConflictError reports a write that lost a race.
func NewConflictError(op, key string, err error) *StoreError {
	return &StoreError{Op: op, Key: key, Err: err, conflict: true}
}

// IsNotFound reports whether err carries not-found semantics.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var repoErr RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return errors.Is(err, ErrSlotNotFound)
}

// IsUnavailable reports whether err is transient and worth retrying.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsUnavailable()
	}
	return false
}
