package models

import "fmt"

// StoreError is a sentinel error returned by the upgrade store
type StoreError struct {
	Message string
}

func (e StoreError) Error() string {
	return e.Message
}

var (
	ErrNoActiveAccount   = StoreError{"no active account"}
	ErrAccountNotFound   = StoreError{"account not found"}
	ErrInvalidTransition = StoreError{"invalid upgrade state transition"}
	ErrCancelTerminal    = StoreError{"cannot cancel a finished upgrade"}
	ErrPersistence       = StoreError{"persistence failure"}
)

// PersistenceError wraps a database failure. The write it belongs to was
// rolled back, so the previously committed state is still authoritative.
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError wraps err, returning nil for a nil err
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence.Message, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is reports ErrPersistence as a match so callers can test the category
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
