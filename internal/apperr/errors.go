// Package apperr holds the sentinel and typed errors shared across packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyRolledUp  = errors.New("already rolled up")
	ErrNoCandidates     = errors.New("no topic candidates")
	ErrSelectionExpired = errors.New("selection expired")
	ErrSelectionClosed  = errors.New("selection already made")
	ErrInvalidChoice    = errors.New("invalid choice")
	ErrInvalidInput     = errors.New("invalid input")
	ErrAlreadyExists    = errors.New("already exists")
)

// StorageError is a fatal file-system failure. It is never retried.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorage reports whether err carries a *StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
