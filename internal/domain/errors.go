package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates a caller supplied a value the store refuses to accept.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrLoadFailed indicates a catalog or identity fetch did not complete.
	ErrLoadFailed = errors.New("load failed")
)

// LoadError records which collaborator failed and why. It matches ErrLoadFailed.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *LoadError) Is(target error) bool {
	return target == ErrLoadFailed
}

// InvalidArgument wraps ErrInvalidArgument with a message describing the rejected input.
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
