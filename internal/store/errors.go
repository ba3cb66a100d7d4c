package store

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage = errors.New("message has no body and no attachment")
	ErrNoActiveRoom = errors.New("no active room")
)

// ValidationError rejects an operation before any network call is made.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
