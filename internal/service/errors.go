package service

import (
	"errors"
	"fmt"

	"autolot/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	// Unknown usernames and wrong passwords both map to it.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotFound is returned when an operation references a missing record.
	ErrNotFound = repository.ErrNotFound
)

// ValidationError reports a user-correctable problem with submitted input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}
