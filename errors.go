package main

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks a missing or malformed input: empty title/text,
	// over-long title, bad entry id, missing login field.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an entry id that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks a write attempted without a valid session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStoreFailure marks the database rejecting a statement or commit for
	// any reason other than the above.
	ErrStoreFailure = errors.New("store failure")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}

// statusFor maps an error kind to the HTTP status the boundary renders.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
