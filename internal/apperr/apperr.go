// Package apperr defines the error taxonomy the lifecycle engine raises and
// the HTTP boundary translates. Sentinel kinds are matched with errors.Is, so
// callers may wrap them freely.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound marks a missing request or commitment.
	ErrNotFound = errors.New("not found")
	// ErrBusinessLogic marks a lifecycle precondition violation.
	ErrBusinessLogic = errors.New("business rule violated")
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
)

// ErrAlreadyExecuted is the idempotency guard on execute: a second execute is
// a reported error, never a silent success. It is a specialization of
// ErrBusinessLogic, so errors.Is matches both.
var ErrAlreadyExecuted = fmt.Errorf("commitment already executed: %w", ErrBusinessLogic)

// NotFound wraps ErrNotFound with a message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// BusinessLogic wraps ErrBusinessLogic with a message.
func BusinessLogic(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrBusinessLogic)...)
}

// Validation wraps ErrValidation with a message.
func Validation(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// Kind returns the wire code for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrAlreadyExecuted):
		return "commitment_already_executed"

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrBusinessLogic):
		return "business_error"

	case errors.Is(err, ErrValidation):
		return "validation_error"

	default:
		return "internal_error"
	}
}

// HTTPStatus maps err to the transport status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrAlreadyExecuted),
		errors.Is(err, ErrBusinessLogic),
		errors.Is(err, ErrValidation):
		return http.StatusBadRequest

	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
