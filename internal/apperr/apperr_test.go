package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKind(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("wrapped: %w", ErrBusinessLogic)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "not_found", err: ErrNotFound, want: "not_found"},
		{name: "not_found_ctor", err: NotFound("request %s", "r-1"), want: "not_found"},
		{name: "business", err: ErrBusinessLogic, want: "business_error"},
		{name: "business_wrapped", err: wrapped, want: "business_error"},
		{name: "already_executed", err: ErrAlreadyExecuted, want: "commitment_already_executed"},
		{name: "validation", err: Validation("amount negative"), want: "validation_error"},
		{name: "unknown", err: errors.New("boom"), want: "internal_error"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Kind(tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAlreadyExecutedIsBusinessError(t *testing.T) {
	t.Parallel()

	if !errors.Is(ErrAlreadyExecuted, ErrBusinessLogic) {
		t.Fatal("ErrAlreadyExecuted must specialize ErrBusinessLogic")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "not_found", err: ErrNotFound, want: http.StatusNotFound},
		{name: "business", err: BusinessLogic("wrong status"), want: http.StatusBadRequest},
		{name: "already_executed", err: fmt.Errorf("execute: %w", ErrAlreadyExecuted), want: http.StatusBadRequest},
		{name: "validation", err: ErrValidation, want: http.StatusBadRequest},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := HTTPStatus(tt.err); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
