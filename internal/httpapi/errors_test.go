package httpapi

import (
	"fmt"
	"testing"

	"rolegate.org/internal/auth"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err      error
		fallback string
		want     string
	}{
		{fmt.Errorf("%w: role does not exist", auth.ErrInvalidInput), "wrong data passed", "role does not exist"},
		{fmt.Errorf("%w: user already exists with email", auth.ErrConflict), "resource conflict", "user already exists with email"},
		{auth.ErrNotFound, "resource not found", "resource not found"},
		{fmt.Errorf("pq: connection refused"), "something went wrong", "something went wrong"},
	}
	for _, tt := range tests {
		if got := errorMessage(tt.err, tt.fallback); got != tt.want {
			t.Fatalf("errorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCodeForStatus(t *testing.T) {
	tests := map[int]string{
		400: codeBadRequest,
		401: codeUnauthorized,
		403: codeForbidden,
		404: codeNotFound,
		408: codeRequestTimeout,
		409: codeConflict,
		429: codeTooMany,
		500: codeInternal,
		502: codeInternal,
	}
	for status, want := range tests {
		if got := codeForStatus(status); got != want {
			t.Fatalf("codeForStatus(%d) = %q, want %q", status, got, want)
		}
	}
}
