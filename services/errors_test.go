package services

import (
	"errors"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrKind
	}{
		{"validation", Validationf("bad input"), KindValidation},
		{"authorization", Authorizationf("nope"), KindAuthorization},
		{"not found", NotFoundf("missing"), KindNotFound},
		{"conflict", Conflictf("taken"), KindConflict},
		{"consistency", Consistencyf("broken invariant"), KindConsistency},
		{"internal wraps cause", Internal(errors.New("db down")), KindInternal},
		{"foreign error treated as internal", errors.New("plain"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validationf("x"), http.StatusBadRequest},
		{Authorizationf("x"), http.StatusForbidden},
		{NotFoundf("x"), http.StatusNotFound},
		{Conflictf("x"), http.StatusConflict},
		{Consistencyf("x"), http.StatusInternalServerError},
		{Internal(errors.New("x")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestInternalUnwrap(t *testing.T) {
	cause := errors.New("db down")
	err := Internal(cause)
	if !errors.Is(err, cause) {
		t.Error("Internal should wrap the cause")
	}
}
