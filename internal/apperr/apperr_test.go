package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindMapping(t *testing.T) {
	tests := []struct {
		kind       Kind
		wantCode   string
		wantStatus int
	}{
		{KindBadRequest, "BAD_REQUEST", http.StatusBadRequest},
		{KindSchema, "BAD_REQUEST", http.StatusBadRequest},
		{KindTimeout, "BAD_REQUEST", http.StatusBadRequest},
		{KindUpstreamDatabase, "BAD_REQUEST", http.StatusBadRequest},
		{KindValidation, "VALIDATION_ERROR", http.StatusBadRequest},
		{KindUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized},
		{KindForbidden, "FORBIDDEN", http.StatusForbidden},
		{KindDenied, "FORBIDDEN", http.StatusForbidden},
		{KindNotFound, "NOT_FOUND", http.StatusNotFound},
		{KindConflict, "CONFLICT", http.StatusConflict},
		{KindTooManyRequests, "TOO_MANY_REQUESTS", http.StatusTooManyRequests},
		{KindCrypto, "INTERNAL_ERROR", http.StatusInternalServerError},
		{KindUpstreamObjectStore, "INTERNAL_ERROR", http.StatusInternalServerError},
		{KindInternal, "INTERNAL_ERROR", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			if got := tt.kind.Code(); got != tt.wantCode {
				t.Errorf("Code() = %q, want %q", got, tt.wantCode)
			}
			if got := tt.kind.StatusCode(); got != tt.wantStatus {
				t.Errorf("StatusCode() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestFromClassifiesUnknownAsInternal(t *testing.T) {
	ae := From(fmt.Errorf("some db failure"))
	if ae.Kind != KindInternal {
		t.Errorf("Kind = %v, want KindInternal", ae.Kind)
	}
	if ae.Message != "internal server error" {
		t.Errorf("Message = %q", ae.Message)
	}
}

func TestFromUnwrapsWrapped(t *testing.T) {
	inner := New(KindNotFound, "project not found")
	wrapped := fmt.Errorf("handling request: %w", inner)

	ae := From(wrapped)
	if ae.Kind != KindNotFound {
		t.Errorf("Kind = %v, want KindNotFound", ae.Kind)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("pq: relation does not exist")
	ae := Wrap(KindUpstreamDatabase, "database error", cause)

	if !errors.Is(ae, cause) {
		t.Error("wrapped cause lost")
	}
	if ae.Message != "database error" {
		t.Errorf("Message = %q", ae.Message)
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindDenied, "nope"))
	if !Is(err, KindDenied) {
		t.Error("Is failed to match wrapped kind")
	}
	if Is(err, KindNotFound) {
		t.Error("Is matched the wrong kind")
	}
	if Is(errors.New("plain"), KindDenied) {
		t.Error("Is matched a plain error")
	}
}
