package apperrors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Newf(CodeConflict, "party %s has pending songs", "p1")
	wrapped := fmt.Errorf("close party: %w", err)

	if !stdErrors.Is(wrapped, ErrConflict) {
		t.Fatalf("expected wrapped error to match ErrConflict")
	}
	if stdErrors.Is(wrapped, ErrNotFound) {
		t.Fatalf("conflict must not match not found")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("dial tcp: timeout")
	err := Wrap(CodeNetwork, cause, "list parties")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if code, ok := CodeOf(err); !ok || code != CodeNetwork {
		t.Fatalf("expected network code, got %q", code)
	}
	if !CanFallBackToCache(err) {
		t.Fatalf("network errors should allow cache fallback")
	}
}

func TestReauthRequired(t *testing.T) {
	err := New(CodeAuthentication, "session expired").ReauthRequired()
	if !IsReauthRequired(fmt.Errorf("get balance: %w", err)) {
		t.Fatalf("expected reauth flag to survive wrapping")
	}
	if IsReauthRequired(ErrAuthentication) {
		t.Fatalf("sentinel should not carry the reauth flag")
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Code
	}{
		{http.StatusBadRequest, CodeValidation},
		{http.StatusUnprocessableEntity, CodeValidation},
		{http.StatusUnauthorized, CodeAuthentication},
		{http.StatusPaymentRequired, CodeInsufficientFunds},
		{http.StatusForbidden, CodeAuthorization},
		{http.StatusNotFound, CodeNotFound},
		{http.StatusConflict, CodeConflict},
		{http.StatusBadGateway, CodeServer},
	}
	for _, tt := range tests {
		if got := FromStatus(tt.status); got != tt.want {
			t.Errorf("FromStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToServer(t *testing.T) {
	meta := MetadataFor("SOMETHING_ELSE")
	if meta != MetadataFor(CodeServer) {
		t.Fatalf("expected server metadata, got %+v", meta)
	}
}
