package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgauth "github.com/angelmondragon/walletcore-backend/pkg/auth"
	"github.com/angelmondragon/walletcore-backend/pkg/config"
)

var authCfg = config.AuthConfig{Secret: "test-secret", Issuer: "walletcore"}

func authHandler(t *testing.T, captured *string) http.Handler {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return Auth(authCfg, nil)(next)
}

func TestAuthAcceptsValidToken(t *testing.T) {
	token, err := pkgauth.MintServiceToken(authCfg, time.Now(), "checkout", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	var caller string
	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authHandler(t, &caller).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if caller != "checkout" {
		t.Fatalf("caller not seeded into context, got %q", caller)
	}
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	var caller string
	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	rec := httptest.NewRecorder()
	authHandler(t, &caller).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRejectsForgedToken(t *testing.T) {
	forged, err := pkgauth.MintServiceToken(config.AuthConfig{Secret: "wrong", Issuer: "walletcore"}, time.Now(), "checkout", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	var caller string
	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	authHandler(t, &caller).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	token, err := pkgauth.MintServiceToken(authCfg, time.Now().Add(-2*time.Hour), "checkout", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	var caller string
	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authHandler(t, &caller).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
