package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
)

var testCfg = config.AuthConfig{Secret: "test-secret", Issuer: "walletcore"}

func TestMintAndParseServiceToken(t *testing.T) {
	now := time.Now().UTC()
	signed, err := MintServiceToken(testCfg, now, "checkout", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := ParseServiceToken(testCfg, signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Service != "checkout" {
		t.Fatalf("expected service checkout, got %q", claims.Service)
	}
	if claims.Issuer != "walletcore" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected a jti")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	signed, err := MintServiceToken(testCfg, time.Now().Add(-2*time.Hour), "checkout", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseServiceToken(testCfg, signed); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	signed, err := MintServiceToken(testCfg, time.Now(), "checkout", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := config.AuthConfig{Secret: "other-secret", Issuer: "walletcore"}
	if _, err := ParseServiceToken(other, signed); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	other := config.AuthConfig{Secret: "test-secret", Issuer: "someone-else"}
	signed, err := MintServiceToken(other, time.Now(), "checkout", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseServiceToken(testCfg, signed); err == nil {
		t.Fatal("expected issuer error")
	}
}

func TestMintValidatesInputs(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.AuthConfig
		service string
		ttl     time.Duration
	}{
		{"missing secret", config.AuthConfig{Issuer: "walletcore"}, "checkout", time.Hour},
		{"missing issuer", config.AuthConfig{Secret: "x"}, "checkout", time.Hour},
		{"blank service", testCfg, "  ", time.Hour},
		{"zero ttl", testCfg, "checkout", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := MintServiceToken(tc.cfg, time.Now(), tc.service, tc.ttl); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := ParseServiceToken(testCfg, strings.Repeat("x", 32)); err == nil {
		t.Fatal("expected parse error")
	}
}
