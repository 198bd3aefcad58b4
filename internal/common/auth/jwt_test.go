package auth

import (
	"testing"
	"time"

	"github.com/crewdrive/crewdrive/internal/common/config"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	cfg := config.AuthConfig{
		Enabled:   true,
		JWTSecret: "test-secret",
		Issuer:    "crewdrive",
		Audience:  "crewdrive",
	}

	token, exp, err := GenerateAccessToken(cfg, "w-1", []string{"dispatcher"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	if exp.Before(time.Now()) {
		t.Fatalf("expected exp in future")
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.Subject != "w-1" {
		t.Fatalf("subject mismatch: %s", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "dispatcher" {
		t.Fatalf("roles mismatch: %#v", claims.Roles)
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "secret-a", Issuer: "crewdrive"}
	token, _, err := GenerateAccessToken(cfg, "w-1", nil, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := ParseAccessToken(config.AuthConfig{JWTSecret: "secret-b"}, token); err == nil {
		t.Fatalf("expected signature verification to fail")
	}
}

func TestParseAccessTokenRejectsWrongIssuer(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "secret", Issuer: "someone-else"}
	token, _, err := GenerateAccessToken(cfg, "w-1", nil, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := ParseAccessToken(config.AuthConfig{JWTSecret: "secret", Issuer: "crewdrive"}, token); err == nil {
		t.Fatalf("expected issuer check to fail")
	}
}
