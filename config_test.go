package auth

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Session.Lifetime != 24*time.Hour {
		t.Fatalf("session lifetime: %v", cfg.Session.Lifetime)
	}
	if cfg.Remember.TTL != 90*24*time.Hour {
		t.Fatalf("remember ttl: %v", cfg.Remember.TTL)
	}
	if cfg.Remember.CookieName != "persistent" {
		t.Fatalf("cookie name: %q", cfg.Remember.CookieName)
	}
	if len(cfg.Login.UsernameFields) != 2 {
		t.Fatalf("username fields: %v", cfg.Login.UsernameFields)
	}
	if cfg.Links.ForgotWindow != 30*time.Minute {
		t.Fatalf("forgot window: %v", cfg.Links.ForgotWindow)
	}
	if cfg.Links.VerifyWindow != 24*time.Hour {
		t.Fatalf("verify window: %v", cfg.Links.VerifyWindow)
	}
	if cfg.RateLimit.MaxAttempts != 5 || cfg.RateLimit.Window != 15*time.Minute {
		t.Fatalf("rate limit defaults: %+v", cfg.RateLimit)
	}
}

func TestValidateKeyRequirements(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing keys must fail validation")
	}

	cfg.Remember.SigningKey = key[:16]
	cfg.Remember.TokenKey = key
	if err := cfg.Validate(); err == nil {
		t.Fatal("a short signing key must fail validation")
	}

	cfg.Remember.SigningKey = key
	cfg.Remember.TokenKey = key
	if err := cfg.Validate(); err == nil {
		t.Fatal("identical keys must fail validation")
	}

	cfg.Remember.TokenKey = []byte("fedcba9876543210fedcba9876543210")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("distinct full-length keys must validate: %v", err)
	}
}
