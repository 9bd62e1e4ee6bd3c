package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Port:       "8080",
		Env:        "development",
		LogLevel:   "info",
		JWTSecret:  strings.Repeat("s", 32),
		SessionTTL: 24,
	}
}

func TestValidateOK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateMissingSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing AUTH_JWT_SECRET")
	}
}

func TestValidateShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = "short"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for short AUTH_JWT_SECRET")
	}
}

func TestValidateProductionRequiresDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "production"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error: production without DATABASE_URL")
	}
	cfg.DatabaseURL = "postgres://localhost/agendanf"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("AGENDANF_TEST_STR", "value")
	t.Setenv("AGENDANF_TEST_INT", "42")

	if got := getEnv("AGENDANF_TEST_STR", "fallback"); got != "value" {
		t.Errorf("getEnv = %q", got)
	}
	if got := getEnv("AGENDANF_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("getEnv fallback = %q", got)
	}
	if got := getEnvInt("AGENDANF_TEST_INT", 7); got != 42 {
		t.Errorf("getEnvInt = %d", got)
	}
	if got := getEnvInt("AGENDANF_TEST_MISSING", 7); got != 7 {
		t.Errorf("getEnvInt fallback = %d", got)
	}
}
