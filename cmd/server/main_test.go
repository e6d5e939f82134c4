package main

import (
	"testing"

	"marketbaza/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Server{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Server{AuthSecret: "0123456789abcdef0123456789abcdef", AppEnv: "development"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigTightensProduction(t *testing.T) {
	base := config.Server{
		AppEnv:        "production",
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		AllowedOrigin: "*",
		DatabaseURL:   "postgres://localhost/marketbaza",
	}
	if err := validateSecurityConfig(base); err == nil {
		t.Fatalf("expected wildcard origin to be rejected in production")
	}

	base.AllowedOrigin = "https://depot.example"
	base.DatabaseURL = ""
	if err := validateSecurityConfig(base); err == nil {
		t.Fatalf("expected in-memory store to be rejected in production")
	}

	base.DatabaseURL = "postgres://localhost/marketbaza"
	if err := validateSecurityConfig(base); err != nil {
		t.Fatalf("expected production config to pass, got %v", err)
	}
}
