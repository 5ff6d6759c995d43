package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database defaults: %s %s", cfg.DatabaseDriver, cfg.DatabasePath)
	}
	if cfg.TokenTTL != 720*time.Minute {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
	if cfg.StorageBackend != "local" || cfg.ExportLayout != "report" {
		t.Fatalf("unexpected storage/export defaults: %s %s", cfg.StorageBackend, cfg.ExportLayout)
	}
}

func TestLoadValidationFailures(t *testing.T) {
	testCases := []struct {
		name      string
		overrides map[string]any
		wantError string
	}{
		{
			name:      "missing-secret",
			overrides: map[string]any{},
			wantError: "auth.signing_secret",
		},
		{
			name:      "unknown-driver",
			overrides: map[string]any{"auth.signing_secret": "s", "database.driver": "oracle"},
			wantError: "database.driver",
		},
		{
			name:      "postgres-without-dsn",
			overrides: map[string]any{"auth.signing_secret": "s", "database.driver": "postgres"},
			wantError: "database.dsn",
		},
		{
			name:      "s3-without-bucket",
			overrides: map[string]any{"auth.signing_secret": "s", "storage.backend": "s3"},
			wantError: "storage.s3.bucket",
		},
		{
			name:      "unknown-layout",
			overrides: map[string]any{"auth.signing_secret": "s", "export.layout": "xlsx"},
			wantError: "export.layout",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.overrides {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), testCase.wantError) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.wantError, err)
			}
		})
	}
}

func TestLoadStorageSkipsServerKeys(t *testing.T) {
	configViper := NewViper()

	cfg, err := LoadStorage(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
}
