package config

import (
	"strings"
	"testing"
)

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: "127.0.0.1:8080", LogLevel: "info"},
		Auth: AuthConfig{
			Identities: []IdentityConfig{{DID: "did:plc:abc123", Username: "alice", PasswordHash: "$argon2id$v=19$..."}},
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_ZeroConfig(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() zero-config unexpected error: %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("default HTTPAddr = %q, want 127.0.0.1:8080", cfg.Server.HTTPAddr)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "LogLevel") {
		t.Errorf("error = %q, want to contain 'LogLevel'", err.Error())
	}
}

func TestValidate_RateLimitRequiresPointsAndDuration(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.RateLimit.Enabled = true

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error when rate limiting is enabled with no points/duration")
	}
}

func TestValidate_RateLimitEnabledWithPointsAndDuration(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Points = 100
	cfg.RateLimit.Duration = "1m"

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_DuplicateIdentityDID(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Auth.Identities = append(cfg.Auth.Identities, IdentityConfig{
		DID: "did:plc:abc123", Username: "bob", PasswordHash: "hash",
	})

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for duplicate did, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate did") {
		t.Errorf("error = %q, want to contain 'duplicate did'", err.Error())
	}
}

func TestValidate_DuplicateIdentityUsername(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Auth.Identities = append(cfg.Auth.Identities, IdentityConfig{
		DID: "did:plc:other", Username: "alice", PasswordHash: "hash",
	})

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for duplicate username, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate username") {
		t.Errorf("error = %q, want to contain 'duplicate username'", err.Error())
	}
}

func TestValidate_InvalidTraceExporter(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Telemetry.TracingEnabled = true
	cfg.Telemetry.TraceExporter = "otlp"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for unsupported trace exporter, got nil")
	}
}

func TestValidate_EmptyIdentitiesIsValid(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Auth.Identities = nil

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with no identities unexpected error: %v", err)
	}
}
