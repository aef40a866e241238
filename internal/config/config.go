// Package config provides the configuration schema for xrpcd: a
// file-based (YAML, via viper) description of the listener, the
// rate-limit tiers, the demo identity store, and the telemetry
// exporters. Grounded on the teacher's OSSConfig shape (same nesting,
// same mapstructure/yaml tag pairing, same struct-tag validation via
// go-playground/validator), generalized from an MCP proxy's
// upstream/policy/audit config to an XRPC server's listener/rate-limit/
// identity/telemetry config.
package config

// Config is the top-level configuration for an xrpcd process.
type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Lexicons    LexiconsConfig    `yaml:"lexicons" mapstructure:"lexicons"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	Auth        AuthConfig        `yaml:"auth" mapstructure:"auth"`
	ServiceAuth ServiceAuthConfig `yaml:"service_auth" mapstructure:"service_auth"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" mapstructure:"telemetry"`

	// DevMode relaxes defaults for local development: it raises the
	// default log level to debug.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// LexiconsConfig points at the directory of lexicon JSON documents
// loaded into the registry at boot (load-only; the registry is
// immutable after construction, per spec.md §5).
type LexiconsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir" validate:"omitempty,dir"`
}

// ServiceAuthConfig carries the non-secret half of service-to-service
// JWT verification (spec.md §4.4): xrpcd's own DID, the default token
// TTL it mints with, and a reference used to look up the actual signing
// keypair. The keypair itself is an external collaborator (§1) — this
// config never carries key material.
type ServiceAuthConfig struct {
	OwnDID     string `yaml:"own_did" mapstructure:"own_did" validate:"omitempty"`
	TokenTTL   string `yaml:"token_ttl" mapstructure:"token_ttl" validate:"omitempty"`
	KeypairRef string `yaml:"keypair_ref" mapstructure:"keypair_ref" validate:"omitempty"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g. "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum slog level. Defaults to "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// BlobLimitBytes bounds request body sizes. Defaults to
	// 10MiB if zero.
	BlobLimitBytes int64 `yaml:"blob_limit_bytes" mapstructure:"blob_limit_bytes" validate:"omitempty,min=1"`

	// ShutdownTimeout bounds graceful shutdown (e.g. "10s"). Defaults to
	// "10s" if empty.
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty"`

	// CORSOrigins, when non-empty, enables go-chi/cors with these allowed
	// origins. Empty disables CORS entirely.
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// RateLimitConfig configures the dispatcher's global rate-limit tier
// (spec.md §4.5). Per-route limiters are declared in code at method
// registration time, not here.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Points is the bucket size; Duration is the refill window
	// (e.g. "1m"). Both required when Enabled.
	Points   int64  `yaml:"points" mapstructure:"points" validate:"required_if=Enabled true,omitempty,min=1"`
	Duration string `yaml:"duration" mapstructure:"duration" validate:"required_if=Enabled true"`

	// FailClosed rejects requests when the rate-limit store itself
	// errors, instead of failing open (spec.md §9).
	FailClosed bool `yaml:"fail_closed" mapstructure:"fail_closed"`

	// CleanupInterval and MaxTTL bound the in-memory store's janitor,
	// grounded on the teacher's rate_limit cleanup fields.
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty"`
	MaxTTL          string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty"`

	// BypassExpression is a CEL predicate (internal/domain/ratelimit,
	// internal/adapter/outbound/cel) evaluated per request; when it
	// returns true the request skips the global rate-limit tier
	// entirely (spec.md §4.5 "Bypass"). Empty disables bypass.
	BypassExpression string `yaml:"bypass_expression" mapstructure:"bypass_expression" validate:"omitempty"`
}

// AuthConfig configures the demo Basic-auth identity verifier
// (internal/domain/identity). Real deployments are expected to supply
// their own Verifier; this is what makes the repo runnable standalone.
type AuthConfig struct {
	Identities []IdentityConfig `yaml:"identities" mapstructure:"identities" validate:"omitempty,dive"`
}

// IdentityConfig is one demo account: a DID and an argon2id password
// hash, matching the shape internal/domain/identity.Verifier expects.
type IdentityConfig struct {
	DID          string `yaml:"did" mapstructure:"did" validate:"required"`
	Username     string `yaml:"username" mapstructure:"username" validate:"required"`
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash" validate:"required"`
}

// TelemetryConfig configures the Prometheus metrics endpoint and the
// OpenTelemetry trace/metric exporters.
type TelemetryConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled" mapstructure:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`

	TracingEnabled bool `yaml:"tracing_enabled" mapstructure:"tracing_enabled"`
	// TraceExporter selects the exporter: "stdout" is the only option
	// wired today (spec.md carries no OTLP endpoint config); anything
	// else is rejected at validation time.
	TraceExporter string `yaml:"trace_exporter" mapstructure:"trace_exporter" validate:"omitempty,oneof=stdout"`

	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// SetDefaults fills in zero-valued optional fields.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.BlobLimitBytes == 0 {
		c.Server.BlobLimitBytes = 10 << 20
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.CleanupInterval == "" {
			c.RateLimit.CleanupInterval = "1m"
		}
		if c.RateLimit.MaxTTL == "" {
			c.RateLimit.MaxTTL = "10m"
		}
	}
	if c.Telemetry.MetricsEnabled && c.Telemetry.MetricsAddr == "" {
		c.Telemetry.MetricsAddr = "127.0.0.1:9090"
	}
	if c.Telemetry.TracingEnabled && c.Telemetry.TraceExporter == "" {
		c.Telemetry.TraceExporter = "stdout"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "xrpcd"
	}
	if c.ServiceAuth.TokenTTL == "" {
		c.ServiceAuth.TokenTTL = "60s"
	}
}

// SetDevDefaults relaxes defaults for local development, applied after
// SetDefaults but before Validate (teacher's start.go ordering).
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Server.LogLevel == "info" {
		c.Server.LogLevel = "debug"
	}
}
