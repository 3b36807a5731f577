// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, audit, WebSocket gateway, rate limiting and observability
// settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported DB_DRIVER values.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-chat-relay")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuditConfig controls the optional audit-chain stage of the relay.
type AuditConfig struct {
	Enabled  bool   // AUDIT_ENABLED
	RedisURL string // REDIS_URL (redis://host:port/db)
	Key      string // AUDIT_KEY, the Redis list receiving records
}

// GatewayConfig tunes the WebSocket connection gateway.
type GatewayConfig struct {
	Path            string        // WS_PATH
	MaxMessageBytes int64         // WS_MAX_MESSAGE_BYTES, read limit per frame
	SendBuffer      int           // WS_SEND_BUFFER, queued outbound frames per connection
	WriteWait       time.Duration // WS_WRITE_WAIT
	PongWait        time.Duration // WS_PONG_WAIT; pings go out at 9/10 of it
	EventRPS        float64       // WS_EVENT_RPS, inbound events per second per connection
	EventBurst      int           // WS_EVENT_BURST
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration // grace period for in-flight work
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // PostgreSQL DSN when DBDriver == postgres

	// Relay
	Audit   AuditConfig
	Gateway GatewayConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad is Load for callers that cannot continue without configuration.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the process environment. See FromEnv.
func Load() (Config, error) {
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, applying defaults for unset or
// unparsable values, normalizing aliases, and validating the result.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}
	cfg := Config{
		Port:              e.str("PORT", "3000"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   e.dur("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    e.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.bool("LOG_PRETTY", false),
		SwaggerEnabled: e.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizePath(e.str("API_BASE_PATH", "/api/v1")),

		DBDriver:    strings.ToLower(e.str("DB_DRIVER", DriverSQLite)),
		DBPath:      e.str("DB_PATH", "relay.db"),
		DatabaseURL: e.str("DATABASE_URL", ""),

		Audit: AuditConfig{
			Enabled:  e.bool("AUDIT_ENABLED", false),
			RedisURL: e.str("REDIS_URL", "redis://localhost:6379/0"),
			Key:      e.str("AUDIT_KEY", "blockchain"),
		},
		Gateway: GatewayConfig{
			Path:            normalizePath(e.str("WS_PATH", "/ws")),
			MaxMessageBytes: int64(e.int("WS_MAX_MESSAGE_BYTES", 64<<10)),
			SendBuffer:      e.int("WS_SEND_BUFFER", 64),
			WriteWait:       e.dur("WS_WRITE_WAIT", 10*time.Second),
			PongWait:        e.dur("WS_PONG_WAIT", 60*time.Second),
			EventRPS:        e.float("WS_EVENT_RPS", 20),
			EventBurst:      e.int("WS_EVENT_BURST", 40),
		},

		RateRPS:   e.float("RATE_RPS", 5),
		RateBurst: e.int("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: e.bool("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.bool("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "go-chat-relay"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}
	cfg.normalize()
	return cfg, cfg.Validate()
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	switch c.DBDriver {
	case "postgresql", "pg":
		c.DBDriver = DriverPostgres
	case "sqlite3":
		c.DBDriver = DriverSQLite
	}
}

// Validate reports every invalid setting, joined into one error.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error, fatal, panic", c.LogLevel))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"READ/READ_HEADER/WRITE/IDLE timeouts must be positive")
	check(c.ShutdownTimeout > 0, "SHUTDOWN_TIMEOUT must be positive")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be positive")

	switch c.DBDriver {
	case DriverSQLite:
		check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")
	case DriverPostgres:
		check(strings.TrimSpace(c.DatabaseURL) != "", "DATABASE_URL is required with DB_DRIVER=postgres")
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of sqlite, postgres", c.DBDriver))
	}
	if c.Audit.Enabled {
		check(strings.TrimSpace(c.Audit.RedisURL) != "", "REDIS_URL is required with AUDIT_ENABLED")
		check(strings.TrimSpace(c.Audit.Key) != "", "AUDIT_KEY must not be empty")
	}

	g := c.Gateway
	check(g.MaxMessageBytes > 0, "WS_MAX_MESSAGE_BYTES must be positive")
	check(g.SendBuffer >= 1, "WS_SEND_BUFFER must be at least 1")
	check(g.WriteWait > 0 && g.PongWait > 0, "WS_WRITE_WAIT and WS_PONG_WAIT must be positive")
	check(g.EventRPS >= 0, "WS_EVENT_RPS must not be negative")
	check(g.EventBurst >= 1, "WS_EVENT_BURST must be at least 1")

	check(c.RateRPS >= 0, "RATE_RPS must not be negative")
	check(c.RateBurst >= 1, "RATE_BURST must be at least 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must not be negative")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be positive")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be within [0,1]")

	return errors.Join(errs...)
}

// Addr returns the listen address for http.Server.
func (c Config) Addr() string { return ":" + strings.TrimPrefix(c.Port, ":") }

// env reads typed values; empty and unparsable values yield the default.
type env struct {
	lookup func(string) (string, bool)
}

func (e env) raw(k string) (string, bool) {
	v, ok := e.lookup(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e env) str(k, def string) string {
	if v, ok := e.raw(k); ok {
		return v
	}
	return def
}

func (e env) int(k string, def int) int {
	if v, ok := e.raw(k); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (e env) float(k string, def float64) float64 {
	if v, ok := e.raw(k); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (e env) bool(k string, def bool) bool {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func (e env) dur(k string, def time.Duration) time.Duration {
	if v, ok := e.raw(k); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// list splits a comma-separated value, dropping blanks.
func (e env) list(k string) []string {
	v, ok := e.raw(k)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizePath adds a leading slash and drops trailing ones; blank is "/".
func normalizePath(p string) string {
	return "/" + strings.Trim(strings.TrimSpace(p), "/")
}
