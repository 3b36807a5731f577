package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func lookupIn(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookupIn(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "3000" || cfg.Addr() != ":3000" || cfg.APIBasePath != "/api/v1" || cfg.GinMode != "release" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.DBDriver != DriverSQLite || cfg.DBPath != "relay.db" {
		t.Fatalf("storage defaults: driver=%q path=%q", cfg.DBDriver, cfg.DBPath)
	}
	if cfg.Audit.Enabled || cfg.Audit.Key != "blockchain" || cfg.Audit.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("audit defaults: %+v", cfg.Audit)
	}
	want := GatewayConfig{
		Path:            "/ws",
		MaxMessageBytes: 64 << 10,
		SendBuffer:      64,
		WriteWait:       10 * time.Second,
		PongWait:        time.Minute,
		EventRPS:        20,
		EventBurst:      40,
	}
	if cfg.Gateway != want {
		t.Fatalf("gateway defaults: %+v", cfg.Gateway)
	}
	if cfg.CORS.AllowedOrigins != nil || cfg.Security.HSTSMaxAge != 180*24*time.Hour || cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("web defaults: %+v", cfg)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(lookupIn(map[string]string{
		"PORT":                ":8088",
		"READ_TIMEOUT":        "2s",
		"READ_HEADER_TIMEOUT": "1s",
		"WRITE_TIMEOUT":       "3s",
		"IDLE_TIMEOUT":        "4s",
		"SHUTDOWN_TIMEOUT":    "5s",
		"MAX_HEADER_BYTES":    "8192",
		"GIN_MODE":            "weird",

		"LOG_LEVEL":       "WARNING",
		"LOG_PRETTY":      "yes",
		"SWAGGER_ENABLED": "on",
		"API_BASE_PATH":   "api/v2/",

		"DB_DRIVER":    "PostgreSQL",
		"DATABASE_URL": "postgres://u:p@db:5432/chat?sslmode=disable",

		"AUDIT_ENABLED": "true",
		"REDIS_URL":     "redis://cache:6379/2",
		"AUDIT_KEY":     "ledger",

		"WS_PATH":              "socket/",
		"WS_MAX_MESSAGE_BYTES": "1024",
		"WS_SEND_BUFFER":       "8",
		"WS_WRITE_WAIT":        "2s",
		"WS_PONG_WAIT":         "30s",
		"WS_EVENT_RPS":         "3.5",
		"WS_EVENT_BURST":       "7",

		"RATE_RPS":   "x",
		"RATE_BURST": "nope",

		"CORS_ALLOWED_ORIGINS": " https://a.com , , http://b ",
		"ENABLE_HSTS":          "TRUE",
		"HSTS_MAX_AGE":         "24h",
		"IDEMPOTENCY_TTL":      "48h",

		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "off",
		"OTEL_SERVICE_NAME":           "svc",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	if cfg.Addr() != ":8088" || cfg.ReadTimeout != 2*time.Second || cfg.ReadHeaderTimeout != time.Second ||
		cfg.WriteTimeout != 3*time.Second || cfg.IdleTimeout != 4*time.Second ||
		cfg.ShutdownTimeout != 5*time.Second || cfg.MaxHeaderBytes != 8192 || cfg.GinMode != "release" {
		t.Fatalf("server: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging: level=%q pretty=%v swagger=%v base=%q", cfg.LogLevel, cfg.LogPretty, cfg.SwaggerEnabled, cfg.APIBasePath)
	}
	if cfg.DBDriver != DriverPostgres || !strings.HasPrefix(cfg.DatabaseURL, "postgres://") {
		t.Fatalf("storage: driver=%q url=%q", cfg.DBDriver, cfg.DatabaseURL)
	}
	if cfg.Audit != (AuditConfig{Enabled: true, RedisURL: "redis://cache:6379/2", Key: "ledger"}) {
		t.Fatalf("audit: %+v", cfg.Audit)
	}
	if cfg.Gateway.Path != "/socket" || cfg.Gateway.MaxMessageBytes != 1024 || cfg.Gateway.SendBuffer != 8 ||
		cfg.Gateway.EventRPS != 3.5 || cfg.Gateway.EventBurst != 7 || cfg.Gateway.PongWait != 30*time.Second {
		t.Fatalf("gateway: %+v", cfg.Gateway)
	}
	// unparsable values fall back to defaults
	if cfg.RateRPS != 5 || cfg.RateBurst != 10 {
		t.Fatalf("rate: rps=%v burst=%d", cfg.RateRPS, cfg.RateBurst)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour || cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("security: %+v ttl=%v", cfg.Security, cfg.IdempotencyTTL)
	}
	if cfg.OTEL != (OTELConfig{Enabled: true, Endpoint: "otel:4317", ServiceName: "svc", SampleRatio: 0.75}) {
		t.Fatalf("otel: %+v", cfg.OTEL)
	}
}

func TestFromEnv_DriverAliases(t *testing.T) {
	for in, want := range map[string]string{"sqlite3": DriverSQLite, "pg": DriverPostgres, "postgres": DriverPostgres} {
		cfg, err := FromEnv(lookupIn(map[string]string{"DB_DRIVER": in, "DATABASE_URL": "postgres://x"}))
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if cfg.DBDriver != want {
			t.Fatalf("DB_DRIVER=%s -> %q; want %q", in, cfg.DBDriver, want)
		}
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, "SHUTDOWN_TIMEOUT"},
		{map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{map[string]string{"DB_DRIVER": "oracle"}, "DB_DRIVER"},
		{map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{map[string]string{"WS_MAX_MESSAGE_BYTES": "0"}, "WS_MAX_MESSAGE_BYTES"},
		{map[string]string{"WS_SEND_BUFFER": "0"}, "WS_SEND_BUFFER"},
		{map[string]string{"WS_PONG_WAIT": "0s"}, "WS_PONG_WAIT"},
		{map[string]string{"WS_EVENT_RPS": "-2"}, "WS_EVENT_RPS"},
		{map[string]string{"WS_EVENT_BURST": "0"}, "WS_EVENT_BURST"},
		{map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		_, err := FromEnv(lookupIn(tc.env))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%v: err = %v; want mention of %s", tc.env, err, tc.want)
		}
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg, err := FromEnv(lookupIn(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	cfg.Port = " "
	cfg.DBPath = ""
	cfg.Audit = AuditConfig{Enabled: true}
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"PORT", "DB_PATH", "REDIS_URL", "AUDIT_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %s in %v", want, err)
		}
	}
}

func TestMustLoad(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if recover() == nil {
			t.Fatal("MustLoad should panic on invalid config")
		}
	}()
	MustLoad()
}

func TestEnvReader(t *testing.T) {
	e := env{lookup: lookupIn(map[string]string{
		"BLANK": "   ",
		"N":     "42",
		"F":     "0.5",
		"D":     "90s",
		"B":     "No",
		"BAD":   "?",
	})}
	if e.str("BLANK", "def") != "def" || e.str("N", "") != "42" {
		t.Fatal("str")
	}
	if e.int("N", 1) != 42 || e.int("BAD", 1) != 1 {
		t.Fatal("int")
	}
	if e.float("F", 1) != 0.5 || e.float("BAD", 1) != 1 {
		t.Fatal("float")
	}
	if e.dur("D", 0) != 90*time.Second || e.dur("BAD", time.Second) != time.Second {
		t.Fatal("dur")
	}
	if e.bool("B", true) || !e.bool("BAD", true) || !e.bool("MISSING", true) {
		t.Fatal("bool")
	}
	if e.list("MISSING") != nil {
		t.Fatal("list of unset key should be nil")
	}
}

func TestNormalizePath(t *testing.T) {
	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/", "a/b": "/a/b"} {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q; want %q", in, got, want)
		}
	}
}
