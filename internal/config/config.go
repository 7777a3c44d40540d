// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as listener addresses, the browse-ledger dedup window, the
// administrator identity, pagination limits, rate limiting, logging, and
// observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the ops
// HTTP surface.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-view-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// LedgerConfig defines the behavior of the browse ledger.
type LedgerConfig struct {
	// AdminUserID is the identity granted unrestricted read/filter access.
	// Injected into the service; never a package-level constant.
	AdminUserID string
	// DedupWindow is the rolling interval during which repeated view
	// signals for the same target and viewer are suppressed.
	DedupWindow time.Duration
	// ClockSkewMax bounds how far a client-supplied created_at may drift
	// from server time before the report is rejected.
	ClockSkewMax time.Duration
	// DefaultPageSize / MaxPageSize govern read pagination.
	DefaultPageSize int
	MaxPageSize     int
}

// Config holds all configuration values for the application.
type Config struct {
	// Command server (TCP)
	CommandAddr     string        // host:port the command listener binds to
	CommandSecret   string        // HS256 secret for envelope signatures; empty disables verification
	ReadIdleTimeout time.Duration // per-connection read deadline between frames
	MaxFrameBytes   int           // upper bound for a single command frame
	ShutdownTimeout time.Duration // drain budget on SIGTERM

	// Ops HTTP surface
	HTTPPort          string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath string // SQLite path
	Ledger LedgerConfig

	// Rate limiting (commands per identity)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection (ops surface)
	CORS CORSConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Command server
		CommandAddr:     getenv("COMMAND_ADDR", ":9000"),
		CommandSecret:   getenv("COMMAND_SECRET", ""),
		ReadIdleTimeout: getdur("COMMAND_IDLE_TIMEOUT", 5*time.Minute),
		MaxFrameBytes:   getint("MAX_FRAME_BYTES", 256<<10),
		ShutdownTimeout: getdur("SHUTDOWN_TIMEOUT", 10*time.Second),

		// Ops HTTP surface
		HTTPPort:          getenv("HTTP_PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath: getenv("DB_PATH", "app.db"),
		Ledger: LedgerConfig{
			AdminUserID:     getenv("ADMIN_USER_ID", ""),
			DedupWindow:     getdur("DEDUP_WINDOW", 24*time.Hour),
			ClockSkewMax:    getdur("CLOCK_SKEW_MAX", 5*time.Minute),
			DefaultPageSize: getint("DEFAULT_PAGE_SIZE", 20),
			MaxPageSize:     getint("MAX_PAGE_SIZE", 100),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 50.0),
		RateBurst: getint("RATE_BURST", 100),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-view-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.CommandAddr) == "" {
		return cfg, errors.New("COMMAND_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.HTTPPort) == "" {
		return cfg, errors.New("HTTP_PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.ReadIdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("COMMAND_IDLE_TIMEOUT and SHUTDOWN_TIMEOUT must be > 0")
	}
	if cfg.MaxFrameBytes <= 0 {
		return cfg, errors.New("MAX_FRAME_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Ledger.DedupWindow <= 0 {
		return cfg, errors.New("DEDUP_WINDOW must be > 0")
	}
	if cfg.Ledger.ClockSkewMax <= 0 {
		return cfg, errors.New("CLOCK_SKEW_MAX must be > 0")
	}
	if cfg.Ledger.DefaultPageSize < 1 {
		return cfg, errors.New("DEFAULT_PAGE_SIZE must be >= 1")
	}
	if cfg.Ledger.MaxPageSize < cfg.Ledger.DefaultPageSize {
		return cfg, errors.New("MAX_PAGE_SIZE must be >= DEFAULT_PAGE_SIZE")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
