// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, database paths, webhook credentials, rate limiting, geofencing,
// assistant tuning, and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-dealer-chat")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// WhatsAppConfig holds the WhatsApp Cloud API credentials and webhook
// handshake secret. VerifyToken is compared against the hub.verify_token
// query parameter on the GET handshake.
type WhatsAppConfig struct {
	VerifyToken   string // WHATSAPP_VERIFY_TOKEN
	AccessToken   string // WHATSAPP_ACCESS_TOKEN
	PhoneNumberID string // WHATSAPP_PHONE_NUMBER_ID
	APIBaseURL    string // WHATSAPP_API_BASE_URL (overridable for tests)
}

// AssistantConfig tunes the LLM assistant stage.
type AssistantConfig struct {
	GeminiAPIKey        string        // GEMINI_API_KEY (empty -> static assistant)
	Model               string        // ASSISTANT_MODEL
	EmbeddingModel      string        // EMBEDDING_MODEL
	ConfidenceThreshold float64       // ASSISTANT_CONFIDENCE_THRESHOLD [0,1]
	Timeout             time.Duration // ASSISTANT_TIMEOUT
	MaxHistoryMessages  int           // MAX_HISTORY_MESSAGES (recent-history window)
	LeadScoreThreshold  int           // LEAD_SCORE_THRESHOLD (lead created at/above)
}

// PipelineConfig tunes the inbound dispatch pipeline guards.
type PipelineConfig struct {
	RatePerMinute    int           // SENDER_RATE_PER_MINUTE (per-sender)
	RateBurst        int           // SENDER_RATE_BURST
	AllowedCountries []string      // ALLOWED_COUNTRIES (ISO codes, empty = all)
	SessionTimeout   time.Duration // SESSION_TIMEOUT_MINUTES (inactivity expiry)
}

// VectorConfig tunes the vehicle embedding store.
type VectorConfig struct {
	IndexRebuildMinRows int // INDEX_REBUILD_MIN_ROWS (below this, exact scan only)
	DefaultTopK         int // SEARCH_DEFAULT_TOP_K
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool
	APIBasePath string

	// App
	DBPath string // SQLite path

	WhatsApp  WhatsAppConfig
	Assistant AssistantConfig
	Pipeline  PipelineConfig
	Vector    VectorConfig

	// REST edge rate limiting (distinct from the per-sender pipeline guard)
	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

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
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DBPath: getenv("DB_PATH", "app.db"),

		WhatsApp: WhatsAppConfig{
			VerifyToken:   getenv("WHATSAPP_VERIFY_TOKEN", ""),
			AccessToken:   getenv("WHATSAPP_ACCESS_TOKEN", ""),
			PhoneNumberID: getenv("WHATSAPP_PHONE_NUMBER_ID", ""),
			APIBaseURL:    getenv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v19.0"),
		},

		Assistant: AssistantConfig{
			GeminiAPIKey:        getenv("GEMINI_API_KEY", ""),
			Model:               getenv("ASSISTANT_MODEL", "gemini-1.5-flash"),
			EmbeddingModel:      getenv("EMBEDDING_MODEL", "text-embedding-004"),
			ConfidenceThreshold: getfloat("ASSISTANT_CONFIDENCE_THRESHOLD", 0.55),
			Timeout:             getdur("ASSISTANT_TIMEOUT", 20*time.Second),
			MaxHistoryMessages:  getint("MAX_HISTORY_MESSAGES", 10),
			LeadScoreThreshold:  getint("LEAD_SCORE_THRESHOLD", 3),
		},

		Pipeline: PipelineConfig{
			RatePerMinute:    getint("SENDER_RATE_PER_MINUTE", 20),
			RateBurst:        getint("SENDER_RATE_BURST", 5),
			AllowedCountries: splitCSV(getenv("ALLOWED_COUNTRIES", "")),
			SessionTimeout:   time.Duration(getint("SESSION_TIMEOUT_MINUTES", 30)) * time.Minute,
		},

		Vector: VectorConfig{
			IndexRebuildMinRows: getint("INDEX_REBUILD_MIN_ROWS", 256),
			DefaultTopK:         getint("SEARCH_DEFAULT_TOP_K", 5),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-dealer-chat"),
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
	for i, c := range cfg.Pipeline.AllowedCountries {
		cfg.Pipeline.AllowedCountries[i] = strings.ToUpper(c)
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Assistant.ConfidenceThreshold < 0 || cfg.Assistant.ConfidenceThreshold > 1 {
		return cfg, errors.New("ASSISTANT_CONFIDENCE_THRESHOLD must be between 0 and 1")
	}
	if cfg.Assistant.MaxHistoryMessages < 1 {
		return cfg, errors.New("MAX_HISTORY_MESSAGES must be >= 1")
	}
	if cfg.Assistant.LeadScoreThreshold < 1 {
		return cfg, errors.New("LEAD_SCORE_THRESHOLD must be >= 1")
	}
	if cfg.Pipeline.RatePerMinute < 1 {
		return cfg, errors.New("SENDER_RATE_PER_MINUTE must be >= 1")
	}
	if cfg.Pipeline.RateBurst < 1 {
		return cfg, errors.New("SENDER_RATE_BURST must be >= 1")
	}
	if cfg.Pipeline.SessionTimeout <= 0 {
		return cfg, errors.New("SESSION_TIMEOUT_MINUTES must be > 0")
	}
	if cfg.Vector.IndexRebuildMinRows < 0 {
		return cfg, errors.New("INDEX_REBUILD_MIN_ROWS must be >= 0")
	}
	if cfg.Vector.DefaultTopK < 1 {
		return cfg, errors.New("SEARCH_DEFAULT_TOP_K must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
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

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
