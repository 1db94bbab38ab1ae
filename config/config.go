package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DEFAULT_UPSTREAM_BASE_URL = "http://127.0.0.1:8000"
	DEFAULT_ANALYZE_PATH      = "/analyze_tweets"
	DEFAULT_SESSION_COOKIE    = "tweetpulse_session"

	SESSION_BACKEND_MEMORY = "memory"
	SESSION_BACKEND_VALKEY = "valkey"
)

type Config struct {
	Env      string
	Server   ServerConfig
	Upstream UpstreamConfig
	Analysis AnalysisConfig
	Session  SessionConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr is the listen address for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type UpstreamConfig struct {
	BaseURL     string
	AnalyzePath string
	// Zero means no client-side timeout.
	Timeout        time.Duration
	MaxAttempts    int
	RequestsPerSec float64
	Burst          int
	HealthInterval time.Duration

	ClientID     string
	ClientSecret string
	TokenURL     string
}

// OAuthEnabled reports whether requests to the analyzer should carry a
// client-credentials token.
func (u UpstreamConfig) OAuthEnabled() bool {
	return u.ClientID != ""
}

type AnalysisConfig struct {
	FallbackEnabled bool
	FallbackDelay   time.Duration
	InputErrorTTL   time.Duration
	JitterDelay     time.Duration
}

type SessionConfig struct {
	Backend    string
	TTL        time.Duration
	CookieName string

	ValkeyAddress  string
	ValkeyPassword string
	ValkeyTLS      bool
}

type LogConfig struct {
	Level     slog.Level
	AddSource bool
}

// Load builds a Config from the process environment. Call LoadEnv first so
// values from config/envs are visible.
func Load() (*Config, error) {
	level, err := ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env: AppEnv(),
		Server: ServerConfig{
			Host:            getEnv("HTTP_HOST", "127.0.0.1"),
			Port:            getInt("HTTP_PORT", 3000),
			ReadTimeout:     getDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Upstream: UpstreamConfig{
			BaseURL:        getEnv("UPSTREAM_BASE_URL", DEFAULT_UPSTREAM_BASE_URL),
			AnalyzePath:    getEnv("UPSTREAM_ANALYZE_PATH", DEFAULT_ANALYZE_PATH),
			Timeout:        getDuration("UPSTREAM_TIMEOUT", 0),
			MaxAttempts:    getInt("UPSTREAM_MAX_ATTEMPTS", 1),
			RequestsPerSec: getFloat("UPSTREAM_RPS", 5),
			Burst:          getInt("UPSTREAM_BURST", 5),
			HealthInterval: getDuration("UPSTREAM_HEALTH_INTERVAL", 15*time.Second),
			ClientID:       os.Getenv("UPSTREAM_CLIENT_ID"),
			ClientSecret:   os.Getenv("UPSTREAM_CLIENT_SECRET"),
			TokenURL:       os.Getenv("UPSTREAM_TOKEN_URL"),
		},
		Analysis: AnalysisConfig{
			FallbackEnabled: getBool("FALLBACK_ENABLED", true),
			FallbackDelay:   getDuration("FALLBACK_DELAY", 1500*time.Millisecond),
			InputErrorTTL:   getDuration("INPUT_ERROR_TTL", 3*time.Second),
			JitterDelay:     getDuration("JITTER_DELAY", time.Second),
		},
		Session: SessionConfig{
			Backend:        strings.ToLower(getEnv("SESSION_BACKEND", SESSION_BACKEND_MEMORY)),
			TTL:            getDuration("SESSION_TTL", 24*time.Hour),
			CookieName:     getEnv("SESSION_COOKIE", DEFAULT_SESSION_COOKIE),
			ValkeyAddress:  os.Getenv("VALKEY_INIT_ADDRESS"),
			ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),
			ValkeyTLS:      os.Getenv("VALKEY_TLS") == "true",
		},
		Log: LogConfig{
			Level:     level,
			AddSource: getBool("LOG_ADD_SOURCE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	checks := []func() error{
		c.validateServer,
		c.validateUpstream,
		c.validateAnalysis,
		c.validateSession,
	}

	var errs []error
	for _, check := range checks {
		if err := check(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid HTTP_PORT %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("config: HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateUpstream() error {
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("config: invalid UPSTREAM_BASE_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: UPSTREAM_BASE_URL must be http or https, got %q", c.Upstream.BaseURL)
	}
	if !strings.HasPrefix(c.Upstream.AnalyzePath, "/") {
		return fmt.Errorf("config: UPSTREAM_ANALYZE_PATH must start with /, got %q", c.Upstream.AnalyzePath)
	}
	if c.Upstream.Timeout < 0 {
		return errors.New("config: UPSTREAM_TIMEOUT must not be negative")
	}
	if c.Upstream.MaxAttempts < 1 {
		return errors.New("config: UPSTREAM_MAX_ATTEMPTS must be at least 1")
	}
	if c.Upstream.RequestsPerSec <= 0 || c.Upstream.Burst < 1 {
		return errors.New("config: UPSTREAM_RPS and UPSTREAM_BURST must be positive")
	}
	if c.Upstream.OAuthEnabled() && (c.Upstream.ClientSecret == "" || c.Upstream.TokenURL == "") {
		return errors.New("config: UPSTREAM_CLIENT_SECRET and UPSTREAM_TOKEN_URL are required with UPSTREAM_CLIENT_ID")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.FallbackDelay < 0 || c.Analysis.JitterDelay < 0 {
		return errors.New("config: FALLBACK_DELAY and JITTER_DELAY must not be negative")
	}
	if c.Analysis.InputErrorTTL <= 0 {
		return errors.New("config: INPUT_ERROR_TTL must be positive")
	}
	return nil
}

func (c *Config) validateSession() error {
	switch c.Session.Backend {
	case SESSION_BACKEND_MEMORY:
	case SESSION_BACKEND_VALKEY:
		if c.Session.ValkeyAddress == "" {
			return errors.New("config: VALKEY_INIT_ADDRESS is required for the valkey session backend")
		}
	default:
		return fmt.Errorf("config: unknown SESSION_BACKEND %q", c.Session.Backend)
	}
	if c.Session.TTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if c.Session.CookieName == "" {
		return errors.New("config: SESSION_COOKIE must not be empty")
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("[Config] Invalid integer, using default",
			slog.String("key", key),
			slog.String("value", v),
			slog.Int("default", fallback))
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("[Config] Invalid number, using default",
			slog.String("key", key),
			slog.String("value", v),
			slog.Float64("default", fallback))
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("[Config] Invalid boolean, using default",
			slog.String("key", key),
			slog.String("value", v),
			slog.Bool("default", fallback))
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("[Config] Invalid duration, using default",
			slog.String("key", key),
			slog.String("value", v),
			slog.Duration("default", fallback))
		return fallback
	}
	return d
}
