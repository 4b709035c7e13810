// Package models - Service configuration.
// This file defines the configuration tree for every component of the captcha
// service together with defaults and validation.
//
// Configuration layering:
// - NewDefaultConfig supplies values that run out of the box (memory session
//   store, in-process rate bucket, stdout JSON logs)
// - a YAML file overrides any subset of keys
// - CAPTCHA_* environment variables override the file
// - Validate runs last and rejects inconsistent combinations
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Session store backends.
const (
	SessionTypeMemory   = "memory"
	SessionTypeRedis    = "redis"
	SessionTypeSQLite   = "sqlite"
	SessionTypePostgres = "postgres"
)

// Rate bucket backends.
const (
	LimiterTypeMemory = "memory"
	LimiterTypeRedis  = "redis"
)

// Config is the root configuration structure.
//
// Configuration Structure:
// - Server: HTTP listener, timeouts, TLS and CORS
// - Session: where pending answers live and how the session cookie is issued
// - RateLimit: the global admission bucket in front of challenge generation
// - Captcha: challenge rendering parameters and test-mode policy
// - Redis: connection shared by the redis session store and the redis bucket
// - Logging, Metrics, Observability: ambient operational settings
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Session       SessionConfig       `yaml:"session" json:"session"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Captcha       CaptchaConfig       `yaml:"captcha" json:"captcha"`
	Redis         RedisConfig         `yaml:"redis" json:"redis"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers" json:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials" json:"allow_credentials"`
	MaxAge           int      `yaml:"max_age" json:"max_age"`
}

// SessionConfig selects the session attribute store and configures the
// cookie that carries the session identity.
type SessionConfig struct {
	Type            string         `yaml:"type" json:"type"`
	TTL             time.Duration  `yaml:"ttl" json:"ttl"`
	CookieName      string         `yaml:"cookie_name" json:"cookie_name"`
	CookieSecure    bool           `yaml:"cookie_secure" json:"cookie_secure"`
	CleanupInterval time.Duration  `yaml:"cleanup_interval" json:"cleanup_interval"`
	Database        DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// RateLimitConfig describes the interval-refilled token bucket. Every
// RefillInterval the bucket gains RefillTokens, never exceeding Capacity.
type RateLimitConfig struct {
	Type           string        `yaml:"type" json:"type"`
	Capacity       int           `yaml:"capacity" json:"capacity"`
	RefillTokens   int           `yaml:"refill_tokens" json:"refill_tokens"`
	RefillInterval time.Duration `yaml:"refill_interval" json:"refill_interval"`
	Key            string        `yaml:"key" json:"key"`
}

// CaptchaConfig holds the rendering parameters of generated challenges.
type CaptchaConfig struct {
	Width           int     `yaml:"width" json:"width"`
	Height          int     `yaml:"height" json:"height"`
	Length          int     `yaml:"length" json:"length"`
	Alphabet        string  `yaml:"alphabet" json:"alphabet"`
	NoiseLines      int     `yaml:"noise_lines" json:"noise_lines"`
	FontSize        float64 `yaml:"font_size" json:"font_size"`
	CharAdvance     float64 `yaml:"char_advance" json:"char_advance"`
	MaxRotation     int     `yaml:"max_rotation" json:"max_rotation"`
	TestModeEnabled bool    `yaml:"test_mode_enabled" json:"test_mode_enabled"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	Output     string `yaml:"output" json:"output"`
	FilePath   string `yaml:"file_path" json:"file_path"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
}

// NewDefaultConfig returns a configuration that runs a single instance with
// no external dependencies.
//
// Default Values:
// - 5 tokens refilled every minute, matching the public 429 message
// - 200x50 canvas, 6 characters from A-Z0-9, 20 noise lines, 20px advance
// - 30-minute sessions held in process memory
// - test mode honoured so automated suites can read the expected answer
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORS: CORSConfig{
				Enabled:          false,
				AllowedOrigins:   []string{},
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Content-Type", "X-Captcha-Test-Mode"},
				AllowCredentials: true,
				MaxAge:           3600,
			},
		},
		Session: SessionConfig{
			Type:            SessionTypeMemory,
			TTL:             30 * time.Minute,
			CookieName:      "CAPTCHA_SESSION",
			CleanupInterval: 5 * time.Minute,
			Database: DatabaseConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		RateLimit: RateLimitConfig{
			Type:           LimiterTypeMemory,
			Capacity:       5,
			RefillTokens:   5,
			RefillInterval: time.Minute,
			Key:            "captcha:bucket",
		},
		Captcha: CaptchaConfig{
			Width:           200,
			Height:          50,
			Length:          6,
			Alphabet:        "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
			NoiseLines:      20,
			FontSize:        30,
			CharAdvance:     20,
			MaxRotation:     20,
			TestModeEnabled: true,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "captcha:",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "captcha",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}
	if err := c.Captcha.Validate(); err != nil {
		return fmt.Errorf("invalid captcha config: %w", err)
	}
	if c.Session.Type == SessionTypeRedis || c.RateLimit.Type == LimiterTypeRedis {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("invalid redis config: %w", err)
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}
	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}
	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}
	return nil
}

func (s *SessionConfig) Validate() error {
	valid := []string{SessionTypeMemory, SessionTypeRedis, SessionTypeSQLite, SessionTypePostgres}
	if !slices.Contains(valid, s.Type) {
		return fmt.Errorf("invalid session type: %s", s.Type)
	}
	if s.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if s.CookieName == "" {
		return errors.New("session cookie name cannot be empty")
	}
	if s.Type == SessionTypeMemory && s.CleanupInterval <= 0 {
		return errors.New("cleanup interval must be positive for memory sessions")
	}
	if (s.Type == SessionTypeSQLite || s.Type == SessionTypePostgres) && s.Database.DSN == "" {
		return fmt.Errorf("database DSN is required for %s sessions", s.Type)
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if !slices.Contains([]string{LimiterTypeMemory, LimiterTypeRedis}, r.Type) {
		return fmt.Errorf("invalid rate limit type: %s", r.Type)
	}
	if r.Capacity <= 0 {
		return errors.New("capacity must be positive")
	}
	if r.RefillTokens <= 0 {
		return errors.New("refill tokens must be positive")
	}
	if r.RefillInterval <= 0 {
		return errors.New("refill interval must be positive")
	}
	if r.Type == LimiterTypeRedis && r.Key == "" {
		return errors.New("bucket key is required for redis rate limiting")
	}
	return nil
}

func (c *CaptchaConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.New("canvas width and height must be positive")
	}
	if c.Length <= 0 {
		return errors.New("length must be positive")
	}
	if c.Alphabet == "" {
		return errors.New("alphabet cannot be empty")
	}
	if c.NoiseLines < 0 {
		return errors.New("noise lines cannot be negative")
	}
	if c.FontSize <= 0 {
		return errors.New("font size must be positive")
	}
	if c.CharAdvance <= 0 {
		return errors.New("char advance must be positive")
	}
	if c.MaxRotation < 0 || c.MaxRotation > 180 {
		return errors.New("max rotation must be between 0 and 180 degrees")
	}
	return nil
}

func (r *RedisConfig) Validate() error {
	if r.Addr == "" {
		return errors.New("redis address is required")
	}
	if r.DB < 0 {
		return errors.New("redis db cannot be negative")
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}
	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}
	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}
	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}
	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}
	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}
	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}
	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}
	if oc.ServiceName == "" {
		return errors.New("service name is required when tracing is enabled")
	}
	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}
	return nil
}
