// Package config loads service configuration: defaults, then an optional
// YAML file, then CAPTCHA_* environment variables, then validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"captcha/internal/models"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CAPTCHA_"

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// deprecatedConfig mirrors renamed or removed keys so stale operator configs
// are reported instead of silently ignored.
type deprecatedConfig struct {
	RateLimit struct {
		RequestsPerMinute int `yaml:"requests_per_minute"`
		Burst             int `yaml:"burst"`
	} `yaml:"rate_limit"`
	Session struct {
		Redis interface{} `yaml:"redis"`
	} `yaml:"session"`
	Observability struct {
		ServiceVersion string `yaml:"service_version"`
	} `yaml:"observability"`
}

// warnDeprecatedKeys logs a warning for each deprecated key found in data.
// Startup continues; the main decoder ignores these keys.
func warnDeprecatedKeys(data []byte) {
	var dep deprecatedConfig
	if err := yaml.Unmarshal(data, &dep); err != nil {
		return
	}
	if dep.RateLimit.RequestsPerMinute != 0 {
		slog.Warn("Config key is no longer supported; the bucket refills in whole intervals. Use rate_limit.refill_tokens and rate_limit.refill_interval.", "config_key", "rate_limit.requests_per_minute")
	}
	if dep.RateLimit.Burst != 0 {
		slog.Warn("Config key is no longer supported; use rate_limit.capacity.", "config_key", "rate_limit.burst")
	}
	if dep.Session.Redis != nil {
		slog.Warn("Config key has moved; the redis connection is shared and configured under the top-level redis block.", "config_key", "session.redis")
	}
	if dep.Observability.ServiceVersion != "" {
		slog.Warn("Config key is no longer supported; version is set at build time via ldflags.", "config_key", "observability.service_version")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnDeprecatedKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// Malformed numeric, boolean and duration values are logged and ignored, so
// the file or default value stays in effect.

func envString(name string, dst *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring malformed environment variable", "name", EnvPrefix+name, "value", v)
		return
	}
	*dst = n
}

func envFloat(name string, dst *float64) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Ignoring malformed environment variable", "name", EnvPrefix+name, "value", v)
		return
	}
	*dst = f
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = strings.EqualFold(v, "true")
	}
}

func envDuration(name string, dst *time.Duration) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Ignoring malformed environment variable", "name", EnvPrefix+name, "value", v)
		return
	}
	*dst = d
}

func envList(name string, dst *[]string) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

// loadFromEnvironment applies CAPTCHA_* overrides.
func loadFromEnvironment(c *models.Config) {
	// Server
	envInt("PORT", &c.Server.Port)
	envString("HOST", &c.Server.Host)
	envDuration("READ_TIMEOUT", &c.Server.ReadTimeout)
	envDuration("WRITE_TIMEOUT", &c.Server.WriteTimeout)
	envDuration("IDLE_TIMEOUT", &c.Server.IdleTimeout)
	envBool("TLS_ENABLED", &c.Server.TLSEnabled)
	envString("TLS_CERT_FILE", &c.Server.TLSCertFile)
	envString("TLS_KEY_FILE", &c.Server.TLSKeyFile)
	envBool("CORS_ENABLED", &c.Server.CORS.Enabled)
	envList("CORS_ALLOWED_ORIGINS", &c.Server.CORS.AllowedOrigins)

	// Session
	envString("SESSION_TYPE", &c.Session.Type)
	envDuration("SESSION_TTL", &c.Session.TTL)
	envString("SESSION_COOKIE_NAME", &c.Session.CookieName)
	envBool("SESSION_COOKIE_SECURE", &c.Session.CookieSecure)
	envDuration("SESSION_CLEANUP_INTERVAL", &c.Session.CleanupInterval)
	envString("DATABASE_DSN", &c.Session.Database.DSN)
	envInt("DATABASE_MAX_OPEN_CONNS", &c.Session.Database.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &c.Session.Database.MaxIdleConns)

	// Rate limit
	envString("RATE_LIMIT_TYPE", &c.RateLimit.Type)
	envInt("RATE_LIMIT_CAPACITY", &c.RateLimit.Capacity)
	envInt("RATE_LIMIT_REFILL_TOKENS", &c.RateLimit.RefillTokens)
	envDuration("RATE_LIMIT_REFILL_INTERVAL", &c.RateLimit.RefillInterval)
	envString("RATE_LIMIT_KEY", &c.RateLimit.Key)

	// Captcha
	envInt("CAPTCHA_WIDTH", &c.Captcha.Width)
	envInt("CAPTCHA_HEIGHT", &c.Captcha.Height)
	envInt("CAPTCHA_LENGTH", &c.Captcha.Length)
	envInt("CAPTCHA_NOISE_LINES", &c.Captcha.NoiseLines)
	envFloat("CAPTCHA_FONT_SIZE", &c.Captcha.FontSize)
	envBool("CAPTCHA_TEST_MODE_ENABLED", &c.Captcha.TestModeEnabled)

	// Redis
	envString("REDIS_ADDR", &c.Redis.Addr)
	envString("REDIS_PASSWORD", &c.Redis.Password)
	envInt("REDIS_DB", &c.Redis.DB)
	envInt("REDIS_POOL_SIZE", &c.Redis.PoolSize)
	envString("REDIS_KEY_PREFIX", &c.Redis.KeyPrefix)

	// Logging
	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FORMAT", &c.Logging.Format)
	envString("LOG_OUTPUT", &c.Logging.Output)
	envString("LOG_FILE_PATH", &c.Logging.FilePath)
	envInt("LOG_MAX_SIZE", &c.Logging.MaxSize)
	envInt("LOG_MAX_BACKUPS", &c.Logging.MaxBackups)
	envInt("LOG_MAX_AGE", &c.Logging.MaxAge)
	envBool("LOG_COMPRESS", &c.Logging.Compress)

	// Metrics and tracing
	envBool("METRICS_ENABLED", &c.Metrics.Enabled)
	envString("METRICS_PATH", &c.Metrics.Path)
	envInt("METRICS_PORT", &c.Metrics.Port)
	envString("SERVICE_NAME", &c.Observability.ServiceName)
	envBool("TRACING_ENABLED", &c.Observability.Tracing.Enabled)
	envString("TRACING_EXPORTER", &c.Observability.Tracing.Exporter)
	envFloat("TRACING_SAMPLE_RATE", &c.Observability.Tracing.SampleRate)
	envString("OTLP_ENDPOINT", &c.Observability.Tracing.OTLPEndpoint)
}

// SaveExample writes a commented-free example configuration with production
// leaning values to filePath.
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	config.Session.Type = models.SessionTypeRedis
	config.Session.CookieSecure = true
	config.RateLimit.Type = models.LimiterTypeRedis
	config.Captcha.TestModeEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"
	config.Server.CORS.AllowedOrigins = []string{"https://app.example.com"}
	config.Metrics.Enabled = true

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
