package session

import (
	"context"
	"fmt"

	"captcha/internal/models"

	"github.com/redis/go-redis/v9"
)

// Factory creates session stores from configuration.
type Factory struct {
	redis     redis.Cmdable
	keyPrefix string
}

// FactoryOption customizes a Factory.
type FactoryOption func(*Factory)

// WithRedis supplies the client used by the redis backend.
func WithRedis(cmd redis.Cmdable, keyPrefix string) FactoryOption {
	return func(f *Factory) {
		f.redis = cmd
		f.keyPrefix = keyPrefix
	}
}

// NewFactory creates a new session store factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Create instantiates a store. Supported types:
//   - memory: process-local, lost on restart
//   - redis: shared hash per session with native expiry
//   - sqlite: single-node persistence
//   - postgres: shared persistence
func (f *Factory) Create(ctx context.Context, cfg models.SessionConfig) (Store, error) {
	if err := f.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case models.SessionTypeMemory:
		return NewMemoryStore(cfg.TTL, cfg.CleanupInterval), nil
	case models.SessionTypeRedis:
		return NewRedisStore(f.redis, f.keyPrefix, cfg.TTL), nil
	case models.SessionTypeSQLite:
		return NewSQLiteStore(cfg)
	case models.SessionTypePostgres:
		return NewPostgresStore(ctx, cfg)
	}
	return nil, fmt.Errorf("unsupported session type: %s", cfg.Type)
}

// GetSupportedProviders returns every store type Create understands.
func (f *Factory) GetSupportedProviders() []string {
	return []string{models.SessionTypeMemory, models.SessionTypeRedis, models.SessionTypeSQLite, models.SessionTypePostgres}
}

// ValidateConfig checks that cfg can be satisfied by this factory.
func (f *Factory) ValidateConfig(cfg models.SessionConfig) error {
	switch cfg.Type {
	case models.SessionTypeMemory:
	case models.SessionTypeRedis:
		if f.redis == nil {
			return fmt.Errorf("redis client is required for redis sessions")
		}
	case models.SessionTypePostgres, models.SessionTypeSQLite:
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s sessions", cfg.Type)
		}
	default:
		return fmt.Errorf("unsupported session type: %s", cfg.Type)
	}
	if cfg.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	return nil
}
