package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"captcha/internal/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_GetSupportedProviders(t *testing.T) {
	assert.Equal(t, []string{"memory", "redis", "sqlite", "postgres"}, NewFactory().GetSupportedProviders())
}

func TestFactory_ValidateConfig(t *testing.T) {
	db, _ := redismock.NewClientMock()
	withRedis := NewFactory(WithRedis(db, "captcha:"))
	bare := NewFactory()

	tests := []struct {
		name      string
		factory   *Factory
		config    models.SessionConfig
		expectErr bool
	}{
		{"memory", bare, models.SessionConfig{Type: "memory", TTL: time.Minute}, false},
		{"redis with client", withRedis, models.SessionConfig{Type: "redis", TTL: time.Minute}, false},
		{"redis without client", bare, models.SessionConfig{Type: "redis", TTL: time.Minute}, true},
		{"sqlite without dsn", bare, models.SessionConfig{Type: "sqlite", TTL: time.Minute}, true},
		{"postgres without dsn", bare, models.SessionConfig{Type: "postgres", TTL: time.Minute}, true},
		{"unknown type", bare, models.SessionConfig{Type: "cookie", TTL: time.Minute}, true},
		{"zero ttl", bare, models.SessionConfig{Type: "memory"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.factory.ValidateConfig(tt.config)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFactory_Create(t *testing.T) {
	db, _ := redismock.NewClientMock()
	f := NewFactory(WithRedis(db, "captcha:"))
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := f.Create(ctx, models.SessionConfig{Type: "memory", TTL: time.Minute})
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &MemoryStore{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		s, err := f.Create(ctx, models.SessionConfig{Type: "redis", TTL: time.Minute})
		require.NoError(t, err)
		assert.IsType(t, &RedisStore{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := f.Create(ctx, models.SessionConfig{
			Type:     "sqlite",
			TTL:      time.Minute,
			Database: models.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "s.db")},
		})
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SQLiteStore{}, s)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := f.Create(ctx, models.SessionConfig{Type: "invalid", TTL: time.Minute})
		assert.Error(t, err)
	})
}
