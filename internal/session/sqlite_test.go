package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"captcha/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	cfg := models.SessionConfig{
		Type:     models.SessionTypeSQLite,
		TTL:      time.Minute,
		Database: models.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "sessions.db")},
	}
	s, err := NewSQLiteStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_Contract(t *testing.T) {
	testStoreContract(t, newSQLiteTestStore(t))
}

func TestSQLiteStore_MissingDSN(t *testing.T) {
	_, err := NewSQLiteStore(models.SessionConfig{TTL: time.Minute})
	assert.Error(t, err)
}

func TestSQLiteStore_Expiry(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "sess", "captchaText", "ABC123"))
	require.NoError(t, s.Set(ctx, "other", "captchaText", "XYZ789"))

	now = now.Add(2 * time.Minute)
	_, ok, err := s.Get(ctx, "sess", "captchaText")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSQLiteStore_WriteRefreshesSession(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "sess", "a", "1"))
	now = now.Add(50 * time.Second)
	require.NoError(t, s.Set(ctx, "sess", "b", "2"))
	now = now.Add(50 * time.Second)

	v, ok, err := s.Get(ctx, "sess", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sessions.db")
	cfg := models.SessionConfig{TTL: time.Hour, Database: models.DatabaseConfig{DSN: dsn}}

	s, err := NewSQLiteStore(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "sess", "captchaText", "ABC123"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(cfg)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(context.Background(), "sess", "captchaText")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ABC123", v)
}
