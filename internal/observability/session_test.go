package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"captcha/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct {
	*session.MemoryStore
}

func (brokenStore) Set(context.Context, string, string, string) error {
	return errors.New("store unavailable")
}

func TestInstrumentedStore_PassesThrough(t *testing.T) {
	provider := setupMetricsProvider(t)
	inner := session.NewMemoryStore(time.Minute, 0)

	s, err := NewInstrumentedStore(inner, "memory")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "sess", "captchaText", "ABC123"))
	v, ok, err := s.Get(ctx, "sess", "captchaText")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ABC123", v)
	require.NoError(t, s.Delete(ctx, "sess", "captchaText"))
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	assert.Equal(t, uint64(4), histogramCount(findFamily(t, provider, "session_operation_duration")))
	assert.Zero(t, counterValue(findFamily(t, provider, "session_operation_errors"), "", ""))
}

func TestInstrumentedStore_CountsErrors(t *testing.T) {
	provider := setupMetricsProvider(t)

	s, err := NewInstrumentedStore(brokenStore{session.NewMemoryStore(time.Minute, 0)}, "memory")
	require.NoError(t, err)

	err = s.Set(context.Background(), "sess", "captchaText", "ABC123")
	assert.EqualError(t, err, "store unavailable")

	mf := findFamily(t, provider, "session_operation_errors")
	require.NotNil(t, mf)
	assert.Equal(t, float64(1), counterValue(mf, "operation", "Set"))
}
