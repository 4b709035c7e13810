package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStoreContract exercises the behaviour every backend must share.
func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing attribute", func(t *testing.T) {
		v, ok, err := s.Get(ctx, "contract-a", "captchaText")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "contract-a", "captchaText", "ABC123"))
		v, ok, err := s.Get(ctx, "contract-a", "captchaText")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "ABC123", v)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "contract-a", "captchaText", "ZZZ999"))
		v, _, err := s.Get(ctx, "contract-a", "captchaText")
		require.NoError(t, err)
		assert.Equal(t, "ZZZ999", v)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		_, ok, err := s.Get(ctx, "contract-b", "captchaText")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "contract-a", "captchaText"))
		_, ok, err := s.Get(ctx, "contract-a", "captchaText")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete absent", func(t *testing.T) {
		assert.NoError(t, s.Delete(ctx, "contract-c", "captchaText"))
	})

	t.Run("empty session id", func(t *testing.T) {
		_, _, err := s.Get(ctx, "", "captchaText")
		assert.ErrorIs(t, err, ErrEmptySessionID)
		assert.ErrorIs(t, s.Set(ctx, "", "captchaText", "x"), ErrEmptySessionID)
		assert.ErrorIs(t, s.Delete(ctx, "", "captchaText"), ErrEmptySessionID)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}
