package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var defaultBucket = BucketConfig{Capacity: 5, RefillTokens: 5, RefillInterval: time.Minute}

func newTestBucket(t *testing.T, cfg BucketConfig) (*MemoryBucket, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	b, err := NewMemoryBucket(cfg, WithClock(clock.Now))
	require.NoError(t, err)
	return b, clock
}

func drain(t *testing.T, b *MemoryBucket, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ok, _, err := b.TryConsume(context.Background(), 1)
		require.NoError(t, err)
		require.True(t, ok, "consume %d should succeed", i+1)
	}
}

func TestNewMemoryBucket_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  BucketConfig
	}{
		{"zero capacity", BucketConfig{Capacity: 0, RefillTokens: 1, RefillInterval: time.Second}},
		{"zero refill", BucketConfig{Capacity: 1, RefillTokens: 0, RefillInterval: time.Second}},
		{"zero interval", BucketConfig{Capacity: 1, RefillTokens: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMemoryBucket(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestMemoryBucket_FiveThenDenied(t *testing.T) {
	b, _ := newTestBucket(t, defaultBucket)

	for i := 0; i < 5; i++ {
		ok, info, err := b.TryConsume(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 5, info.Limit)
		assert.Equal(t, 4-i, info.Remaining)
	}

	ok, info, err := b.TryConsume(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, time.Minute, info.RetryAfter)
}

func TestMemoryBucket_DeniedLeavesStateUnchanged(t *testing.T) {
	b, _ := newTestBucket(t, defaultBucket)
	drain(t, b, 3)

	ok, info, err := b.TryConsume(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, info.Remaining)

	ok, _, err = b.TryConsume(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryBucket_NoPartialRefill(t *testing.T) {
	b, clock := newTestBucket(t, defaultBucket)
	drain(t, b, 5)

	clock.Advance(59 * time.Second)
	ok, info, err := b.TryConsume(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Second, info.RetryAfter)
}

func TestMemoryBucket_RefillAtBoundary(t *testing.T) {
	b, clock := newTestBucket(t, defaultBucket)
	drain(t, b, 5)

	clock.Advance(time.Minute)
	drain(t, b, 5)

	ok, _, err := b.TryConsume(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBucket_RefillCappedAtCapacity(t *testing.T) {
	b, clock := newTestBucket(t, defaultBucket)
	drain(t, b, 1)

	clock.Advance(10 * time.Minute)
	info, err := b.Peek(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, info.Remaining)
}

func TestMemoryBucket_PartialRefillAmount(t *testing.T) {
	b, clock := newTestBucket(t, BucketConfig{Capacity: 10, RefillTokens: 3, RefillInterval: time.Minute})
	for i := 0; i < 10; i++ {
		ok, _, _ := b.TryConsume(context.Background(), 1)
		require.True(t, ok)
	}

	clock.Advance(2*time.Minute + 30*time.Second)
	info, err := b.Peek(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, info.Remaining)
	// the boundary keeps its phase: next refill 30s later
	assert.Equal(t, clock.Now().Add(30*time.Second), info.ResetAt)
}

func TestMemoryBucket_InvalidCost(t *testing.T) {
	b, _ := newTestBucket(t, defaultBucket)

	for _, n := range []int{0, -1} {
		ok, _, err := b.TryConsume(context.Background(), n)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrInvalidCost)
	}

	info, err := b.Peek(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, info.Remaining)
}

func TestMemoryBucket_ConcurrentConsumers(t *testing.T) {
	b, _ := newTestBucket(t, defaultBucket)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := b.TryConsume(context.Background(), 1)
			assert.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), granted.Load())
}
