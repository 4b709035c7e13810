package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryBucket is a process-local interval-refill bucket. It starts full.
type MemoryBucket struct {
	cfg BucketConfig
	now func() time.Time

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// MemoryOption customizes a MemoryBucket.
type MemoryOption func(*MemoryBucket)

// WithClock replaces time.Now. The clock must be monotonic; time.Now values
// carry a monotonic reading so wall clock jumps do not affect refills.
func WithClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBucket) { b.now = now }
}

// NewMemoryBucket creates a full bucket.
func NewMemoryBucket(cfg BucketConfig, opts ...MemoryOption) (*MemoryBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &MemoryBucket{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	b.tokens = cfg.Capacity
	b.lastRefill = b.now()
	return b, nil
}

// TryConsume implements Limiter.
func (b *MemoryBucket) TryConsume(_ context.Context, n int) (bool, Info, error) {
	if err := checkCost(n); err != nil {
		return false, Info{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refill(now)

	if b.tokens < n {
		info := b.info()
		info.RetryAfter = info.ResetAt.Sub(now)
		return false, info, nil
	}
	b.tokens -= n
	return true, b.info(), nil
}

// Peek implements Limiter.
func (b *MemoryBucket) Peek(_ context.Context) (Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(b.now())
	return b.info(), nil
}

// refill credits every whole interval elapsed since the last refill. The
// boundary advances by whole intervals so partial progress is kept.
func (b *MemoryBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.cfg.RefillInterval {
		return
	}
	k := elapsed / b.cfg.RefillInterval
	b.tokens = min(b.cfg.Capacity, b.tokens+int(k)*b.cfg.RefillTokens)
	b.lastRefill = b.lastRefill.Add(k * b.cfg.RefillInterval)
}

func (b *MemoryBucket) info() Info {
	return Info{
		Limit:     b.cfg.Capacity,
		Remaining: b.tokens,
		ResetAt:   b.lastRefill.Add(b.cfg.RefillInterval),
	}
}
