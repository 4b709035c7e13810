// Package ratelimit gates admission with a token bucket that is refilled in
// whole intervals: tokens appear all at once at each interval boundary rather
// than trickling in. One bucket is shared by every caller of a Limiter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCost is returned when a caller asks for zero or negative tokens.
var ErrInvalidCost = errors.New("token cost must be positive")

// Limiter defines the admission contract. Implementations must be safe for
// concurrent use and must consume atomically: a denied call leaves the bucket
// unchanged.
type Limiter interface {
	// TryConsume removes n tokens when at least n are available.
	TryConsume(ctx context.Context, n int) (allowed bool, info Info, err error)

	// Peek reports the bucket state after applying due refills, without
	// consuming anything.
	Peek(ctx context.Context) (Info, error)
}

// Info contains bucket state for populating response headers.
type Info struct {
	Limit      int           // Bucket capacity
	Remaining  int           // Tokens left after the call
	ResetAt    time.Time     // Next refill boundary
	RetryAfter time.Duration // Time until the next refill (set only when denied)
}

// BucketConfig describes an interval-refill bucket.
type BucketConfig struct {
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
}

// Validate checks that the bucket can ever admit a request.
func (c BucketConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.RefillTokens <= 0 {
		return fmt.Errorf("refill tokens must be positive, got %d", c.RefillTokens)
	}
	if c.RefillInterval <= 0 {
		return fmt.Errorf("refill interval must be positive, got %s", c.RefillInterval)
	}
	return nil
}

func checkCost(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCost, n)
	}
	return nil
}
