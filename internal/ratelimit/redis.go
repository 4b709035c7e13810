package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed lua/interval_bucket.lua
var luaIntervalBucket string

var intervalBucketScript = redis.NewScript(luaIntervalBucket)

// RedisBucket keeps the bucket in a Redis hash so that every replica of the
// service draws from the same tokens. Refill and consume run in one script.
type RedisBucket struct {
	cmd redis.Cmdable
	key string
	cfg BucketConfig
	now func() time.Time
}

// RedisOption customizes a RedisBucket.
type RedisOption func(*RedisBucket)

// WithRedisClock replaces time.Now as the source of the script's timestamp.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(b *RedisBucket) { b.now = now }
}

// NewRedisBucket binds a bucket to key. The bucket is created full on first use.
func NewRedisBucket(cmd redis.Cmdable, key string, cfg BucketConfig, opts ...RedisOption) (*RedisBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("bucket key is required")
	}
	b := &RedisBucket{cmd: cmd, key: key, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// TryConsume implements Limiter.
func (b *RedisBucket) TryConsume(ctx context.Context, n int) (bool, Info, error) {
	if err := checkCost(n); err != nil {
		return false, Info{}, err
	}
	return b.run(ctx, n)
}

// Peek implements Limiter.
func (b *RedisBucket) Peek(ctx context.Context) (Info, error) {
	_, info, err := b.run(ctx, 0)
	return info, err
}

func (b *RedisBucket) run(ctx context.Context, n int) (bool, Info, error) {
	now := b.now()
	res, err := intervalBucketScript.Run(ctx, b.cmd, []string{b.key},
		b.cfg.Capacity, b.cfg.RefillTokens, b.cfg.RefillInterval.Milliseconds(), now.UnixMilli(), n).Result()
	if err != nil {
		return false, Info{}, fmt.Errorf("failed to run bucket script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return false, Info{}, fmt.Errorf("unexpected result from bucket script: %v", res)
	}
	allowed, ok1 := vals[0].(int64)
	remaining, ok2 := vals[1].(int64)
	resetMs, ok3 := vals[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return false, Info{}, fmt.Errorf("unexpected result types from bucket script: %T %T %T", vals[0], vals[1], vals[2])
	}

	info := Info{
		Limit:     b.cfg.Capacity,
		Remaining: int(remaining),
		ResetAt:   time.UnixMilli(resetMs),
	}
	if n > 0 && allowed == 0 {
		info.RetryAfter = max(info.ResetAt.Sub(now), 0)
	}
	return allowed == 1, info, nil
}
