package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session as a Redis hash that expires ttl after its
// last write, so abandoned sessions are reclaimed by Redis itself.
type RedisStore struct {
	cmd    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store using keys of the form <prefix>session:<id>.
func NewRedisStore(cmd redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{cmd: cmd, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + "session:" + sessionID
}

func (r *RedisStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	if err := checkSessionID(sessionID); err != nil {
		return "", false, err
	}

	v, err := r.cmd.HGet(ctx, r.key(sessionID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read session attribute: %w", err)
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, sessionID, key, value string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}

	k := r.key(sessionID)
	if err := r.cmd.HSet(ctx, k, key, value).Err(); err != nil {
		return fmt.Errorf("failed to write session attribute: %w", err)
	}
	if err := r.cmd.Expire(ctx, k, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session expiry: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID, key string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}

	if err := r.cmd.HDel(ctx, r.key(sessionID), key).Err(); err != nil {
		return fmt.Errorf("failed to delete session attribute: %w", err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.cmd.Ping(ctx).Err()
}

// Close is a no-op; the Redis client is owned and closed by the caller.
func (r *RedisStore) Close() error {
	return nil
}
