package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the optional Redis connection behind the per-session webhook
// lock and the cross-instance webhook rate limit. Without it the server
// runs with NoopLocker and an in-process limiter.
type Client struct {
	*redis.Client
}

// NewClient parses url and pings the server within pingTimeout.
func NewClient(url string, pingTimeout time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{rdb}, nil
}

// SessionLocker returns a lock on session-lock:<external id> keys.
func (c *Client) SessionLocker(ttl, wait, backoff time.Duration) *RedisLocker {
	return NewRedisLocker(c.Client, ttl, wait, backoff)
}

// SessionLockKey serialises webhook processing per external session id.
func SessionLockKey(externalSessionID string) string {
	return "session-lock:" + externalSessionID
}
