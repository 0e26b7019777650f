package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter implements a fixed-window request limiter on INCR+EXPIRE.
// Used by the web facade to keep one misbehaving caller from hammering the
// submission endpoint.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

func CallerKey(callerID, route string) string {
	return fmt.Sprintf("rate_limit:%s:%s", callerID, route)
}
