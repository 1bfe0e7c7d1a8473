package httpx

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "botforge:rl:"
	redisDialTimeout = 2 * time.Second
	redisOpTimeout   = 250 * time.Millisecond
)

// redisLimiter implements fixed-window counting with shared state, so the
// limit holds across api replicas. Redis being unreachable fails open: a
// degraded cache must not take the API down with it.
type redisLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisRateLimiter connects to Redis and verifies the connection before
// returning the limiter.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &redisLimiter{client: client, logger: logger}, nil
}

func (rl *redisLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	counterKey := redisKeyPrefix + key
	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, counterKey)
	ttlCmd := pipe.TTL(ctx, counterKey)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.warn("pipeline", err)
		return rateDecision{allowed: true}
	}

	count := incr.Val()
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		// First hit in this window, or a key left without expiry.
		ttl = window
		if err := rl.client.Expire(ctx, counterKey, window).Err(); err != nil {
			rl.warn("expire", err)
		}
	}
	return rateDecision{
		allowed:   count <= int64(limit),
		count:     int(count),
		windowEnd: time.Now().Add(ttl),
	}
}

func (rl *redisLimiter) Close() {
	_ = rl.client.Close()
}

func (rl *redisLimiter) warn(op string, err error) {
	if rl.logger != nil {
		rl.logger.Warn("redis rate limiter degraded", "op", op, "error", err)
	}
}
