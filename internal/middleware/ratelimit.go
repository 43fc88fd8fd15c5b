package middleware

import (
	"context"
	"fmt"
	"time"

	"chitchat/internal/models"
	"chitchat/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per resource and caller in Redis.
type RateLimiter struct {
	rdb     *redis.Client
	enabled bool
}

// NewRateLimiter returns a limiter that is a no-op in the development and
// test environments or when rdb is nil.
func NewRateLimiter(rdb *redis.Client, env string) *RateLimiter {
	enabled := rdb != nil
	switch env {
	case "", "development", "test":
		enabled = false
	}
	return &RateLimiter{rdb: rdb, enabled: enabled}
}

// Allow increments the counter for resource/id and reports whether it is
// still within limit for the current window.
func (l *RateLimiter) Allow(ctx context.Context, resource, id string, limit int, window time.Duration) (bool, error) {
	if !l.enabled {
		return true, nil
	}
	key := fmt.Sprintf("rl:%s:%s", resource, id)

	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		l.rdb.Expire(ctx, key, window)
	}
	return cnt <= int64(limit), nil
}

// Limit enforces limit requests per window on a route. Callers are keyed
// by user id when authenticated and by IP otherwise. Redis failures let the
// request through.
func (l *RateLimiter) Limit(resource string, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := "ip:" + c.IP()
		if uid := UserID(c); uid != 0 {
			id = fmt.Sprintf("user:%d", uid)
		}

		allowed, err := l.Allow(c.UserContext(), resource, id, limit, window)
		if err != nil {
			observability.RedisErrors.WithLabelValues("ratelimit").Inc()
			return c.Next()
		}
		if !allowed {
			return models.RespondWithError(c, fiber.StatusTooManyRequests, &models.AppError{
				Code:    models.CodeRateLimited,
				Message: "Too many requests, please try again later",
			})
		}
		return c.Next()
	}
}
