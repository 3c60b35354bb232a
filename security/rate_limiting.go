package security

import (
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit returns a middleware enforcing a fixed window of `limit` requests per
// `window` keyed by user id, falling back to remote IP for anonymous callers.
// The counter lives in Redis so the limit holds across server instances.
func (r *RateLimiter) Limit(name string, limit int, window time.Duration) func(func(*core.RequestEvent) error) func(*core.RequestEvent) error {
	return func(next func(*core.RequestEvent) error) func(*core.RequestEvent) error {
		return func(e *core.RequestEvent) error {
			identity := e.RealIP()
			if e.Auth != nil {
				identity = "user:" + e.Auth.Id
			}

			key := "ratelimit:" + name + ":" + identity
			ctx := e.Request.Context()

			count, err := r.redis.Incr(ctx, key).Result()
			if err != nil {
				// Redis trouble should not take the API down with it.
				return next(e)
			}
			if count == 1 {
				r.redis.Expire(ctx, key, window)
			}
			if count > int64(limit) {
				return apis.NewApiError(http.StatusTooManyRequests,
					"Rate limit exceeded. Please try again later.", nil)
			}

			return next(e)
		}
	}
}
