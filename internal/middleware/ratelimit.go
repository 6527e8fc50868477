package middleware

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/printworks/jobtrack/pkg/response"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == "" || maxRequests <= 0 {
			return c.Next()
		}

		key := fmt.Sprintf("jobtrack:ratelimit:%s:%s", keyPrefix, userID)
		ctx, cancel := context.WithTimeout(c.UserContext(), 500*time.Millisecond)
		defer cancel()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// Fail open: a redis outage must not block the workflow
			log.Printf("Failed to check rate limit for %s: %v", userID, err)
			return c.Next()
		}

		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// MutationLimit limits state-changing job requests per user per minute
func (rl *RateLimiter) MutationLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("mutations", maxPerMin, time.Minute)
}

// BulkLimit limits bulk action requests per user per minute
func (rl *RateLimiter) BulkLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("bulk", maxPerMin, time.Minute)
}
