package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimiter creates a rate limiting middleware
func RateLimiter(max int, expiration time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		Next: func(c *fiber.Ctx) bool {
			return max <= 0
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			// Use user ID if authenticated, otherwise use IP
			if userID := GetUserID(c); userID != "" {
				return userID
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"message": "Too many requests, please try again later",
			})
		},
	})
}

// AuthRateLimiter for credential endpoints, per 15 minutes
func AuthRateLimiter(max int) fiber.Handler {
	return RateLimiter(max, 15*time.Minute)
}

// APIRateLimiter for authenticated API calls, per minute
func APIRateLimiter(max int) fiber.Handler {
	return RateLimiter(max, 1*time.Minute)
}
