package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gamedock/gamedock/internal/pkg/ratelimit"
)

// RateLimit enforces the endpoint class limit per client IP. On exceed it
// answers 429 with Retry-After and X-RateLimit-* headers; limiter backend
// failures fail open inside the limiter itself.
func RateLimit(limiter *ratelimit.Limiter, class string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := limiter.Check(c.UserContext(), class, c.IP())

		c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))

		if !res.Allowed {
			retryAfter := int(time.Until(res.Reset).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set("Retry-After", strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": ratelimit.LimitFor(class).Message,
			})
		}
		return c.Next()
	}
}
