package middleware

import (
	"raggate/app/api"
	"raggate/limiter"

	"github.com/gofiber/fiber/v2"
)

// clientIPHeader is the trusted proxy-supplied client address.
const clientIPHeader = "CF-Connecting-IP"

// RateLimit accounts the request against the client's fixed-window bucket
// and rejects with 429 plus a retry hint once the window is exhausted.
func RateLimit(l *limiter.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := limiter.ClientKey(c.Get(clientIPHeader), c.Get(fiber.HeaderXForwardedFor))

		decision, err := l.Allow(c.Context(), key)
		if err != nil {
			return api.ErrUpstream(err)
		}
		if !decision.Allowed {
			return api.NewRateLimitError(decision.RetryAfterSec)
		}
		return c.Next()
	}
}
