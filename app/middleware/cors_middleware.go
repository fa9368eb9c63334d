package middleware

import (
	"strings"

	"raggate/app/api"

	"github.com/gofiber/fiber/v2"
)

// CORS enforces the origin allowlist and answers preflights. A request that
// declares an off-list Origin is rejected before rate limiting or any
// business logic runs; requests without an Origin header (non-browser
// clients) pass through.
func CORS(allowedOrigins []string) fiber.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if origin != "" {
			if _, ok := allowed[origin]; !ok {
				return api.ErrForbiddenOrigin()
			}
			c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
			c.Set(fiber.HeaderVary, fiber.HeaderOrigin)
		}
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
