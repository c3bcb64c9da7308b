package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gamedock/gamedock/internal/pkg/auth"
	"github.com/gamedock/gamedock/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the session cookie through the auth broker
// and sets up the complete user context for every request. Verification
// failures are treated as anonymous, never as request errors.
func UserContextMiddleware(broker *auth.Broker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := c.Cookies(usercontext.SessionCookie)
		sess := broker.GetSession(c.UserContext(), tok)
		if sess == nil {
			c.Locals(usercontext.KeyUserContext, usercontext.UserContext{
				IsLoggedIn: false,
				IsAdmin:    false,
			})
			c.Locals(usercontext.KeyFromProtected, false)
			c.Locals(usercontext.KeyIsAdmin, false)
			return c.Next()
		}

		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{
			UserID:     sess.LocalUserID,
			Username:   sess.Name,
			Email:      sess.Email,
			Provider:   sess.AuthType,
			SessionID:  sess.SessionID,
			IsLoggedIn: true,
			IsAdmin:    sess.IsAdmin,
		})
		c.Locals(usercontext.KeyFromProtected, true)
		c.Locals(usercontext.KeyIsAdmin, sess.IsAdmin)
		return c.Next()
	}
}
