package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gamedock/gamedock/internal/pkg/constants"
	"github.com/gamedock/gamedock/internal/pkg/middleware"
	"github.com/gamedock/gamedock/internal/pkg/ratelimit"
	"github.com/gamedock/gamedock/internal/pkg/session"
)

type HttpRouter struct {
	deps *Dependencies
}

func NewHttpRouter(deps *Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init login-state store
	session.NewStateStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware(h.deps.Broker))

	authLimit := middleware.RateLimit(h.deps.Limiter, ratelimit.ClassAuth)

	app.Get(constants.AuthLoginRoute, authLimit, h.deps.Auth.HandleLogin)
	app.Get(constants.AuthCallbackRoute, authLimit, h.deps.Auth.HandleCallback)
	app.Post(constants.AuthLoginRoute, authLimit, h.deps.Auth.HandleLocalLogin)
	app.Get(constants.AuthLogoutRoute, h.deps.Auth.HandleLogout)
	app.Post(constants.AuthLogoutRoute, h.deps.Auth.HandleLogout)
	app.Post(constants.AuthWebhookRoute, authLimit, h.deps.Webhook.HandleWebhook)

	// Internal login page target for the local provider's redirect.
	app.Get(constants.LoginRoute, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"provider": h.deps.Broker.ActiveProvider(),
			"login":    constants.AuthLoginRoute,
		})
	})
}
