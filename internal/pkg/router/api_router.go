package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gamedock/gamedock/internal/pkg/middleware"
	"github.com/gamedock/gamedock/internal/pkg/ratelimit"
)

type ApiRouter struct {
	deps *Dependencies
}

func NewApiRouter(deps *Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (a ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", middleware.RateLimit(a.deps.Limiter, ratelimit.ClassAPI))
	v1 := api.Group("/v1")

	v1.Get("/me", middleware.RequireAPISessionAuth, a.deps.API.HandleMe)

	admin := v1.Group("/admin", middleware.RequireAPIAdminAuth,
		middleware.RateLimit(a.deps.Limiter, ratelimit.ClassAdmin))
	admin.Get("/auth/status", a.deps.API.HandleAuthStatus)
	admin.Get("/ratelimit/status", a.deps.API.HandleRateLimitStatus)
	admin.Post("/ratelimit/clear", a.deps.API.HandleRateLimitClear)
}
