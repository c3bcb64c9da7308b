package router

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/gamedock/gamedock/app/controllers"
	"github.com/gamedock/gamedock/app/repository"
	"github.com/gamedock/gamedock/internal/pkg/auth"
	"github.com/gamedock/gamedock/internal/pkg/auth/providers"
	"github.com/gamedock/gamedock/internal/pkg/auth/token"
	"github.com/gamedock/gamedock/internal/pkg/cache"
	"github.com/gamedock/gamedock/internal/pkg/database"
	"github.com/gamedock/gamedock/internal/pkg/env"
	"github.com/gamedock/gamedock/internal/pkg/ratelimit"
)

// Router installs a set of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies is everything the routers share. Built once at startup and
// passed by reference; nothing here lives in package-level state.
type Dependencies struct {
	Broker  *auth.Broker
	Limiter *ratelimit.Limiter

	Auth    *controllers.AuthController
	Webhook *controllers.WebhookController
	API     *controllers.APIAuthController
}

// InstallRouter wires the broker and installs all route groups.
func InstallRouter(app *fiber.App) {
	deps := buildDependencies()
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}

func buildDependencies() *Dependencies {
	repos := repository.NewFactory(database.GetDB()).GetRepositories()

	secret := env.GetEnv(auth.EnvSessionSecret, "")
	codec, err := token.NewCodec(secret, token.DefaultTTL)
	if err != nil {
		log.Fatalf("session token codec: %v", err)
	}
	// Signed JWTs first, the older compact format second.
	verifier := token.Chain{codec, token.NewLegacyCodec(secret, token.DefaultTTL)}

	registry, err := auth.NewRegistry(auth.Deps{
		Users:    repos.User,
		Roles:    repos.Role,
		Audit:    repos.Audit,
		Codec:    codec,
		Verifier: verifier,
	}, providers.All())
	if err != nil {
		log.Fatalf("auth registry: %v", err)
	}

	broker := auth.NewBroker(registry, cache.GetClient())
	result, err := broker.Initialize(context.Background(), auth.Options{
		EnableSync: env.GetEnv("AUTH_ENABLE_SYNC", "") == "true",
	})
	if err != nil {
		log.Fatalf("auth broker init: %v", err)
	}
	if !result.Valid {
		// Configuration problems are operator-facing; startup continues
		// so the operator can still reach the status endpoint.
		log.Printf("Warning: auth provider configuration invalid: %s", result.Message)
	} else {
		log.Printf("auth provider %q initialized", broker.ActiveProvider())
	}

	limiter := ratelimit.New(cache.GetClient())

	return &Dependencies{
		Broker:  broker,
		Limiter: limiter,
		Auth:    controllers.NewAuthController(broker),
		Webhook: controllers.NewWebhookController(broker),
		API:     controllers.NewAPIAuthController(broker, limiter),
	}
}
