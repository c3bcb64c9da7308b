package controllers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/gamedock/gamedock/internal/pkg/auth"
	"github.com/gamedock/gamedock/internal/pkg/metrics/counter"
	"github.com/gamedock/gamedock/internal/pkg/ratelimit"
	"github.com/gamedock/gamedock/internal/pkg/usercontext"
	"github.com/gamedock/gamedock/internal/pkg/utils"
)

// APIAuthController serves session introspection and auth administration
// for API consumers.
type APIAuthController struct {
	broker  *auth.Broker
	limiter *ratelimit.Limiter
}

// NewAPIAuthController wires the controller onto the broker and limiter.
func NewAPIAuthController(broker *auth.Broker, limiter *ratelimit.Limiter) *APIAuthController {
	return &APIAuthController{broker: broker, limiter: limiter}
}

// HandleMe returns the caller's session context.
func (ac *APIAuthController) HandleMe(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	return c.JSON(fiber.Map{
		"user":       uc,
		"avatar_url": utils.GetGravatarURL(uc.Email, 80),
	})
}

// HandleAuthStatus reports the active provider, its capabilities and the
// aggregated auth event counters. Secrets are never echoed.
func (ac *APIAuthController) HandleAuthStatus(c *fiber.Ctx) error {
	id := ac.broker.ActiveProvider()
	caps := ac.broker.Capabilities()

	events, err := counter.Snapshot()
	if err != nil {
		log.Printf("auth event snapshot failed: %v", err)
		events = nil
	}

	return c.JSON(fiber.Map{
		"provider":     id,
		"capabilities": caps,
		"events":       events,
	})
}

// HandleRateLimitStatus reports the caller-specified bucket without
// recording a request.
func (ac *APIAuthController) HandleRateLimitStatus(c *fiber.Ctx) error {
	class := c.Query("class", ratelimit.ClassGeneral)
	client := c.Query("client", c.IP())
	res := ac.limiter.Status(c.UserContext(), class, client)
	return c.JSON(fiber.Map{
		"class":     class,
		"client":    client,
		"allowed":   res.Allowed,
		"limit":     res.Limit,
		"remaining": res.Remaining,
		"reset":     res.Reset.Unix(),
	})
}

// HandleRateLimitClear drops the caller-specified bucket.
func (ac *APIAuthController) HandleRateLimitClear(c *fiber.Ctx) error {
	class := c.Query("class", ratelimit.ClassGeneral)
	client := c.Query("client", c.IP())
	if err := ac.limiter.Clear(c.UserContext(), class, client); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to clear rate limit",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}
