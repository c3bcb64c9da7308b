package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/gamedock/gamedock/internal/pkg/auth"
	"github.com/gamedock/gamedock/internal/pkg/metrics/counter"
)

// SignatureHeader carries the HMAC of the raw webhook body.
const SignatureHeader = "X-Webhook-Signature"

// WebhookController receives pushed identity events.
type WebhookController struct {
	broker *auth.Broker
}

// NewWebhookController wires the controller onto the broker.
func NewWebhookController(broker *auth.Broker) *WebhookController {
	return &WebhookController{broker: broker}
}

// HandleWebhook verifies and applies one delivery. The raw body is passed
// untouched so the signature is computed over exactly what was sent.
func (wc *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get(SignatureHeader)

	result, err := wc.broker.HandleWebhook(c.UserContext(), payload, signature)
	if err != nil {
		recordEvent(counter.EventWebhookRejected)
		if errors.Is(err, auth.ErrInvalidSignature) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "invalid signature",
			})
		}
		var capErr *auth.CapabilityError
		if errors.As(err, &capErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "webhooks are not supported by the active provider",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "webhook processing failed",
		})
	}

	if !result.Success {
		recordEvent(counter.EventWebhookRejected)
		return c.Status(fiber.StatusBadRequest).JSON(result)
	}
	recordEvent(counter.EventWebhookAccepted)
	return c.JSON(result)
}
