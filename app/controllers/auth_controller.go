package controllers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/gamedock/gamedock/internal/pkg/auth"
	"github.com/gamedock/gamedock/internal/pkg/env"
	"github.com/gamedock/gamedock/internal/pkg/hcaptcha"
	"github.com/gamedock/gamedock/internal/pkg/metrics/counter"
	"github.com/gamedock/gamedock/internal/pkg/session"
	"github.com/gamedock/gamedock/internal/pkg/usercontext"
)

// AuthController exposes the broker's login, callback, credential and
// logout operations over HTTP.
type AuthController struct {
	broker *auth.Broker
}

// NewAuthController wires the controller onto the broker.
func NewAuthController(broker *auth.Broker) *AuthController {
	return &AuthController{broker: broker}
}

// HandleLogin starts a login: it issues an unguessable state value, stores
// it for this client, and redirects to the provider's authorization URL.
// Local auth redirects to the internal login page instead.
func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	state := uuid.NewString()
	redirectURI := callbackURL(c)

	authURL, err := ac.broker.AuthorizationURL(c.UserContext(), redirectURI, state)
	if err != nil {
		var capErr *auth.CapabilityError
		if errors.As(err, &capErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "login redirect is not supported by the active provider",
			})
		}
		return loginFailure(c, err)
	}

	if authURL == "/login" {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	if err := session.PutState(c, state); err != nil {
		return loginFailure(c, err)
	}
	return c.Redirect(authURL, fiber.StatusFound)
}

// HandleCallback completes the redirect flow. The state from the query must
// match the one stored for this client before the broker is involved.
func (ac *AuthController) HandleCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "missing code or state",
		})
	}

	stored := session.TakeState(c)
	if stored == "" || stored != state {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "state mismatch",
		})
	}

	result, err := ac.broker.HandleCallback(c.UserContext(), code, state, callbackURL(c))
	if err != nil {
		recordEvent(counter.EventCallbackFailure)
		return loginFailure(c, err)
	}
	if !result.Success {
		recordEvent(counter.EventCallbackFailure)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   result.Error,
		})
	}

	recordEvent(counter.EventCallbackSuccess)
	setSessionCookie(c, result.SessionToken)
	return c.Redirect("/", fiber.StatusSeeOther)
}

// HandleLocalLogin performs a credential login. The provider's result shape
// is returned as-is. When a captcha secret is configured, the challenge
// token must verify before the credentials are even looked at.
func (ac *AuthController) HandleLocalLogin(c *fiber.Ctx) error {
	var body struct {
		auth.Credentials
		CaptchaToken string `json:"captcha_token" form:"h-captcha-response"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "malformed request body",
		})
	}

	if hcaptcha.Enabled() {
		ok, err := hcaptcha.Verify(c.UserContext(), body.CaptchaToken)
		if err != nil || !ok {
			recordEvent(counter.EventLoginFailure)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "captcha validation failed",
			})
		}
	}

	result, err := ac.broker.Authenticate(c.UserContext(), body.Credentials)
	if err != nil {
		var capErr *auth.CapabilityError
		if errors.As(err, &capErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "credential login is not supported by the active provider",
			})
		}
		return loginFailure(c, err)
	}
	if !result.Success {
		recordEvent(counter.EventLoginFailure)
		return c.Status(fiber.StatusUnauthorized).JSON(result)
	}

	recordEvent(counter.EventLoginSuccess)
	setSessionCookie(c, result.SessionToken)
	return c.JSON(result)
}

// HandleLogout clears the session regardless of prior state.
func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	tok := c.Cookies(usercontext.SessionCookie)
	if tok != "" {
		// Broker logout never fails; provider errors are absorbed there.
		_ = ac.broker.Logout(c.UserContext(), tok)
		recordEvent(counter.EventLogout)
	}
	clearSessionCookie(c)
	return c.JSON(fiber.Map{"success": true})
}

func callbackURL(c *fiber.Ctx) string {
	base := env.GetEnv("PUBLIC_DOMAIN", "")
	if base == "" {
		base = c.BaseURL()
	}
	return base + "/auth/callback"
}

func setSessionCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     usercontext.SessionCookie,
		Value:    token,
		HTTPOnly: true,
		SameSite: "Lax",
		Secure:   !env.IsDev(),
		Expires:  time.Now().Add(24 * time.Hour),
		Path:     "/",
	})
}

func clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     usercontext.SessionCookie,
		Value:    "",
		HTTPOnly: true,
		SameSite: "Lax",
		Secure:   !env.IsDev(),
		Expires:  time.Now().Add(-time.Hour),
		Path:     "/",
	})
}

// recordEvent counts an auth event, best effort.
func recordEvent(event string) {
	if err := counter.Add(event); err != nil {
		log.Printf("auth event counter %s failed: %v", event, err)
	}
}

// loginFailure hides internal error detail from the user; the reason is
// logged by the broker or provider that produced it.
func loginFailure(c *fiber.Ctx, _ error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "There is a problem with the login process",
	})
}
