package constants

// Static route constants
const (
	LoginRoute        = "/login"
	AuthLoginRoute    = "/auth/login"
	AuthCallbackRoute = "/auth/callback"
	AuthLogoutRoute   = "/auth/logout"
	AuthWebhookRoute  = "/auth/webhook"
)
