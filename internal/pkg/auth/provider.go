package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/gamedock/gamedock/app/models"
	"github.com/gamedock/gamedock/app/repository"
	"github.com/gamedock/gamedock/internal/pkg/auth/token"
)

// Session is the logical result of a verified token. It is never persisted
// as a row; it lives only in tokens and short-lived caches.
type Session struct {
	Subject     string    `json:"subject"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	AuthType    string    `json:"auth_type"`
	LocalUserID uint      `json:"local_user_id,omitempty"`
	IsAdmin     bool      `json:"is_admin"`
	SessionID   string    `json:"session_id"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Credentials carries a username/password login attempt. Email and Username
// are aliases; providers use whichever is set.
type Credentials struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResult is the provider's answer to a credential or callback login.
// The manager passes it through unchanged.
type AuthResult struct {
	Success      bool         `json:"success"`
	Error        string       `json:"error,omitempty"`
	User         *models.User `json:"user,omitempty"`
	SessionToken string       `json:"sessionToken,omitempty"`
}

// SyncResult aggregates the outcome of a user synchronization pass.
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// WebhookResult is returned to the webhook caller.
type WebhookResult struct {
	Success bool   `json:"success"`
	Action  string `json:"action,omitempty"`
	Error   string `json:"error,omitempty"`
	// Set for bulk sync deliveries.
	Created int `json:"created,omitempty"`
	Updated int `json:"updated,omitempty"`
	Errors  int `json:"errors,omitempty"`
}

// Provider is the operation set every strategy implements. Optional
// operations live on the capability interfaces below; calling code checks
// for them with a type assertion and raises a CapabilityError on mismatch.
type Provider interface {
	ID() string
	VerifySession(ctx context.Context, token string) (*Session, error)
}

// CallbackProvider is implemented by redirect-based SSO strategies.
type CallbackProvider interface {
	Provider
	AuthorizationURL(ctx context.Context, redirectURI, state string) (string, error)
	HandleCallback(ctx context.Context, code, state, redirectURI string) (*AuthResult, error)
}

// CredentialProvider is implemented by strategies that accept a password.
type CredentialProvider interface {
	Provider
	Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error)
}

// SyncProvider is implemented by strategies that mirror an external user
// directory. Push-based providers return nil from both methods; they are
// synced by incoming deliveries, not by polling.
type SyncProvider interface {
	Provider
	SyncUser(ctx context.Context, externalID string) (*models.User, error)
	SyncAllUsers(ctx context.Context) (*SyncResult, error)
}

// WebhookProvider is implemented by push-based strategies.
type WebhookProvider interface {
	Provider
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
}

// LogoutProvider is implemented by strategies with server-side logout work.
type LogoutProvider interface {
	Provider
	Logout(ctx context.Context, token string) error
}

// Deps is everything a provider constructor may need. Injected through the
// registry so providers never reach for package-level state.
type Deps struct {
	Users    repository.UserRepository
	Roles    repository.RoleRepository
	Audit    repository.AuditLogRepository
	Codec    *token.Codec
	Verifier token.Verifier
	// HTTP bounds every outbound identity-provider call; a nil client
	// means the provider picks its own timeout-bounded default.
	HTTP *http.Client
}

// Factory constructs a provider from its resolved config.
type Factory func(cfg Config, deps Deps) (Provider, error)
