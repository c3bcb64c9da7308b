package auth

import (
	"time"

	"github.com/gamedock/gamedock/internal/pkg/auth/token"
)

// SessionFromClaims maps verified token claims to the logical session.
func SessionFromClaims(c *token.Claims) *Session {
	s := &Session{
		Subject:     c.Subject,
		Name:        c.Name,
		Email:       c.Email,
		AuthType:    c.Provider,
		LocalUserID: c.UserID,
		IsAdmin:     c.IsAdmin,
		SessionID:   c.ID,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	} else {
		s.ExpiresAt = time.Now()
	}
	return s
}
