// Package local implements password authentication against the user table.
package local

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/gamedock/gamedock/app/models"
	"github.com/gamedock/gamedock/app/repository"
	"github.com/gamedock/gamedock/internal/pkg/auth"
	"github.com/gamedock/gamedock/internal/pkg/auth/token"
)

type Provider struct {
	users    repository.UserRepository
	codec    *token.Codec
	verifier token.Verifier
}

// New constructs the local provider. It only needs the user repository and
// the shared token codec.
func New(_ auth.Config, deps auth.Deps) (auth.Provider, error) {
	if deps.Users == nil || deps.Codec == nil {
		return nil, errors.New("local provider requires user repository and token codec")
	}
	verifier := deps.Verifier
	if verifier == nil {
		verifier = deps.Codec
	}
	return &Provider{users: deps.Users, codec: deps.Codec, verifier: verifier}, nil
}

func (p *Provider) ID() string {
	return auth.ProviderLocal
}

// Authenticate checks the password against the stored bcrypt hash. The
// failure message is identical for unknown accounts and wrong passwords.
func (p *Provider) Authenticate(_ context.Context, creds auth.Credentials) (*auth.AuthResult, error) {
	email := creds.Email
	if email == "" {
		email = creds.Username
	}

	failure := &auth.AuthResult{Success: false, Error: auth.ErrInvalidCredentials.Error()}

	user, err := p.users.GetByEmail(email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("local auth: lookup for %q failed: %v", email, err)
		}
		return failure, nil
	}
	if !user.IsActive || !user.IsLocal() {
		return failure, nil
	}
	if !user.CheckPassword(creds.Password) {
		return failure, nil
	}

	tok, err := p.issueToken(user)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := p.users.Update(user); err != nil {
		log.Printf("local auth: updating last login for user %d failed: %v", user.ID, err)
	}

	return &auth.AuthResult{Success: true, User: user, SessionToken: tok}, nil
}

// CreateUser registers a password-backed account.
func (p *Provider) CreateUser(_ context.Context, name, email, password string) (*models.User, error) {
	user, err := models.NewLocalUser(name, email, password)
	if err != nil {
		return nil, err
	}
	if err := p.users.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword verifies the current password before accepting a new one.
func (p *Provider) ChangePassword(_ context.Context, userID uint, current, next string) error {
	user, err := p.users.GetByID(userID)
	if err != nil {
		return err
	}
	if !user.CheckPassword(current) {
		return auth.ErrInvalidCredentials
	}
	if err := user.SetPassword(next); err != nil {
		return err
	}
	return p.users.Update(user)
}

// ResetPassword sets a new password without the current one. Callers gate
// this behind their own verification (admin action or reset token).
func (p *Provider) ResetPassword(_ context.Context, userID uint, next string) error {
	user, err := p.users.GetByID(userID)
	if err != nil {
		return err
	}
	if err := user.SetPassword(next); err != nil {
		return err
	}
	return p.users.Update(user)
}

// VerifySession verifies the token and re-checks that the account is still
// active. A deactivated account fails verification even while its token is
// unexpired.
func (p *Provider) VerifySession(_ context.Context, tok string) (*auth.Session, error) {
	claims, err := p.verifier.Verify(tok)
	if err != nil {
		return nil, err
	}

	user, err := p.users.GetByID(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("session user lookup: %w", err)
	}
	if !user.IsActive {
		return nil, errors.New("account is deactivated")
	}

	return auth.SessionFromClaims(claims), nil
}

func (p *Provider) issueToken(user *models.User) (string, error) {
	return p.codec.Issue(user.ID, user.Email, user.Name, user.Email, auth.ProviderLocal, user.IsAdmin)
}
