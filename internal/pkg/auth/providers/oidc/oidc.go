// Package oidc implements the browser-redirect single-sign-on strategy via
// the OIDC authorization-code flow.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/gamedock/gamedock/app/models"
	"github.com/gamedock/gamedock/app/repository"
	"github.com/gamedock/gamedock/internal/pkg/auth"
	"github.com/gamedock/gamedock/internal/pkg/auth/token"
)

// upstreamTimeout bounds every call to the identity provider's token and
// userinfo endpoints so a slow issuer cannot hang a login indefinitely.
const upstreamTimeout = 10 * time.Second

type Provider struct {
	clientID     string
	clientSecret string
	issuerURL    string
	scopes       []string
	adminGroup   string

	users    repository.UserRepository
	codec    *token.Codec
	verifier token.Verifier
	http     *http.Client

	// Discovery runs lazily on first use so constructing the provider
	// never dials the network.
	mu       sync.Mutex
	provider *gooidc.Provider
	idVerify *gooidc.IDTokenVerifier
}

// New constructs the OIDC provider from its resolved config.
func New(cfg auth.Config, deps auth.Deps) (auth.Provider, error) {
	if cfg.Get("CLIENT_ID") == "" || cfg.Get("CLIENT_SECRET") == "" || cfg.Get("ISSUER") == "" {
		return nil, errors.New("oidc provider requires CLIENT_ID, CLIENT_SECRET and ISSUER")
	}
	if deps.Users == nil || deps.Codec == nil {
		return nil, errors.New("oidc provider requires user repository and token codec")
	}

	scopes := []string{gooidc.ScopeOpenID, "profile", "email"}
	if raw := cfg.Get("SCOPES"); raw != "" {
		scopes = strings.Fields(raw)
	}

	client := deps.HTTP
	if client == nil {
		client = &http.Client{Timeout: upstreamTimeout}
	}

	verifier := deps.Verifier
	if verifier == nil {
		verifier = deps.Codec
	}

	return &Provider{
		clientID:     cfg.Get("CLIENT_ID"),
		clientSecret: cfg.Get("CLIENT_SECRET"),
		issuerURL:    cfg.Get("ISSUER"),
		scopes:       scopes,
		adminGroup:   cfg.Get("ADMIN_GROUP"),
		users:        deps.Users,
		codec:        deps.Codec,
		verifier:     verifier,
		http:         client,
	}, nil
}

func (p *Provider) ID() string {
	return auth.ProviderOIDC
}

func (p *Provider) discover(ctx context.Context) (*gooidc.Provider, *gooidc.IDTokenVerifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.provider != nil {
		return p.provider, p.idVerify, nil
	}

	ctx = gooidc.ClientContext(ctx, p.http)
	provider, err := gooidc.NewProvider(ctx, p.issuerURL)
	if err != nil {
		return nil, nil, &auth.UpstreamError{Provider: auth.ProviderOIDC, Err: fmt.Errorf("issuer discovery: %w", err)}
	}
	p.provider = provider
	p.idVerify = provider.Verifier(&gooidc.Config{ClientID: p.clientID})
	return p.provider, p.idVerify, nil
}

func (p *Provider) oauthConfig(provider *gooidc.Provider, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  redirectURI,
		Scopes:       p.scopes,
	}
}

// AuthorizationURL builds the issuer redirect carrying the caller's state.
func (p *Provider) AuthorizationURL(ctx context.Context, redirectURI, state string) (string, error) {
	provider, _, err := p.discover(ctx)
	if err != nil {
		return "", err
	}
	return p.oauthConfig(provider, redirectURI).AuthCodeURL(state), nil
}

// HandleCallback exchanges the authorization code, verifies the ID token,
// upserts the user by external id and issues a session token. The caller
// has already compared the state value against the one it issued.
func (p *Provider) HandleCallback(ctx context.Context, code, _, redirectURI string) (*auth.AuthResult, error) {
	provider, idVerify, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	ctx = gooidc.ClientContext(ctx, p.http)
	oauth2Token, err := p.oauthConfig(provider, redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, &auth.UpstreamError{Provider: auth.ProviderOIDC, Err: fmt.Errorf("code exchange: %w", err)}
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, &auth.UpstreamError{Provider: auth.ProviderOIDC, Err: errors.New("missing id_token in token response")}
	}
	idToken, err := idVerify.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify ID token: %w", err)
	}

	var claims struct {
		Subject           string   `json:"sub"`
		Email             string   `json:"email"`
		Name              string   `json:"name"`
		PreferredUsername string   `json:"preferred_username"`
		Groups            []string `json:"groups"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse ID token claims: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("ID token has no subject")
	}

	name := firstNonEmpty(claims.Name, claims.PreferredUsername, claims.Email, "User")
	email := claims.Email
	if email == "" {
		// Satisfy the email uniqueness constraint for issuers that do
		// not release an email claim.
		email = fmt.Sprintf("%s@%s.oidc.local", claims.Subject, auth.ProviderOIDC)
	}

	externalID := claims.Subject
	now := time.Now()
	user := &models.User{
		Name:         name,
		Email:        email,
		ExternalID:   &externalID,
		IsAdmin:      p.isAdmin(claims.Groups),
		IsActive:     true,
		LastSyncedAt: &now,
	}
	if _, err := p.users.UpsertByExternalID(user); err != nil {
		return nil, fmt.Errorf("upsert oidc user: %w", err)
	}
	// Re-read so we hold the local primary key after an update path.
	user, err = p.users.GetByExternalID(externalID)
	if err != nil {
		return nil, fmt.Errorf("load oidc user: %w", err)
	}
	if !user.IsActive {
		return &auth.AuthResult{Success: false, Error: "account is deactivated"}, nil
	}

	user.LastLoginAt = &now
	if err := p.users.Update(user); err != nil {
		log.Printf("oidc: updating last login for user %d failed: %v", user.ID, err)
	}

	sessionToken, err := p.codec.Issue(user.ID, externalID, user.Name, user.Email, auth.ProviderOIDC, user.IsAdmin)
	if err != nil {
		return nil, err
	}

	return &auth.AuthResult{Success: true, User: user, SessionToken: sessionToken}, nil
}

// VerifySession verifies the locally-issued session token and re-checks the
// account state.
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

func (p *Provider) isAdmin(groups []string) bool {
	if p.adminGroup == "" {
		return false
	}
	for _, g := range groups {
		if g == p.adminGroup {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
