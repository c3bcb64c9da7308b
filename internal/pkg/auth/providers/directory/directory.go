// Package directory integrates a remote user-directory REST API: credential
// checks are proxied to it and the local user table is synchronized by
// periodic polling.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gamedock/gamedock/app/models"
	"github.com/gamedock/gamedock/app/repository"
	"github.com/gamedock/gamedock/internal/pkg/auth"
	"github.com/gamedock/gamedock/internal/pkg/auth/token"
)

const (
	upstreamTimeout = 10 * time.Second
	syncPageSize    = 100
)

// remoteUser is the directory API's user payload.
type remoteUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	IsAdmin  bool   `json:"is_admin"`
	IsActive bool   `json:"is_active"`
}

type Provider struct {
	baseURL string
	apiKey  string

	users    repository.UserRepository
	codec    *token.Codec
	verifier token.Verifier
	http     *http.Client
}

// New constructs the directory provider from its resolved config.
func New(cfg auth.Config, deps auth.Deps) (auth.Provider, error) {
	if cfg.Get("BASE_URL") == "" || cfg.Get("API_KEY") == "" {
		return nil, errors.New("directory provider requires BASE_URL and API_KEY")
	}
	if deps.Users == nil || deps.Codec == nil {
		return nil, errors.New("directory provider requires user repository and token codec")
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
		baseURL:  strings.TrimRight(cfg.Get("BASE_URL"), "/"),
		apiKey:   cfg.Get("API_KEY"),
		users:    deps.Users,
		codec:    deps.Codec,
		verifier: verifier,
		http:     client,
	}, nil
}

func (p *Provider) ID() string {
	return auth.ProviderDirectory
}

// Authenticate forwards the credentials to the directory API and mirrors
// the returned identity locally on success. The failure message matches the
// local provider's generic one.
func (p *Provider) Authenticate(ctx context.Context, creds auth.Credentials) (*auth.AuthResult, error) {
	email := creds.Email
	if email == "" {
		email = creds.Username
	}

	body, err := json.Marshal(map[string]string{"email": email, "password": creds.Password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/v1/auth", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, &auth.UpstreamError{Provider: auth.ProviderDirectory, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &auth.AuthResult{Success: false, Error: auth.ErrInvalidCredentials.Error()}, nil
	default:
		return nil, &auth.UpstreamError{Provider: auth.ProviderDirectory, Status: resp.StatusCode}
	}

	var remote remoteUser
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		return nil, &auth.UpstreamError{Provider: auth.ProviderDirectory, Err: fmt.Errorf("decode auth response: %w", err)}
	}
	if remote.ID == "" {
		return nil, &auth.UpstreamError{Provider: auth.ProviderDirectory, Err: errors.New("auth response has no user id")}
	}

	user, _, err := p.upsertRemote(&remote)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return &auth.AuthResult{Success: false, Error: auth.ErrInvalidCredentials.Error()}, nil
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := p.users.Update(user); err != nil {
		log.Printf("directory: updating last login for user %d failed: %v", user.ID, err)
	}

	sessionToken, err := p.codec.Issue(user.ID, remote.ID, user.Name, user.Email, auth.ProviderDirectory, user.IsAdmin)
	if err != nil {
		return nil, err
	}

	return &auth.AuthResult{Success: true, User: user, SessionToken: sessionToken}, nil
}

// SyncUser fetches a single directory user and mirrors it locally.
func (p *Provider) SyncUser(ctx context.Context, externalID string) (*models.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/v1/users/"+externalID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, &auth.UpstreamError{Provider: auth.ProviderDirectory, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &auth.UpstreamError{Provider: auth.ProviderDirectory, Status: resp.StatusCode}
	}

	var remote remoteUser
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		return nil, &auth.UpstreamError{Provider: auth.ProviderDirectory, Err: fmt.Errorf("decode user response: %w", err)}
	}

	user, _, err := p.upsertRemote(&remote)
	return user, err
}

// SyncAllUsers pages through the directory and upserts every user. A single
// bad record counts as an error without aborting the pass.
func (p *Provider) SyncAllUsers(ctx context.Context) (*auth.SyncResult, error) {
	result := &auth.SyncResult{}

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/api/v1/users?page=%d&pageSize=%d", p.baseURL, page, syncPageSize)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return result, err
		}
		req.Header.Set("X-Api-Key", p.apiKey)

		resp, err := p.http.Do(req)
		if err != nil {
			return result, &auth.UpstreamError{Provider: auth.ProviderDirectory, Err: err}
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return result, &auth.UpstreamError{Provider: auth.ProviderDirectory, Status: resp.StatusCode}
		}

		var pageBody struct {
			Users []remoteUser `json:"users"`
		}
		err = json.NewDecoder(resp.Body).Decode(&pageBody)
		resp.Body.Close()
		if err != nil {
			return result, &auth.UpstreamError{Provider: auth.ProviderDirectory, Err: fmt.Errorf("decode user page: %w", err)}
		}

		for i := range pageBody.Users {
			_, created, err := p.upsertRemote(&pageBody.Users[i])
			if err != nil {
				log.Printf("directory sync: user %q failed: %v", pageBody.Users[i].ID, err)
				result.Errors++
				continue
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}

		if len(pageBody.Users) < syncPageSize {
			return result, nil
		}
	}
}

// VerifySession verifies the locally-issued session token and re-checks the
// mirrored account state.
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

func (p *Provider) upsertRemote(remote *remoteUser) (*models.User, bool, error) {
	if remote.ID == "" {
		return nil, false, errors.New("remote user has no id")
	}
	if remote.Email == "" {
		return nil, false, fmt.Errorf("remote user %q has no email", remote.ID)
	}

	externalID := remote.ID
	raw, _ := json.Marshal(remote)
	now := time.Now()
	user := &models.User{
		Name:         firstNonEmpty(remote.Name, remote.Email),
		Email:        remote.Email,
		ExternalID:   &externalID,
		IsAdmin:      remote.IsAdmin,
		IsActive:     remote.IsActive,
		LastSyncedAt: &now,
		ExternalData: string(raw),
	}
	created, err := p.users.UpsertByExternalID(user)
	if err != nil {
		return nil, false, err
	}
	user, err = p.users.GetByExternalID(externalID)
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
