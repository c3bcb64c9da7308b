package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/gamedock/gamedock/app/models"
	"github.com/gamedock/gamedock/internal/pkg/auth"
	"github.com/gamedock/gamedock/internal/pkg/auth/token"
)

const testClientID = "gamedock-web"

type fakeUserRepo struct {
	byID   map[uint]*models.User
	nextID uint
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[uint]*models.User{}, nextID: 1}
}

func (f *fakeUserRepo) Create(user *models.User) error {
	user.ID = f.nextID
	f.nextID++
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetByID(id uint) (*models.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByEmail(email string) (*models.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByExternalID(externalID string) (*models.User, error) {
	for _, u := range f.byID {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) UpsertByExternalID(user *models.User) (bool, error) {
	if user.ExternalID == nil {
		return false, errors.New("missing external id")
	}
	if existing, err := f.GetByExternalID(*user.ExternalID); err == nil {
		user.ID = existing.ID
		f.byID[user.ID] = user
		return false, nil
	}
	return true, f.Create(user)
}

func (f *fakeUserRepo) Update(user *models.User) error {
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUserRepo) Deactivate(id uint, _ time.Time) error {
	u, ok := f.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.IsActive = false
	return nil
}

func (f *fakeUserRepo) List(int, int) ([]models.User, error) { return nil, nil }
func (f *fakeUserRepo) Count() (int64, error)                { return int64(len(f.byID)), nil }

// fakeIssuer serves the discovery document, the signing keys and the token
// endpoint of a minimal identity provider. Tests set idToken to control
// what the code exchange returns.
type fakeIssuer struct {
	srv     *httptest.Server
	key     *rsa.PrivateKey
	idToken string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating signing key: %v", err)
	}
	f := &fakeIssuer{key: key}

	mux := http.NewServeMux()
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                f.srv.URL,
			"authorization_endpoint":                f.srv.URL + "/authorize",
			"token_endpoint":                        f.srv.URL + "/token",
			"jwks_uri":                              f.srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, _ *http.Request) {
		pub := &f.key.PublicKey
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"kid": "test-key",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]any{
			"access_token": "at-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		if f.idToken != "" {
			resp["id_token"] = f.idToken
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	return f
}

// sign issues an ID token for this issuer; iss, aud and the validity window
// are filled in so tests only pass identity claims.
func (f *fakeIssuer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	claims["iss"] = f.srv.URL
	claims["aud"] = testClientID
	claims["iat"] = time.Now().Unix()
	claims["exp"] = time.Now().Add(time.Hour).Unix()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "test-key"
	signed, err := tok.SignedString(f.key)
	if err != nil {
		t.Fatalf("signing ID token: %v", err)
	}
	return signed
}

func newTestProvider(t *testing.T, f *fakeIssuer) (*Provider, *fakeUserRepo) {
	t.Helper()
	codec, err := token.NewCodec("oidc-test-secret-0123456789ab", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	repo := newFakeUserRepo()
	p, err := New(
		auth.Config{
			"CLIENT_ID":     testClientID,
			"CLIENT_SECRET": "oidc-client-secret",
			"ISSUER":        f.srv.URL,
			"ADMIN_GROUP":   "gamedock-admins",
		},
		auth.Deps{Users: repo, Codec: codec},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p.(*Provider), repo
}

func TestAuthorizationURL(t *testing.T) {
	f := newFakeIssuer(t)
	p, _ := newTestProvider(t, f)

	raw, err := p.AuthorizationURL(context.Background(), "https://app.example.com/auth/callback", "state-123")
	if err != nil {
		t.Fatalf("AuthorizationURL failed: %v", err)
	}
	if !strings.HasPrefix(raw, f.srv.URL+"/authorize") {
		t.Fatalf("URL = %q, want issuer authorize endpoint", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parsing URL: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "state-123" {
		t.Errorf("state = %q, want state-123", q.Get("state"))
	}
	if q.Get("redirect_uri") != "https://app.example.com/auth/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if q.Get("client_id") != testClientID {
		t.Errorf("client_id = %q, want %q", q.Get("client_id"), testClientID)
	}
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q, want code", q.Get("response_type"))
	}
	if !strings.Contains(q.Get("scope"), "openid") {
		t.Errorf("scope = %q, want openid included", q.Get("scope"))
	}
}

func TestHandleCallback(t *testing.T) {
	f := newFakeIssuer(t)
	p, repo := newTestProvider(t, f)
	f.idToken = f.sign(t, jwt.MapClaims{
		"sub":    "oidc-42",
		"email":  "carol@example.com",
		"name":   "Carol",
		"groups": []string{"players", "gamedock-admins"},
	})

	res, err := p.HandleCallback(context.Background(), "code-1", "", "https://app.example.com/auth/callback")
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if !res.Success || res.SessionToken == "" {
		t.Fatalf("result = %+v", res)
	}
	if res.User.Email != "carol@example.com" || res.User.Name != "Carol" {
		t.Errorf("user = %+v", res.User)
	}
	if !res.User.IsAdmin {
		t.Error("admin group membership not mapped to IsAdmin")
	}

	stored, err := repo.GetByExternalID("oidc-42")
	if err != nil {
		t.Fatalf("user not upserted: %v", err)
	}
	if stored.LastLoginAt == nil || stored.LastSyncedAt == nil {
		t.Errorf("timestamps missing: %+v", stored)
	}

	sess, err := p.VerifySession(context.Background(), res.SessionToken)
	if err != nil {
		t.Fatalf("VerifySession failed: %v", err)
	}
	if sess.AuthType != auth.ProviderOIDC || sess.Subject != "oidc-42" {
		t.Errorf("session = %+v", sess)
	}
}

func TestHandleCallbackClaimFallbacks(t *testing.T) {
	// No email or name claim; the display name falls back to
	// preferred_username and the email is synthesized from the subject.
	f := newFakeIssuer(t)
	p, _ := newTestProvider(t, f)
	f.idToken = f.sign(t, jwt.MapClaims{
		"sub":                "oidc-77",
		"preferred_username": "carol.d",
	})

	res, err := p.HandleCallback(context.Background(), "code-1", "", "https://app.example.com/auth/callback")
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if res.User.Name != "carol.d" {
		t.Errorf("Name = %q, want preferred_username fallback", res.User.Name)
	}
	if res.User.Email != "oidc-77@oidc.oidc.local" {
		t.Errorf("Email = %q, want synthesized address", res.User.Email)
	}
	if res.User.IsAdmin {
		t.Error("IsAdmin set without a groups claim")
	}
}

func TestHandleCallbackMissingIDToken(t *testing.T) {
	f := newFakeIssuer(t)
	p, _ := newTestProvider(t, f)
	// idToken stays empty so the token response carries no id_token.

	_, err := p.HandleCallback(context.Background(), "code-1", "", "https://app.example.com/auth/callback")
	var upstream *auth.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
}

func TestVerifySessionDeactivatedAccount(t *testing.T) {
	f := newFakeIssuer(t)
	p, repo := newTestProvider(t, f)
	f.idToken = f.sign(t, jwt.MapClaims{"sub": "oidc-42", "email": "carol@example.com"})

	res, err := p.HandleCallback(context.Background(), "code-1", "", "https://app.example.com/auth/callback")
	if err != nil || !res.Success {
		t.Fatalf("login failed: %+v %v", res, err)
	}

	stored, _ := repo.GetByExternalID("oidc-42")
	stored.IsActive = false
	if _, err := p.VerifySession(context.Background(), res.SessionToken); err == nil {
		t.Error("VerifySession accepted a deactivated account")
	}
}

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		name       string
		adminGroup string
		groups     []string
		want       bool
	}{
		{"member of admin group", "gamedock-admins", []string{"players", "gamedock-admins"}, true},
		{"not a member", "gamedock-admins", []string{"players"}, false},
		{"no groups", "gamedock-admins", nil, false},
		{"mapping disabled", "", []string{"gamedock-admins"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Provider{adminGroup: tt.adminGroup}
			if got := p.isAdmin(tt.groups); got != tt.want {
				t.Errorf("isAdmin(%v) = %v, want %v", tt.groups, got, tt.want)
			}
		})
	}
}
