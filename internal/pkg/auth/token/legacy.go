package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// legacyClaims is the payload of the older compact token format still
// issued for local accounts as a fallback:
// base64url(json payload) "." base64url(hmac-sha256 signature).
type legacyClaims struct {
	UserID    uint   `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// LegacyCodec verifies (and can still issue) the pre-JWT compact token.
type LegacyCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewLegacyCodec builds the fallback codec from the same shared secret.
func NewLegacyCodec(secret string, ttl time.Duration) *LegacyCodec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LegacyCodec{secret: []byte(secret), ttl: ttl}
}

// Issue produces a compact signed token.
func (c *LegacyCodec) Issue(userID uint, name, email string, isAdmin bool) (string, error) {
	now := time.Now().UTC()
	payload, err := json.Marshal(legacyClaims{
		UserID:    userID,
		Email:     email,
		Name:      name,
		IsAdmin:   isAdmin,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(c.ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	sig := mac.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify decodes and validates a legacy compact token. Two-part tokens that
// do not decode as base64url json are ErrNotThisFormat; decodable tokens
// with a wrong signature or past expiry are terminal failures.
func (c *LegacyCodec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, ErrNotThisFormat
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrNotThisFormat
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrNotThisFormat
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrInvalidToken
	}

	var lc legacyClaims
	if err := json.Unmarshal(payload, &lc); err != nil {
		return nil, ErrInvalidToken
	}
	if time.Now().Unix() > lc.ExpiresAt {
		return nil, ErrInvalidToken
	}

	return &Claims{
		UserID:  lc.UserID,
		Email:   lc.Email,
		Name:    lc.Name,
		IsAdmin: lc.IsAdmin,
		// Only local accounts ever received legacy tokens.
		Provider: "local",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   lc.Email,
			IssuedAt:  jwt.NewNumericDate(time.Unix(lc.IssuedAt, 0)),
			ExpiresAt: jwt.NewNumericDate(time.Unix(lc.ExpiresAt, 0)),
		},
	}, nil
}

// Chain tries each verifier in order. A verifier that answers
// ErrNotThisFormat hands over to the next; any other answer is final.
type Chain []Verifier

// Verify implements Verifier.
func (ch Chain) Verify(token string) (*Claims, error) {
	for _, v := range ch {
		claims, err := v.Verify(token)
		if err == nil {
			return claims, nil
		}
		if err == ErrNotThisFormat {
			continue
		}
		return nil, err
	}
	return nil, ErrInvalidToken
}
