package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "gamedock"

// DefaultTTL is how long a session token stays valid after issuance.
const DefaultTTL = 24 * time.Hour

// ErrInvalidToken indicates the token failed verification for any terminal
// reason: bad signature, expired, malformed claims.
var ErrInvalidToken = errors.New("invalid token")

// ErrNotThisFormat tells a verifier chain to try the next strategy. It is
// returned only when the token's shape does not match at all, never for a
// token that matched the format but failed verification.
var ErrNotThisFormat = errors.New("token format not recognized")

// Claims represents the session claims carried by every token format.
type Claims struct {
	UserID   uint   `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// Verifier is one strategy for decoding a session token.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// Codec signs and verifies the primary JWT session token format (HS256).
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec builds a codec from the shared session signing secret.
func NewCodec(secret string, ttl time.Duration) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a session token for the given identity.
func (c *Codec) Issue(userID uint, subject, name, email, provider string, isAdmin bool) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}

	now := time.Now().UTC()
	claims := Claims{
		UserID:   userID,
		Email:    email,
		Name:     name,
		IsAdmin:  isAdmin,
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify decodes and validates a JWT session token. A token that is not
// JWT-shaped yields ErrNotThisFormat so a chain can try older formats; a
// JWT-shaped token that fails validation is terminal.
func (c *Codec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 || !strings.HasPrefix(token, "ey") {
		return nil, ErrNotThisFormat
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || time.Now().UTC().After(claims.ExpiresAt.Time) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
