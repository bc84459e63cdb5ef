// Package token encodes and decodes signed, expiring session tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds. An access token carries no kind claim; a refresh token
// carries TypeClaim set to KindRefresh.
const (
	TypeClaim   = "type"
	KindRefresh = "refresh"
)

// ErrInvalidToken is returned by Decode for any token that fails
// verification: bad signature, wrong algorithm, malformed payload, or
// past expiry.
var ErrInvalidToken = errors.New("invalid token")

// Codec issues and verifies JWT session tokens. The signing secret,
// algorithm and default lifetimes are fixed at construction.
type Codec struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCodec constructs a Codec. algorithm must name a symmetric HMAC
// method (HS256, HS384 or HS512).
func NewCodec(secret, algorithm string, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}

	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown signing algorithm %q", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing algorithm %q is not symmetric", algorithm)
	}

	return &Codec{
		secret:     []byte(secret),
		method:     method,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// IssueAccess signs an access token for subject. Extra claims are
// embedded as-is; ttl <= 0 selects the configured default.
func (c *Codec) IssueAccess(subject string, extra map[string]any, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.accessTTL
	}
	return c.sign(subject, extra, ttl, false)
}

// IssueRefresh signs a refresh token for subject, marked with the
// refresh kind claim. ttl <= 0 selects the configured default.
func (c *Codec) IssueRefresh(subject string, extra map[string]any, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.refreshTTL
	}
	return c.sign(subject, extra, ttl, true)
}

// Decode verifies the token's signature and expiry and returns its
// claims. It does not distinguish access from refresh tokens; callers
// inspect the kind claim. Any verification failure yields
// ErrInvalidToken.
func (c *Codec) Decode(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.secret, nil
	}, jwt.WithValidMethods([]string{c.method.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) sign(subject string, extra map[string]any, ttl time.Duration, refresh bool) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(ttl)),
	}
	for name, value := range extra {
		claims[name] = value
	}
	if refresh {
		claims[TypeClaim] = KindRefresh
	}

	return jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
}
