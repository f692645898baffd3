// Package token issues and verifies the signed bearer credentials
// returned by successful authentication flows.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vaultgate/vaultgate/internal/shared"
)

// DefaultTTL is the bearer credential validity window.
const DefaultTTL = 7 * 24 * time.Hour

// Claims carries the authenticated identity inside the token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
	Email  string `json:"email"`
}

// Issuer mints and verifies HS256 bearer tokens with a process-wide secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer constructs an Issuer. The secret must be non-empty; startup
// validation belongs to the config layer, this is the last line of defense.
func NewIssuer(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: signing secret required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}, nil
}

// WithNow overrides the issuer clock for testing.
func (i *Issuer) WithNow(fn func() time.Time) {
	if fn != nil {
		i.now = fn
	}
}

// Issue signs a token carrying the user id and email.
func (i *Issuer) Issue(userID, email string) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		UserID: userID,
		Email:  email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
// Signature failures, wrong algorithms, and expiry all surface as
// shared.ErrInvalidToken.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, shared.ErrInvalidToken
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, shared.ErrInvalidToken
	}
	return claims, nil
}
