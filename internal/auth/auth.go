// Package auth validates the opaque credential presented at handshake.
// Identity issuance lives outside the engine; the engine only checks that a
// presented token is valid and binds it to an identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid auth token")

// Verifier checks a handshake credential and returns the identity it proves.
type Verifier interface {
	Verify(token string) (identity string, err error)
}

// JWTVerifier validates HMAC-signed tokens carrying an identity claim.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a verifier for tokens signed with the given secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

type claims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

// Verify parses and validates the token, returning its identity claim.
func (v *JWTVerifier) Verify(token string) (string, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || c.Identity == "" {
		return "", ErrInvalidToken
	}
	return c.Identity, nil
}

// Issue signs a token for the identity. Used by tests and dev tooling; the
// production issuer is an external collaborator.
func (v *JWTVerifier) Issue(identity string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}

// Permissive accepts any non-empty token and treats it as the identity
// itself. Dev mode only.
type Permissive struct{}

// Verify implements Verifier.
func (Permissive) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}

// ForSecret picks the JWT verifier when a secret is configured, otherwise
// the permissive one.
func ForSecret(secret string) Verifier {
	if secret == "" {
		return Permissive{}
	}
	return NewJWTVerifier(secret)
}
