// Package token issues and verifies the signed bearer tokens used by the
// auth service. Tokens are self-contained HS256 JWTs; admin tokens are
// additionally checked against the session registry by the caller.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMalformed        = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

// Principal kinds carried in the token claims.
const (
	KindUser  = "user"
	KindAdmin = "admin"
)

// Claims is the claim set encoded into every bearer token.
type Claims struct {
	PrincipalKind string `json:"kind"`
	jwt.RegisteredClaims
}

// SubjectID returns the principal id the token was issued for.
func (c *Claims) SubjectID() string {
	return c.Subject
}

// Codec signs and verifies bearer tokens with a single process-wide secret.
// Rotating the secret invalidates every outstanding token; callers must treat
// rotation as a deliberate mass logout.
type Codec struct {
	secret     []byte
	issuer     string
	defaultTTL time.Duration
}

func NewCodec(secret, issuer string, defaultTTL time.Duration) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: signing secret is required")
	}
	if defaultTTL <= 0 {
		defaultTTL = 7 * 24 * time.Hour
	}
	return &Codec{
		secret:     []byte(secret),
		issuer:     issuer,
		defaultTTL: defaultTTL,
	}, nil
}

// Issue creates a signed token for the given principal. A non-positive ttl
// falls back to the codec default.
func (c *Codec) Issue(subjectID, principalKind string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()

	claims := &Claims{
		PrincipalKind: principalKind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded claims.
// Verification is a pure computation with no side effects.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}
	if claims.Subject == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}
