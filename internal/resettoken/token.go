// Package resettoken issues signed, expiring password-reset tokens.
// Tokens are stateless: validity depends only on signature, purpose and age.
package resettoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	// Purpose distinguishes reset tokens from any other token signed with the
	// same secret.
	Purpose    = "password_reset"
	DefaultTTL = 30 * time.Minute
	issuer     = "musiclib"
)

type claims struct {
	UserID  int64  `json:"uid"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies reset tokens with an HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer builds an Issuer. ttl <= 0 falls back to DefaultTTL.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("reset token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the default lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for userID with the default lifetime.
func (i *Issuer) Issue(userID int64) (string, error) {
	return i.IssueWithTTL(userID, i.ttl)
}

// IssueWithTTL signs a token valid for ttl. A negative ttl yields a token that
// is already expired.
func (i *Issuer) IssueWithTTL(userID int64, ttl time.Duration) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("invalid user id %d", userID)
	}
	now := i.now()
	c := claims{
		UserID:  userID,
		Purpose: Purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return token, nil
}

// Verify returns the user id carried by token. ok is false for expired,
// tampered, malformed or wrong-purpose tokens.
func (i *Issuer) Verify(token string) (userID int64, ok bool) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return 0, false
	}
	if c.Purpose != Purpose || c.UserID <= 0 {
		return 0, false
	}
	return c.UserID, true
}
