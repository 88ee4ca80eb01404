package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	sessionIssuer    = "musiclib"
	sessionTokenType = "access"
)

// ErrInvalidSession covers malformed, expired, revoked or foreign tokens.
var ErrInvalidSession = errors.New("invalid session token")

type sessionClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// SessionManager issues and validates HS256 bearer tokens for logged-in users.
type SessionManager struct {
	secret  []byte
	ttl     time.Duration
	revoker TokenRevoker
	now     func() time.Time
}

// NewSessionManager builds a manager. revoker may be nil, which disables logout.
func NewSessionManager(secret string, ttl time.Duration, revoker TokenRevoker) (*SessionManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &SessionManager{
		secret:  []byte(secret),
		ttl:     ttl,
		revoker: revoker,
		now:     time.Now,
	}, nil
}

// NewSession issues a token for userID.
func (m *SessionManager) NewSession(userID int64) (string, error) {
	now := m.now()
	claims := sessionClaims{
		TokenType: sessionTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

// UserID validates token and returns its subject.
func (m *SessionManager) UserID(ctx context.Context, token string) (int64, error) {
	claims, err := m.parse(token)
	if err != nil {
		return 0, err
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrInvalidSession
	}
	if m.revoker == nil {
		return userID, nil
	}
	revoked, err := m.revoker.IsRevoked(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return 0, ErrInvalidSession
	}
	cutoff, err := m.revoker.RevokedAfter(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("check user revocation: %w", err)
	}
	if !cutoff.IsZero() && claims.IssuedAt.Before(cutoff.Truncate(time.Second)) {
		return 0, ErrInvalidSession
	}
	return userID, nil
}

// Revoke invalidates token for the rest of its lifetime.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	claims, err := m.parse(token)
	if err != nil {
		return ErrInvalidSession
	}
	if m.revoker == nil {
		return nil
	}
	return m.revoker.Revoke(ctx, token, claims.ExpiresAt.Sub(m.now()))
}

// RevokeUser invalidates every session of userID issued before now.
func (m *SessionManager) RevokeUser(ctx context.Context, userID int64) error {
	if m.revoker == nil {
		return nil
	}
	return m.revoker.RevokeUser(ctx, userID, m.now())
}

func (m *SessionManager) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	if claims.TokenType != sessionTokenType || claims.IssuedAt == nil {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
