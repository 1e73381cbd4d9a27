// Package session issues and verifies the short-lived tokens that bind a
// sandboxed tool instance to the invoking user's identity and department.
// The department in the token, not anything the sandbox asserts, is what
// every bridge request is authorized against.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid bridge session token")
	ErrExpiredToken = errors.New("bridge session expired")
)

// Session is the verified identity a bridge request runs under.
type Session struct {
	ToolID     string
	UserID     string
	Department string
}

// claims is the JWT payload for a bridge session.
type claims struct {
	ToolID     string `json:"tool_id"`
	UserID     string `json:"user_id"`
	Department string `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies bridge session tokens with an HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates an Issuer. TTL defaults to 15 minutes.
func NewIssuer(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{secret: secret, ttl: ttl}, nil
}

// Issue mints a token for one tool run by one user.
func (i *Issuer) Issue(toolID, userID, department string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ToolID:     toolID,
		UserID:     userID,
		Department: department,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("Issue: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the bound session.
func (i *Issuer) Verify(tokenString string) (*Session, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || c.ToolID == "" || c.UserID == "" {
		return nil, ErrInvalidToken
	}

	return &Session{
		ToolID:     c.ToolID,
		UserID:     c.UserID,
		Department: c.Department,
	}, nil
}
