package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken is returned when no bearer credential has been supplied.
	ErrNoToken = errors.New("no bearer token available")
	// ErrTokenExpired is returned when the supplied token's exp claim has
	// already passed. Connecting with it would only earn a 4001 close, so
	// the transport fails fast instead.
	ErrTokenExpired = errors.New("bearer token is expired")
)

// TokenSource supplies the bearer credential used for the socket query
// parameter and the REST Authorization header.
type TokenSource interface {
	Token() (string, error)
}

// Credentials is a mutable TokenSource. It validates the token's expiry
// claim client-side on every read; the signature is the server's business.
type Credentials struct {
	mu     sync.RWMutex
	token  string
	parser *jwt.Parser
}

func NewCredentials(token string) *Credentials {
	return &Credentials{
		token:  token,
		parser: jwt.NewParser(),
	}
}

// SetToken replaces the stored token, e.g. after a login or refresh.
func (c *Credentials) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token, or an error when it is missing or
// expired.
func (c *Credentials) Token() (string, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == "" {
		return "", ErrNoToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse bearer token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return "", fmt.Errorf("read token expiry: %w", err)
	}
	if exp != nil && exp.Before(time.Now()) {
		return "", ErrTokenExpired
	}
	return token, nil
}
