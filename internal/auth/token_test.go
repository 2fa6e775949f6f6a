package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestMissingToken(t *testing.T) {
	creds := NewCredentials("")
	_, err := creds.Token()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestExpiredTokenIsRejectedClientSide(t *testing.T) {
	creds := NewCredentials(signedToken(t, jwt.MapClaims{
		"sub": "u-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}))
	_, err := creds.Token()
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidToken(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{
		"sub": "u-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	creds := NewCredentials(raw)

	got, err := creds.Token()
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestTokenWithoutExpiryIsAccepted(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{"sub": "u-1"})
	creds := NewCredentials(raw)

	_, err := creds.Token()
	assert.NoError(t, err)
}

func TestMalformedToken(t *testing.T) {
	creds := NewCredentials("not-a-jwt")
	_, err := creds.Token()
	assert.Error(t, err)
}

func TestSetTokenSwapsCredential(t *testing.T) {
	creds := NewCredentials("")
	creds.SetToken(signedToken(t, jwt.MapClaims{"sub": "u-1"}))

	_, err := creds.Token()
	assert.NoError(t, err)
}
