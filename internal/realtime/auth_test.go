package realtime

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthManager_ValidateToken(t *testing.T) {
	auth := NewAuthManager(testSecret)

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "user-123",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	identity, err := auth.ValidateToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-123", identity.UserID())
	assert.False(t, identity.IsAnonymous())
}

func TestAuthManager_ValidateTokenSubjectFallback(t *testing.T) {
	auth := NewAuthManager(testSecret)

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-456",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	identity, err := auth.ValidateToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-456", identity.UserID())
}

func TestAuthManager_ValidateTokenRejectsWrongSecret(t *testing.T) {
	auth := NewAuthManager(testSecret)

	tokenString := signToken(t, "wrong-secret", jwt.MapClaims{
		"user_id": "user-123",
	})

	_, err := auth.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestAuthManager_ValidateTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager(testSecret)

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "user-123",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	_, err := auth.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestAuthManager_IdentityFromRequest(t *testing.T) {
	auth := NewAuthManager(testSecret)

	t.Run("bearer header yields user identity", func(t *testing.T) {
		tokenString := signToken(t, testSecret, jwt.MapClaims{"user_id": "user-1"})
		r := httptest.NewRequest("GET", "/ws/global", nil)
		r.Header.Set("Authorization", "Bearer "+tokenString)

		identity := auth.IdentityFromRequest(r)
		assert.Equal(t, "user-1", identity.UserID())
	})

	t.Run("token query param yields user identity", func(t *testing.T) {
		tokenString := signToken(t, testSecret, jwt.MapClaims{"user_id": "user-2"})
		r := httptest.NewRequest("GET", "/ws/global?token="+tokenString, nil)

		identity := auth.IdentityFromRequest(r)
		assert.Equal(t, "user-2", identity.UserID())
	})

	t.Run("anon token preserved", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws/global?anon_token=tok-77", nil)

		identity := auth.IdentityFromRequest(r)
		assert.True(t, identity.IsAnonymous())
		assert.Equal(t, "tok-77", identity.AnonID())
	})

	t.Run("invalid jwt falls back to anonymous", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws/global", nil)
		r.Header.Set("Authorization", "Bearer not-a-token")

		identity := auth.IdentityFromRequest(r)
		assert.True(t, identity.IsAnonymous())
		assert.NotEmpty(t, identity.AnonID())
	})
}
