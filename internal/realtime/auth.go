package realtime

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pollpulse/pollpulse/internal/models"
)

// AuthManager resolves the identity behind a connection. Authenticated
// clients present a JWT; everyone else gets an anonymous token identity.
type AuthManager struct {
	jwtSecret []byte
}

// NewAuthManager creates a new auth manager
func NewAuthManager(jwtSecret string) *AuthManager {
	return &AuthManager{
		jwtSecret: []byte(jwtSecret),
	}
}

// ValidateToken validates a JWT and returns the authenticated identity.
func (a *AuthManager) ValidateToken(tokenString string) (models.Identity, error) {
	if len(a.jwtSecret) == 0 {
		return models.Identity{}, fmt.Errorf("jwt secret not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return models.Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return models.Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, fmt.Errorf("invalid token claims")
	}

	if userID, ok := claims["user_id"].(string); ok && userID != "" {
		return models.UserIdentity(userID), nil
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return models.UserIdentity(sub), nil
	}
	return models.Identity{}, fmt.Errorf("user_id not found in token")
}

// ExtractToken pulls a JWT from the Authorization header or the token
// query parameter. Browser WebSocket clients cannot set headers, so the
// query parameter form is accepted too.
func (a *AuthManager) ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		if len(parts) == 1 {
			return parts[0]
		}
	}
	return r.URL.Query().Get("token")
}

// IdentityFromRequest resolves the request's identity. A valid JWT yields
// a user identity; otherwise the client's anonymous token is used, minted
// fresh when the client sent none.
func (a *AuthManager) IdentityFromRequest(r *http.Request) models.Identity {
	if token := a.ExtractToken(r); token != "" {
		if identity, err := a.ValidateToken(token); err == nil {
			return identity
		}
	}

	if anonToken := r.URL.Query().Get("anon_token"); anonToken != "" {
		return models.AnonIdentity(anonToken)
	}
	if anonToken := r.Header.Get("X-Anon-Token"); anonToken != "" {
		return models.AnonIdentity(anonToken)
	}
	return models.AnonIdentity(uuid.New().String())
}
