package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/trailchat/pkg/response"
)

const (
	UserIDKey     = "user_id"
	EmailKey      = "email"
	UsernameKey   = "username"
	RolesKey      = "roles"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	TokenQueryKey = "token"
)

// ErrMissingToken is returned when a request carries no bearer credential.
var ErrMissingToken = errors.New("missing bearer token")

// Identity is the authenticated caller resolved from a bearer credential.
type Identity struct {
	UserID   string
	Username string
	Email    string
	Roles    []string
}

// Verifier resolves a bearer token to an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// AuthMiddleware validates bearer tokens with a Verifier.
type AuthMiddleware struct {
	verifier Verifier
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(verifier Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth returns a Gin middleware rejecting requests without a valid token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := headerToken(c.GetHeader(AuthHeaderKey))
		if err != nil {
			response.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		identity, err := m.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Set(EmailKey, identity.Email)
		c.Set(UsernameKey, identity.Username)
		c.Set(RolesKey, identity.Roles)

		c.Next()
	}
}

// BearerToken extracts the credential of a websocket handshake: the
// Authorization header when present, otherwise the token query parameter
// (browsers cannot set headers on websocket requests).
func BearerToken(r *http.Request) (string, error) {
	if h := r.Header.Get(AuthHeaderKey); h != "" {
		return headerToken(h)
	}
	if t := strings.TrimSpace(r.URL.Query().Get(TokenQueryKey)); t != "" {
		return t, nil
	}
	return "", ErrMissingToken
}

func headerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", errors.New("invalid authorization format")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetUsername extracts username from Gin context.
func GetUsername(c *gin.Context) string {
	return c.GetString(UsernameKey)
}
