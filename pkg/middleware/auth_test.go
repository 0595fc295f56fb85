package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockVerifier struct {
	verifyFunc func(ctx context.Context, token string) (*Identity, error)
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	return m.verifyFunc(ctx, token)
}

func newTestRouter(v Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", NewAuthMiddleware(v).RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c)+":"+GetUsername(c))
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	v := &mockVerifier{verifyFunc: func(_ context.Context, token string) (*Identity, error) {
		if token == "good" {
			return &Identity{UserID: "u1", Username: "alice"}, nil
		}
		return nil, errors.New("bad token")
	}}
	router := newTestRouter(v)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid", "Bearer good", http.StatusOK, "u1:alice"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"rejected", "Bearer bad", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"AUTHENTICATION_REQUIRED"`)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	tok, err := BearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "q", tok)

	req.Header.Set(AuthHeaderKey, "Bearer h")
	tok, err = BearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "h", tok)

	_, err = BearerToken(httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.ErrorIs(t, err, ErrMissingToken)
}
