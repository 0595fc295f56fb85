package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager("secret", "trailchat", time.Minute)

	token, err := m.GenerateToken("u1", "alice", []string{"user"})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestManager_Rejects(t *testing.T) {
	m := NewManager("secret", "trailchat", time.Minute)

	expired, err := NewManager("secret", "trailchat", -time.Minute).GenerateToken("u1", "alice", nil)
	require.NoError(t, err)
	otherKey, err := NewManager("other", "trailchat", time.Minute).GenerateToken("u1", "alice", nil)
	require.NoError(t, err)
	otherIssuer, err := NewManager("secret", "elsewhere", time.Minute).GenerateToken("u1", "alice", nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"expired", expired, ErrExpiredToken},
		{"wrong key", otherKey, ErrInvalidToken},
		{"wrong issuer", otherIssuer, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
