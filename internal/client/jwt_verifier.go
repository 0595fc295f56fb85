package client

import (
	"context"
	"fmt"

	"github.com/weiawesome/trailchat/internal/domain"
	"github.com/weiawesome/trailchat/pkg/jwt"
	"github.com/weiawesome/trailchat/pkg/middleware"
)

// JWTVerifier verifies access tokens issued by the identity provider, which
// shares the HMAC secret with this service.
type JWTVerifier struct {
	manager *jwt.Manager
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{manager: jwt.NewManager(secret, issuer, 0)}
}

// Verify implements middleware.Verifier.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*middleware.Identity, error) {
	claims, err := v.manager.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthenticationRequired, err)
	}
	return &middleware.Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
		Roles:    claims.Roles,
	}, nil
}
