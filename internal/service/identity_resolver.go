package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"llm-chat/internal/domain"
)

// IdentityResolver convierte un access token en la identidad del chat.
// Cualquier fallo deja la conexion como anonima: nunca se rechaza.
type IdentityResolver struct {
	jwt    *JWTService
	users  *UserService
	logger *zap.Logger
}

func NewIdentityResolver(jwt *JWTService, users *UserService, logger *zap.Logger) *IdentityResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityResolver{jwt: jwt, users: users, logger: logger}
}

func (r *IdentityResolver) Resolve(ctx context.Context, token string) *domain.Identity {
	token = strings.TrimSpace(token)
	if r == nil || token == "" || !r.jwt.Enabled() {
		return nil
	}
	claims, err := r.jwt.ParseAccessToken(token)
	if err != nil {
		r.logger.Debug("connection token rejected, continuing anonymous", zap.Error(err))
		return nil
	}
	identity, err := r.users.IdentityFor(ctx, claims.ExternalID)
	if err != nil {
		r.logger.Warn("identity lookup failed, continuing anonymous",
			zap.String("external_id", claims.ExternalID),
			zap.Error(err),
		)
		return nil
	}
	return &identity
}
