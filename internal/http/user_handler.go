package http

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"llm-chat/internal/domain"
	"llm-chat/internal/service"
)

// CollaboratorSecretHeader lleva el secreto compartido con el colaborador OAuth.
const CollaboratorSecretHeader = "X-OAuth-Collaborator-Secret"

// UserHandler mantiene dependencias para endpoints de usuarios.
type UserHandler struct {
	logger             *zap.Logger
	userServ           *service.UserService
	jwtServ            *service.JWTService
	collaboratorSecret string
}

// NewUserHandler crea una instancia de UserHandler con dependencias necesarias.
// collaboratorSecret vacio deja deshabilitado POST /auth/oauth.
func NewUserHandler(logger *zap.Logger, userServ *service.UserService, jwtServ *service.JWTService, collaboratorSecret string) *UserHandler {
	return &UserHandler{
		logger:             logger,
		userServ:           userServ,
		jwtServ:            jwtServ,
		collaboratorSecret: collaboratorSecret,
	}
}

// OAuthLogin maneja POST /auth/oauth. Solo lo llama el colaborador OAuth, que
// ya verifico la identidad con el proveedor y se autentica con el secreto
// compartido. Devuelve el usuario con su par de tokens.
func (h *UserHandler) OAuthLogin(c *gin.Context) {
	if h.collaboratorSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "oauth collaborator not configured"})
		return
	}
	given := c.GetHeader(CollaboratorSecretHeader)
	if subtle.ConstantTimeCompare([]byte(given), []byte(h.collaboratorSecret)) != 1 {
		h.logger.Warn("oauth login rejected", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid collaborator secret"})
		return
	}

	var req struct {
		Provider     string `json:"provider" binding:"required"`
		Subject      string `json:"subject" binding:"required"`
		DisplayName  string `json:"display_name"`
		ProfileImage string `json:"profile_image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid oauth request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.userServ.UpsertOAuthUser(c.Request.Context(), service.OAuthInput{
		Provider:     req.Provider,
		Subject:      req.Subject,
		DisplayName:  req.DisplayName,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		if errors.Is(err, service.ErrOAuthInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth data"})
			return
		}
		if errors.Is(err, service.ErrOAuthProviderNotAllowed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "oauth provider not allowed"})
			return
		}
		h.logger.Error("oauth login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not complete oauth"})
		return
	}

	tokens, err := h.issueTokens(c, user)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens})
}

// RefreshToken maneja POST /auth/refresh.
func (h *UserHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !h.jwtServ.Enabled() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
		return
	}
	tokens, err := h.jwtServ.RefreshPair(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Logout maneja POST /auth/logout.
func (h *UserHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid logout request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !h.jwtServ.Enabled() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
		return
	}
	_ = h.jwtServ.RevokeRefresh(c.Request.Context(), req.RefreshToken)
	c.Status(http.StatusNoContent)
}

// Me maneja GET /me; requiere JWTAuthMiddleware.
func (h *UserHandler) Me(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	user, err := h.userServ.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("get current user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *UserHandler) issueTokens(c *gin.Context, user domain.User) (service.TokenPair, error) {
	if !h.jwtServ.Enabled() {
		return service.TokenPair{}, errors.New("jwt not configured")
	}
	return h.jwtServ.GeneratePair(c.Request.Context(), user)
}
