package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"llm-chat/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	userH *UserHandler,
	chatH *ChatHandler,
	jwtSvc *service.JWTService,
) *gin.Engine {
	r := gin.New()

	// Logging y recovery para todo; el Content-Type JSON solo para la API,
	// /ws responde con el upgrade de WebSocket.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	api := r.Group("", jsonContentTypeMiddleware())
	api.GET("/healthz", chatH.Health)

	auth := api.Group("/auth")
	auth.POST("/oauth", userH.OAuthLogin)
	auth.POST("/refresh", userH.RefreshToken)
	auth.POST("/logout", userH.Logout)

	api.GET("/me", JWTAuthMiddleware(jwtSvc), userH.Me)

	r.GET("/ws", chatH.WebSocket)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
