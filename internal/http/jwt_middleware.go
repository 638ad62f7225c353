package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"llm-chat/internal/service"
)

const authClaimsKey = "auth_claims"

// AccessTokenParser es lo que el middleware necesita del JWTService.
type AccessTokenParser interface {
	ParseAccessToken(token string) (service.Claims, error)
}

// JWTAuthMiddleware exige un access token "Bearer" valido y deja los claims
// en el contexto para GetAuthClaims.
func JWTAuthMiddleware(parser AccessTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if parser == nil || !tokenServiceEnabled(parser) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := parser.ParseAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}

func bearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}
	return fields[1], true
}

// tokenServiceEnabled cubre el *service.JWTService nil o sin secreto.
func tokenServiceEnabled(parser AccessTokenParser) bool {
	if svc, ok := parser.(*service.JWTService); ok {
		return svc.Enabled()
	}
	return true
}
