package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/slotbook-api/internal/models"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
	"github.com/noah-isme/slotbook-api/pkg/response"
)

// ContextUserKey is the gin context key storing host claims.
const ContextUserKey = "currentHost"

type tokenValidator interface {
	ValidateToken(token string) (*models.HostClaims, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// JWT protects host routes by requiring a valid access token.
func JWT(auth tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		token, ok := bearerToken(c)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// OptionalJWT attaches host claims when a valid token is present but never blocks.
// Used where an invitee may act with a cancel token instead.
func OptionalJWT(auth tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}
		if claims, err := auth.ValidateToken(token); err == nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}
}

// HostFromContext returns the authenticated host claims, if any.
func HostFromContext(c *gin.Context) *models.HostClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.HostClaims)
	return claims
}
