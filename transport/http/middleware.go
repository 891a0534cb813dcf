package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/keeper/core"
	"github.com/layer-3/keeper/service"
)

const subjectKey = "subject"

// AuthMiddleware creates middleware that validates access tokens
func AuthMiddleware(sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": core.ErrUnauthenticated.Error()})
			return
		}

		claims, err := sessions.VerifyAccess(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		// Set the subject in the context
		c.Set(subjectKey, claims.Subject)

		c.Next()
	}
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func subject(c *gin.Context) string {
	return c.GetString(subjectKey)
}
