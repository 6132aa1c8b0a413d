package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"ragchat/internal/transport/http/response"
)

const ContextTenantIDKey = "tenant_id"

// maxClientIDLength bounds the header so it fits the tenant_id columns.
const maxClientIDLength = 64

// RequireClientID resolves the calling tenant from the X-Client-ID header.
func RequireClientID() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := strings.TrimSpace(c.GetHeader("X-Client-ID"))
		if clientID == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing X-Client-ID header")
			c.Abort()
			return
		}
		if len(clientID) > maxClientIDLength {
			response.Error(c, 400, response.CodeBadRequest, "X-Client-ID too long")
			c.Abort()
			return
		}

		c.Set(ContextTenantIDKey, clientID)
		c.Next()
	}
}
