package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	headerEmail  = "Grpc-Metadata-email"
	headerDevKey = "Grpc-Metadata-developer_key"
)

// Identity rejects requests whose credential headers do not match. An empty
// email disables the check.
func Identity(email, devKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if email == "" {
			c.Next()
			return
		}
		if c.GetHeader(headerEmail) != email || c.GetHeader(headerDevKey) != devKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.Next()
	}
}
