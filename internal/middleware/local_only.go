package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// LocalOnly rejects anything that is not loopback traffic. The service is a
// wallet companion holding a signing key; it must never be reachable from
// outside the host.
func LocalOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil || !ip.IsLoopback() {
			c.JSON(http.StatusForbidden, gin.H{"error": "local access only"})
			c.Abort()
			return
		}
		c.Next()
	}
}
