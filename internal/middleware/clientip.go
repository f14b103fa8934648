package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, else "".
// The site runs behind a proxy that sets these; an empty result means the caller is unknown.
func ClientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return strings.TrimSpace(c.GetHeader("X-Real-IP"))
}
