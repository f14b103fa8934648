package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/psg2/level-30-birthday/pkg/response"
)

// HeaderAdminKey carries the raw admin key as an alternative to the "key" query parameter.
const HeaderAdminKey = "X-Admin-Key"

// Authorizer decides whether a credential grants admin access.
type Authorizer interface {
	Authorize(credential string) bool
}

// AdminCredential extracts the admin credential from the request: the "key" query parameter,
// the X-Admin-Key header, or a Bearer token, in that order.
func AdminCredential(c *gin.Context) string {
	if key := c.Query("key"); key != "" {
		return key
	}
	if key := c.GetHeader(HeaderAdminKey); key != "" {
		return key
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// RequireAdmin aborts with 401 unless the request carries an accepted admin credential.
func RequireAdmin(gate Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred := AdminCredential(c)
		if cred == "" {
			response.Unauthorized(c, "missing admin credential")
			c.Abort()
			return
		}
		if !gate.Authorize(cred) {
			response.Unauthorized(c, "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}
