package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origins is a parsed CORS allow-list. An empty list, or one containing "*", allows any origin.
type Origins map[string]bool

// ParseOrigins parses "*" or a comma-separated list such as "https://level30.example,http://localhost:5173".
func ParseOrigins(s string) Origins {
	o := make(Origins)
	for _, origin := range strings.Split(strings.TrimSpace(s), ",") {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			o[origin] = true
		}
	}
	return o
}

// Any reports whether every origin is allowed.
func (o Origins) Any() bool { return len(o) == 0 || o["*"] }

// Allowed reports whether origin may call the API.
func (o Origins) Allowed(origin string) bool {
	return o.Any() || (origin != "" && o[origin])
}

// CheckWebSocketOrigin returns an upgrader origin check for the allow-list, or nil to accept
// any origin. Requests without an Origin header (non-browser clients) pass.
func (o Origins) CheckWebSocketOrigin() func(r *http.Request) bool {
	if o.Any() {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || o[origin]
	}
}

// CORS returns a middleware that sets CORS headers for the allowed origins. Preflights from
// other origins are refused with 403.
func CORS(allowedOrigins string) gin.HandlerFunc {
	origins := ParseOrigins(allowedOrigins)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := origins.Allowed(origin)
		if allowed {
			if origins.Any() {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+HeaderAdminKey)
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			if !allowed {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
