package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/escrowpi/escrowpi/internal/logging"
	"github.com/escrowpi/escrowpi/internal/validation"
)

const (
	// ContextKeyUsername is the key for the authenticated Pi username in gin context
	ContextKeyUsername = "authUsername"

	// DemoUserHeader names the viewer in demo mode.
	DemoUserHeader = "X-Pi-Username"
)

// Middleware resolves the viewer and stores it in the gin and request
// contexts. It never aborts; RequireAuth does.
func Middleware(m *Manager, demoMode bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var username string
		if demoMode {
			if u := strings.TrimSpace(c.GetHeader(DemoUserHeader)); validation.IsValidUsername(u) {
				username = u
			}
		}
		if username == "" {
			if token := c.GetHeader("Authorization"); token != "" {
				u, err := m.CurrentUsername(c.Request.Context(), token)
				if err == nil {
					username = u
				} else {
					logging.L(c.Request.Context()).Debug("pi token rejected", "error", err)
				}
			}
		}

		if username != "" {
			c.Set(ContextKeyUsername, username)
			c.Request = c.Request.WithContext(logging.WithUsername(c.Request.Context(), username))
		}
		c.Next()
	}
}

// RequireAuth middleware rejects requests without a resolved viewer
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUsername(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Pi access token required. Include 'Authorization: Bearer <accessToken>' header.",
			})
			return
		}
		c.Next()
	}
}

// GetUsername returns the authenticated Pi username, or "".
func GetUsername(c *gin.Context) string {
	return c.GetString(ContextKeyUsername)
}
