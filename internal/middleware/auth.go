// Package middleware provides HTTP middleware for authentication, logging, and rate limiting.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/macrosync/internal/services"
)

const (
	// TokenHeader carries the API token when no Authorization header is sent.
	TokenHeader = "X-API-Token" // #nosec G101 - header name, not a credential
	// OTPHeader carries the TOTP code for mutating requests.
	OTPHeader = "X-OTP-Code"
	// ActorContextKey is the key for storing the caller identity in the gin context.
	ActorContextKey = "actor"
)

// TokenRequired rejects requests without a valid API token and, when a TOTP
// secret is configured, mutating requests without a valid one-time code.
// The caller identity is attached to the request context for auditing.
func TokenRequired(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := services.Actor{Name: "anonymous", IP: c.ClientIP()}

		if authService.Enabled() {
			if err := authService.CheckToken(requestToken(c)); err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			actor.Name = "token"
		}

		if isMutating(c.Request.Method) {
			if err := authService.CheckOTP(c.GetHeader(OTPHeader)); err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				c.Abort()
				return
			}
		}

		c.Set(ActorContextKey, actor)
		c.Request = c.Request.WithContext(services.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// requestToken reads the token from the Authorization header, the token
// header, or (for browser websockets, which cannot set headers) the query.
func requestToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if token := c.GetHeader(TokenHeader); token != "" {
		return token
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return c.Query("token")
	}
	return ""
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
