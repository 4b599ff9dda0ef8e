// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the current principal. Authentication itself is owned by
// the platform's edge (session gateway); by the time a request reaches this
// service the gateway has verified the session and forwards the identity in
// trusted headers. The core treats that as an opaque capability: "current
// principal or null" plus an admin predicate.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the authenticated user's identifier.
	HeaderUserID = "X-User-ID"
	// HeaderAdminEmail carries the admin's email when the gateway verified an
	// admin session. Absent for regular users.
	HeaderAdminEmail = "X-Admin-Email"

	ctxKeyUserID     = "userID"
	ctxKeyAdminEmail = "adminEmail"
)

// Principal copies the gateway-resolved identity headers into the Gin
// context. It never rejects: anonymous requests simply carry no principal and
// fall back to IP-keyed rate budgets.
func Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := c.GetHeader(HeaderUserID); uid != "" {
			c.Set(ctxKeyUserID, uid)
		}
		if admin := c.GetHeader(HeaderAdminEmail); admin != "" {
			c.Set(ctxKeyAdminEmail, admin)
		}
		c.Next()
	}
}

// UserID returns the current principal's identifier, or "" when anonymous.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// AdminEmail returns the verified admin email, or "" for non-admins.
func AdminEmail(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyAdminEmail); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RequireUser aborts anonymous requests with 401.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "unauthorized",
				"message":    "authentication required",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin aborts requests lacking a verified admin identity with 403.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if AdminEmail(c) == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "forbidden",
				"message":    "admin access required",
			})
			return
		}
		c.Next()
	}
}
