// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file adapts the core fixed-window rate limiter to HTTP. Budgets are
// keyed per principal (authenticated user when present, client IP otherwise),
// so anonymous and authenticated traffic never share a counter. When the
// shared Redis store is unreachable the limiter degrades to a process-local
// counter; that weaker tier is documented on the ratelimit package itself.
package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bighog300/artpulse/internal/ratelimit"
)

// RateLimit enforces limit requests per window for the named scope on every
// request passing through it. Limited callers receive HTTP 429 with a
// Retry-After header and the standard error envelope.
//
// Mount after Principal() so authenticated requests are keyed by user.
func RateLimit(l *ratelimit.Limiter, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ratelimit.PrincipalKey(UserID(c), c.ClientIP())
		err := l.Enforce(c.Request.Context(), scope, key, limit, window)
		if err == nil {
			c.Next()
			return
		}

		var limited *ratelimit.RateLimitedError
		if errors.As(err, &limited) {
			c.Header("Retry-After", strconv.Itoa(limited.RetryAfterSeconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"request_id":  c.Writer.Header().Get("X-Request-ID"),
				"code":        "rate_limited",
				"message":     "rate limit exceeded",
				"retry_after": limited.RetryAfterSeconds(),
			})
			return
		}

		// The limiter contract is "never fail the caller on store errors",
		// so anything else is unexpected; let the request through.
		c.Next()
	}
}
