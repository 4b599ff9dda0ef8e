// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/bighog300/artpulse/internal/config"
	"github.com/bighog300/artpulse/internal/cronlock"
	"github.com/bighog300/artpulse/internal/delivery"
	"github.com/bighog300/artpulse/internal/http/handlers"
	"github.com/bighog300/artpulse/internal/http/middleware"
	"github.com/bighog300/artpulse/internal/jobs"
	"github.com/bighog300/artpulse/internal/ratelimit"
	"github.com/bighog300/artpulse/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, then mounts the public
// notification API under the configured base path plus the admin job API and
// the cron entry points.
//
// rdb may be nil: the rate limiter falls back to its process-local windows and
// the cron lock reports itself as unsupported.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured request logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Principal extraction (user / admin identity headers)
//  8. CORS and Security headers
//
// The write rate limiter is attached per-route on mutating endpoints rather
// than globally, so reads are never throttled.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, rdb redis.Cmdable, sender delivery.Sender, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured request logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Principal extraction for downstream auth checks
	r.Use(middleware.Principal())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderAdminEmail},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderAdminEmail},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/redis
	notifSvc := &services.NotificationService{DB: db}
	worker := &services.OutboxWorker{
		DB:          db,
		Sender:      sender,
		MaxErrorLen: cfg.Outbox.MaxErrorLen,
	}
	jobSvc := &services.JobService{
		DB:            db,
		Registry:      jobs.Registry(db, worker, cfg),
		Lookback:      cfg.Jobs.LookbackWindow,
		MaxMessageLen: cfg.Jobs.MaxMessageLen,
	}
	locker := cronlock.New(rdb, cfg.Cron.LockTTL)
	cron := handlers.NewCronRunner(db, locker, jobSvc,
		jobs.OutboxDrain, jobs.OutboxReapStale, jobs.InboxRetention)
	h := handlers.New(notifSvc, jobSvc, cron)

	limiter := ratelimit.New(rdb)
	writeLimit := middleware.RateLimit(limiter, "write", cfg.RateLimit.WriteLimit, cfg.RateLimit.WriteWindow)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// In-app notification inbox
		n := api.Group("/notifications", middleware.RequireUser())
		n.GET("", h.ListNotifications)
		n.GET("/unread-count", h.UnreadCount)
		n.POST("/:id/read", writeLimit, h.MarkNotificationRead)
	}

	// Admin job API
	admin := r.Group("/admin", middleware.RequireAdmin())
	{
		admin.GET("/jobs", h.ListJobs)
		admin.POST("/jobs/:name/run", writeLimit, h.RunJob)
	}

	// Cron entry points for the external scheduler
	internal := r.Group("/internal/cron")
	{
		internal.POST("/:name", h.RunCron)
		internal.GET("/status", h.CronStatus)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
