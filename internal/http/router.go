// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
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
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/autoconversa/go-dealer-chat/internal/channel"
	"github.com/autoconversa/go-dealer-chat/internal/config"
	"github.com/autoconversa/go-dealer-chat/internal/http/handlers"
	"github.com/autoconversa/go-dealer-chat/internal/http/middleware"
	"github.com/autoconversa/go-dealer-chat/internal/services"
	"github.com/autoconversa/go-dealer-chat/internal/ws"
)

// Deps carries everything the router needs. WhatsApp and Hub may be nil when
// the deployment runs widget-only or without a dashboard.
type Deps struct {
	DB       *gorm.DB
	Cfg      config.Config
	Dispatch *services.DispatchService
	Sessions *services.SessionService
	Leads    *services.LeadService
	Vehicles *services.VehicleService
	WhatsApp *channel.WhatsApp
	Hub      *ws.Hub
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// versioned public API under the configured base path.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per IP; webhook routes bypass, the pipeline's per-sender
//     guard throttles provider traffic instead)
//  8. CORS and security headers
func RegisterRoutes(r *gin.Engine, d Deps) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(d.Cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. Phone numbers are first-class
	// identifiers in this API, so the built-in phone scrubbing matters here;
	// the webhook signature header and verify token are masked by default.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// Response compression. The dashboard socket must stay untouched (the
	// upgrade handshake cannot ride a compressed writer), and the webhook
	// endpoint flushes its ack before processing, which a buffering gzip
	// writer would hold back.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics", "/webhooks/whatsapp"}),
		gzip.WithExcludedPathsRegexs([]string{`/admin/ws$`}),
	))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(d.Cfg.RateRPS, d.Cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(d.Cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(d.Cfg.CORS.AllowedOrigins))
		for _, o := range d.Cfg.CORS.AllowedOrigins {
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
			AllowOrigins:     d.Cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   d.Cfg.Security.EnableHSTS,
		HSTSMaxAge:   d.Cfg.Security.HSTSMaxAge,
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

	h := handlers.New(d.DB, d.Dispatch, d.Sessions, d.Leads, d.Vehicles, d.WhatsApp, d.Hub)

	// Provider webhooks live outside the versioned API and bypass the edge
	// limiter: the dispatch pipeline throttles per sender.
	wh := r.Group("/webhooks", middleware.RateBypass())
	{
		wh.GET("/whatsapp", h.VerifyWhatsApp)
		wh.POST("/whatsapp", h.ReceiveWhatsApp)
	}

	// Public API
	api := groupWithPrefix(r, d.Cfg.APIBasePath)
	{
		// Widget sessions
		api.POST("/sessions", h.StartSession)
		api.GET("/sessions/:token", h.GetSession)
		api.POST("/sessions/:token/messages", h.PostWidgetMessage)
		api.GET("/sessions/:token/messages", h.ListSessionMessages)
		api.POST("/sessions/:token/identify", h.IdentifySession)

		// Vehicle catalog
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/vehicles/featured", h.FeaturedVehicles)
		api.GET("/vehicles/search", h.SearchVehicles)

		// Dealer dashboard
		admin := api.Group("/admin")
		{
			admin.GET("/sessions", h.ListSessions)
			admin.GET("/sessions/:id/messages", h.ListAdminSessionMessages)
			admin.POST("/sessions/:id/handoff", h.HandoffSession)
			admin.POST("/sessions/:id/resume", h.ResumeSession)
			admin.POST("/sessions/:id/close", h.CloseSession)

			admin.GET("/leads", h.ListHotLeads)
			admin.POST("/leads/:id/assign", h.AssignLead)
			admin.PUT("/leads/:id/status", h.UpdateLeadStatus)

			admin.GET("/users/:id/sessions", h.ListUserSessions)

			admin.GET("/stats", h.Stats)
			admin.GET("/ws", h.DashboardSocket)
		}
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
