// Package httpapi mounts the relay's HTTP surface on a Gin engine: the
// middleware chain, health and metrics endpoints, the WebSocket gateway and
// the versioned JSON API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-chat-relay/docs"
	"github.com/tbourn/go-chat-relay/internal/audit"
	"github.com/tbourn/go-chat-relay/internal/config"
	"github.com/tbourn/go-chat-relay/internal/crypto"
	"github.com/tbourn/go-chat-relay/internal/gateway"
	"github.com/tbourn/go-chat-relay/internal/http/handlers"
	"github.com/tbourn/go-chat-relay/internal/http/middleware"
	"github.com/tbourn/go-chat-relay/internal/presence"
	"github.com/tbourn/go-chat-relay/internal/repo"
	"github.com/tbourn/go-chat-relay/internal/services"
)

const maxBodyBytes = 1 << 20

// RegisterRoutes installs middleware and routes on r and returns the
// WebSocket gateway so the caller can close its sessions on shutdown.
// A nil auditLog turns the audit stage and GET /audit off.
//
// Middleware runs in this order: tracing, request ID, redacted access log,
// recovery, body cap, metrics, idempotency, rate limit, CORS, security
// headers. Idempotency runs before the limiter so replays are not counted.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, reg *presence.Registry, auditLog audit.Log, cfg config.Config) *gateway.Gateway {
	r.HandleMethodNotAllowed = true
	useMiddleware(r, db, cfg)

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if reg == nil {
		reg = presence.New()
	}
	convSvc := services.NewConversationService(db, nil)
	relay := services.NewRelayService(db, reg, crypto.RSA{}, convSvc, auditLog)

	gw := gateway.New(reg, relay, gateway.OptionsFromConfig(cfg))
	wsPath := cfg.Gateway.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.GET(wsPath, gw.Handle)

	h := handlers.New(relay, &services.MessageService{DB: db}, convSvc, auditLog)
	if cfg.IdempotencyTTL > 0 {
		h.IdempotencyTTL = cfg.IdempotencyTTL
	}
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	api.POST("/messages", h.SendMessage)
	api.GET("/messages", h.ListMessages)
	api.GET("/conversations", h.ListConversations)
	api.GET("/audit", h.ListAudit)

	return gw
}

func useMiddleware(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders:     []string{middleware.HeaderUserID},
			MaskQueryParams: []string{"username"},
		}),
		middleware.Recovery(),
		limitBody(maxBodyBytes),
		middleware.Metrics(),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idempotencyLookup(db)),
		middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler(),
	)
	r.Use(corsHandlers(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))
}

func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, userID, key, now)
		return err == nil && rec != nil, nil
	}
}

// corsHandlers allows every origin when none are configured, otherwise only
// the listed ones. In both cases Access-Control-Allow-Origin is set on plain
// (non-preflight) requests too, which gin-contrib/cors skips when the
// request carries no Origin.
func corsHandlers(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{middleware.HeaderRequestID, "ETag", "Idempotency-Replayed"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Header("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if o := c.GetHeader("Origin"); allowed[o] {
				c.Header("Access-Control-Allow-Origin", o)
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps request bodies at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "" and "/" as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
