// Package httpapi wires the HTTP transport (Gin) to the record store, the
// reachability monitor and the edge worker. It centralizes cross-cutting
// concerns such as tracing, correlation IDs, logging/redaction, panic
// recovery, metrics, CORS, security headers, idempotency and rate limiting.
//
// Routing: the API lives under cfg.APIBasePath, /health and /metrics at the
// root, and every other request falls through to the edge worker, which
// serves the application shell cache-first and proxies to the origin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-mess-offline/docs"
	"github.com/tbourn/go-mess-offline/internal/config"
	"github.com/tbourn/go-mess-offline/internal/edge"
	"github.com/tbourn/go-mess-offline/internal/http/handlers"
	"github.com/tbourn/go-mess-offline/internal/http/middleware"
	"github.com/tbourn/go-mess-offline/internal/reachability"
	"github.com/tbourn/go-mess-offline/internal/repo"
	"github.com/tbourn/go-mess-offline/internal/store"
)

// IdempotencyStore adapts the repository free functions to both the
// middleware lookup and handlers.IdempotencyStore, sharing the record store's
// database handle.
type IdempotencyStore struct {
	store *store.Store
	ttl   time.Duration
}

// NewIdempotencyStore keeps keys for ttl (24h when ttl <= 0).
func NewIdempotencyStore(s *store.Store, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{store: s, ttl: ttl}
}

// Lookup proxies repo.GetIdempotency.
func (i *IdempotencyStore) Lookup(ctx context.Context, clientID, scope, key string, now time.Time) (string, bool, error) {
	db, err := i.store.DB(ctx)
	if err != nil {
		return "", false, err
	}
	rec, err := repo.GetIdempotency(ctx, db, clientID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.ResourceID, true, nil
}

// Reserve proxies repo.ReserveIdempotency. A key already held reports false.
func (i *IdempotencyStore) Reserve(ctx context.Context, clientID, scope, key string) (bool, error) {
	db, err := i.store.DB(ctx)
	if err != nil {
		return false, err
	}
	_, err = repo.ReserveIdempotency(ctx, db, clientID, scope, key, i.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return false, nil
	}
	return err == nil, err
}

// Complete proxies repo.CompleteIdempotency.
func (i *IdempotencyStore) Complete(ctx context.Context, clientID, scope, key, resourceID string, status int) error {
	db, err := i.store.DB(ctx)
	if err != nil {
		return err
	}
	return repo.CompleteIdempotency(ctx, db, clientID, scope, key, resourceID, status)
}

// Release proxies repo.ReleaseIdempotency.
func (i *IdempotencyStore) Release(ctx context.Context, clientID, scope, key string) error {
	db, err := i.store.DB(ctx)
	if err != nil {
		return err
	}
	return repo.ReleaseIdempotency(ctx, db, clientID, scope, key)
}

// Exists is the middleware.IdempotencyLookup view of Lookup. Keys whose first
// request is still in flight do not count.
func (i *IdempotencyStore) Exists(ctx context.Context, clientID, scope, key string, now time.Time) (bool, error) {
	id, found, err := i.Lookup(ctx, clientID, scope, key, now)
	return found && id != "", err
}

// Purge removes expired keys and returns how many were deleted.
func (i *IdempotencyStore) Purge(ctx context.Context) (int64, error) {
	db, err := i.store.DB(ctx)
	if err != nil {
		return 0, err
	}
	return repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
}

// Deps are the services mounted by RegisterRoutes. Store is required. A nil
// Worker turns unmatched requests into 404s instead of edge traffic.
type Deps struct {
	Store         *store.Store
	Idempotency   *IdempotencyStore
	Worker        *edge.Worker
	Reachability  *reachability.Monitor
	Notifications handlers.NotificationLister
}

var (
	allowHeaders  = []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", "X-Client-ID", middleware.HeaderIdempotencyKey}
	exposeHeaders = []string{"X-Request-ID", "ETag", "Content-Length", handlers.HeaderIdempotencyReplayed, middleware.EdgeCacheHeader}
)

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Global middleware order:
//  1. OpenTelemetry
//  2. RequestID, ClientID
//  3. RedactingLogger
//  4. Recovery
//  5. Metrics
//  6. CORS and security headers
//
// The API group adds the 1 MiB body limit, idempotency validation (before rate
// limiting so replays bypass it), the per-client rate limiter, gzip and
// no-store caching. Edge traffic keeps its bodies unbounded for the origin.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID(), middleware.ClientID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	useCORS(r, cfg.CORS.AllowedOrigins)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		EnablePolicy:  true,
		ExposeHeaders: exposeHeaders,
	}))

	if d.Worker != nil {
		r.NoRoute(gin.WrapH(d.Worker))
	} else {
		r.NoRoute(func(c *gin.Context) {
			handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
		})
	}
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	deps := handlers.Deps{
		Store:         d.Store,
		Notifications: d.Notifications,
	}
	var lookup middleware.IdempotencyLookup
	if d.Idempotency != nil {
		deps.Idempotency = d.Idempotency
		lookup = d.Idempotency.Exists
	}
	// Typed nils must not leak into the interfaces.
	if d.Reachability != nil {
		deps.Reachability = d.Reachability
	}
	if d.Worker != nil {
		deps.Edge = d.Worker
		deps.Push = d.Worker
		if deps.Notifications == nil {
			if l, ok := d.Worker.Notifier().(handlers.NotificationLister); ok {
				deps.Notifications = l
			}
		}
	}
	h := handlers.New(deps)

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientOrIP())
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		limitBody(maxAPIBody),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, lookup),
		rl.Handler(),
		gzip.Gzip(gzip.DefaultCompression),
		middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true}),
	)
	{
		api.PUT("/records/:id", h.PutRecord)
		api.GET("/records/:id", h.GetRecord)
		api.GET("/records", h.ListRecords)
		api.DELETE("/records/:id", h.DeleteRecord)
		api.DELETE("/records", h.ClearRecords)
		api.GET("/stats", h.Stats)

		api.POST("/queue", h.EnqueueAction)
		api.GET("/queue", h.ListActions)
		api.DELETE("/queue/:id", h.DeleteAction)

		api.GET("/status", h.GetStatus)
		api.PUT("/status", h.SetStatus)

		api.POST("/push", h.Push)
		api.GET("/notifications", h.ListNotifications)
	}
}

// useCORS installs gin-contrib/cors. With no allowlist every origin is
// accepted without credentials; otherwise allowed origins are echoed.
func useCORS(r *gin.Engine, origins []string) {
	base := cors.Config{
		AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		// ACAO: * even without an Origin header, for plain clients and probes.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		base.AllowAllOrigins = true
		r.Use(cors.New(base))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
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
	base.AllowOrigins = origins
	r.Use(cors.New(base))
}

const maxAPIBody = 1 << 20

// limitBody caps request bodies at maxBytes; larger bodies fail on read.
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
