package handler

import (
	"payment-tracker/internal/adapter/http/middleware"
	redisStore "payment-tracker/internal/adapter/storage/redis"
	"payment-tracker/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	SyncSvc          ports.SyncService
	TokenSvc         ports.TokenService
	Identity         ports.IdentityProvider
	IdempotencyCache ports.IdempotencyCache     // nil = Idempotency-Key ignored
	RateLimitStore   *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers   []ports.HealthChecker
	Logger           zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20))
	r.Use(middleware.AuditLog(deps.Logger))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()

	// rl returns the limiter for group, or a no-op when Redis is not configured.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	idem := func(c *gin.Context) { c.Next() }
	if deps.IdempotencyCache != nil {
		idem = middleware.Idempotency(deps.IdempotencyCache, middleware.DefaultIdempotencyTTL, deps.Logger)
	}

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Identity, deps.Logger)
	v1 := r.Group("/api/v1", jwtAuth)

	txHandler := NewTransactionHandler(deps.SyncSvc)
	transactions := v1.Group("/transactions")
	{
		transactions.GET("", rl("reads"), txHandler.List)
		transactions.GET("/stats", rl("reads"), txHandler.Stats)
		transactions.GET("/:id", rl("reads"), txHandler.Get)
		transactions.POST("", rl("create"), idem, txHandler.Create)
		transactions.POST("/:id/:operation", rl("actions"), idem, txHandler.Action)
	}

	syncHandler := NewSyncHandler(deps.SyncSvc)
	sync := v1.Group("/sync")
	{
		sync.POST("", rl("sync"), syncHandler.Resync)
		sync.GET("/status", rl("reads"), syncHandler.Status)
	}

	return r
}
