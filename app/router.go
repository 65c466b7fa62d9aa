// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/config"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/auth"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/billing"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const CreatePreferencePath = "/api/billing/create-preference"

// Dependencies are the shared collaborators of the router. Only Config and
// Logger are required.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Verifier auth.TokenVerifier
	Profiles ProfileStore
	Redis    *redis.Client
	Gateway  GatewayClient
	Metrics  *Metrics
}

// Bootstrap builds Dependencies from configuration. Postgres and Redis are
// optional; a Redis outage falls back to in-memory sessions. The returned
// cleanup closes whatever was opened.
func Bootstrap(ctx context.Context, cfg *config.Config, log *zap.Logger) (Dependencies, func(), error) {
	deps := Dependencies{Config: cfg, Logger: log, Metrics: NewMetrics()}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	verifier, err := auth.NewVerifier(cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.JWKSURL)
	if err != nil {
		if !auth.AuthDisabled() {
			return deps, cleanup, err
		}
		log.Warn("auth verifier unavailable, running with auth disabled", zap.Error(err))
	} else {
		deps.Verifier = verifier
	}

	if cfg.DB.URL != "" {
		var db *sql.DB
		db, err = OpenDB(ctx, cfg.DB.URL)
		if err != nil {
			cleanup()
			return deps, func() {}, err
		}
		log.Info("connected to Postgres")
		closers = append(closers, func() { _ = db.Close() })
		deps.Profiles = NewPostgresProfileStore(db)
	}

	if cfg.Redis.URL != "" {
		client, err := billing.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			log.Warn("redis unavailable, usage sessions kept in memory", zap.Error(err))
		} else {
			log.Info("connected to Redis")
			closers = append(closers, func() { _ = client.Close() })
			deps.Redis = client
		}
	}

	return deps, cleanup, nil
}

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(deps Dependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	router := gin.New()
	router.Use(logger.Recovery(log), logger.GinMiddleware(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Client-Info", "Apikey"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", Health)
	router.GET("/metrics", metrics.Handler())

	checkout, err := NewCheckoutHandler(deps.Config, CheckoutDeps{
		Gateway:  deps.Gateway,
		Verifier: deps.Verifier,
		Profiles: deps.Profiles,
		Metrics:  metrics,
		Logger:   log,
	})
	if err != nil {
		log.Error("checkout handler disabled", zap.Error(err))
		router.POST(CreatePreferencePath, unconfiguredCheckout(err, log))
	} else {
		router.POST(CreatePreferencePath, checkout.Handle)
	}

	ttl := time.Duration(0)
	if deps.Config != nil {
		ttl = deps.Config.Redis.SessionTTL
	}
	usage := NewUsageHandlers(NewSessionStore(deps.Redis, ttl, deps.Profiles), metrics, log)

	mwCfg := auth.MiddlewareConfig{
		Logger:      log,
		DisableAuth: deps.Config != nil && deps.Config.Auth.Disabled && auth.AuthDisabled(),
	}
	if deps.Profiles != nil {
		mwCfg.OnAuthenticated = func(c *gin.Context, claims *auth.Claims) error {
			return deps.Profiles.EnsureFromClaims(c.Request.Context(), claims)
		}
	}
	protected := router.Group("/api/usage")
	protected.Use(auth.Middleware(deps.Verifier, mwCfg))
	protected.GET("", usage.GetUsage)
	protected.POST("/:kind/check", usage.CheckUsage)
	protected.POST("/:kind", usage.RecordUsage)

	return router
}
