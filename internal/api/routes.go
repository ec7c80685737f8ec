// Package api wires the gatekeeper handlers into a gin router.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/irfndi/gatekeeper/internal/api/handlers"
	"github.com/irfndi/gatekeeper/internal/middleware"
	"github.com/irfndi/gatekeeper/internal/moderation"
	"github.com/irfndi/gatekeeper/internal/ratelimit"
	"github.com/irfndi/gatekeeper/internal/registry"
	"github.com/irfndi/gatekeeper/internal/uniqueness"
	"github.com/irfndi/gatekeeper/internal/verification"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are the services the routes are built on.
type Dependencies struct {
	DB handlers.HealthChecker
	// Redis is nil when Redis is disabled.
	Redis       handlers.HealthChecker
	RedisClient *redis.Client

	Forms         *registry.Registry[*uniqueness.Form]
	NewForm       func() *uniqueness.Form
	Verifications *verification.Registry
	Limiter       *ratelimit.Limiter
	Guard         *moderation.Guard

	Auth     middleware.AuthConfig
	Throttle middleware.ThrottleConfig
	Version  string
	Logger   *zap.Logger
}

// SetupRoutes registers the health endpoint and the authenticated v1 API.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	formHandler := handlers.NewFormHandler(deps.Forms, deps.NewForm, logger.Named("forms"))
	verificationHandler := handlers.NewVerificationHandler(deps.Verifications)
	moderationHandler := handlers.NewModerationHandler(deps.Guard, deps.Limiter)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis, deps.Version, func() map[string]int {
		stats := formHandler.CacheStats()
		return map[string]int{
			"forms":          formHandler.LiveForms(),
			"verifications":  verificationHandler.LiveSessions(),
			"cache_hits":     int(stats.Hits),
			"cache_misses":   int(stats.Misses),
			"cache_hit_rate": int(stats.HitRate()),
		}
	})

	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)

	throttle := middleware.NewThrottle(deps.Throttle, deps.RedisClient, logger.Named("throttle"))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(deps.Auth, logger.Named("auth")))
	v1.Use(middleware.TagUser())
	v1.Use(throttle.Middleware())
	{
		forms := v1.Group("/forms")
		{
			forms.POST("", formHandler.CreateForm)
			forms.DELETE("/:id", formHandler.DeleteForm)
			forms.GET("/:id/:field", formHandler.GetField)
			forms.PUT("/:id/:field", formHandler.ChangeField)
			forms.POST("/:id/:field/check", formHandler.CheckField)
		}

		verifications := v1.Group("/verifications")
		{
			verifications.POST("", verificationHandler.Create)
			verifications.GET("/:id", verificationHandler.Get)
			verifications.POST("/:id/start", verificationHandler.Restart)
			verifications.POST("/:id/send", verificationHandler.Send)
			verifications.POST("/:id/validate", verificationHandler.Validate)
			verifications.POST("/:id/switch", verificationHandler.SwitchMethod)
			verifications.DELETE("/:id", verificationHandler.Delete)
		}

		v1.GET("/quota/:kind", moderationHandler.GetQuota)
		v1.POST("/blocks/:target", moderationHandler.Block)
		v1.DELETE("/blocks/:target", moderationHandler.Unblock)
		v1.POST("/reports", moderationHandler.Report)
	}
}
