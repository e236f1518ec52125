// Package router assembles the Gin engine from the application's modules.
package router

import (
	"context"
	"net/http"
	"time"

	apphttp "clinic_webhook_backend/internal/http"
	"clinic_webhook_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	adminRatePerSecond = 5
	adminRateBurst     = 20
	healthCheckTimeout = 2 * time.Second
)

// New builds the engine: recovery, request logging, health and metrics
// endpoints, then every module's routes.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(httpkit.Recovery(app.Logger))
	engine.Use(httpkit.RequestLogger(app.Logger))

	engine.GET("/api/health", healthHandler(app.Health))
	if app.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(app.Metrics))
	}

	limiter := httpkit.NewIPRateLimiter(rate.Limit(adminRatePerSecond), adminRateBurst, app.Logger)

	v1 := engine.Group("/api/v1")
	v1.Use(corsMiddleware(app.Config), httpkit.SecurityHeaders())

	admin := v1.Group("/admin")
	admin.Use(limiter.RateLimit(), httpkit.AuthRequired(app.Config), httpkit.RequireRole("admin"))

	ctx := &apphttp.RouterContext{
		Engine:           engine,
		Webhooks:         engine.Group("/webhooks"),
		V1:               v1,
		Admin:            admin,
		Config:           app.Config,
		AdminRateLimiter: limiter,
	}

	for _, module := range app.Modules {
		module.RegisterRoutes(ctx)
		app.Logger.Info("module routes registered", "module", module.Name())
	}

	return engine
}

func corsMiddleware(cfg apphttp.RouterConfig) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	switch {
	case cfg.GetCORSAllowAll():
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	case len(cfg.GetCORSOrigins()) == 0:
		corsConfig.AllowOriginFunc = func(string) bool { return false }
	default:
		corsConfig.AllowOrigins = cfg.GetCORSOrigins()
	}
	return cors.New(corsConfig)
}

func healthHandler(health apphttp.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		if err := health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
	}
}
