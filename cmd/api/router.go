package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"postsync/internal/shared/middleware"
	"postsync/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	)

	router.GET("/health", healthCheckHandler(c))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheckHandler(c))

		// Presentation boundary
		c.PostHandler.RegisterRoutes(v1)
		if c.ReplicationHandler != nil {
			c.ReplicationHandler.RegisterRoutes(v1)
		}

		// Peer endpoints: a hub always serves them, a replica too so
		// replicas can be chained
		c.PeerHandler.RegisterRoutes(v1, middleware.PeerAuth(c.JWTManager))
	}

	return router
}

// ========================================
// HEALTH
// ========================================

func healthCheckHandler(appCtx *container.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   appCtx.Config.App.Version,
			"role":      appCtx.Config.App.Role,
			"last_seq":  appCtx.Store.LastSeq(),
		}
		services := gin.H{}

		// Check database
		if appCtx.DB != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			services["database"] = "ok"
			if err := appCtx.DB.HealthCheck(ctx); err != nil {
				services["database"] = fmt.Sprintf("error: %v", err)
				health["status"] = "degraded"
			}
		}

		// Check redis
		if appCtx.Redis != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			services["redis"] = "ok"
			if err := appCtx.Redis.HealthCheck(ctx); err != nil {
				services["redis"] = fmt.Sprintf("error: %v", err)
				health["status"] = "degraded"
			}
		}

		// Replication
		if appCtx.Replication != nil {
			services["replication"] = appCtx.Replication.Mode()
		}

		health["services"] = services

		status := http.StatusOK
		if health["status"] != "ok" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, health)
	}
}
