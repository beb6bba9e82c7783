package main

import (
	"context"
	"net/http"
	"time"

	"callqa/internal/auth"
	"callqa/internal/httpapi"
	"callqa/internal/storage"
	"callqa/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, a *app) {
	// public
	r.GET("/healthz", healthz(a))
	r.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	// Reference storage serves its own signed URLs.
	if a.local != nil {
		r.PUT(storage.ObjectsRoute+"/*path", a.local.HandlePut)
		r.GET(storage.ObjectsRoute+"/*path", a.local.HandleGet)
	}

	h := httpapi.Handlers{
		Calls:         a.calls,
		Reports:       a.reports,
		WebhookHeader: a.cfg.Transcription.WebhookHeader,
	}
	h.Register(r, auth.PseudoUser(a.cfg.App.DemoUserID, !a.cfg.IsProduction()))
}

func healthz(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		status := http.StatusOK
		if a.db != nil {
			if err := utils.HealthCheck(c.Request.Context(), a.db, 2*time.Second); err != nil {
				checks["postgres"] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				checks["postgres"] = "ok"
			}
		}
		if a.rdb != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err := a.rdb.Ping(ctx).Err()
			cancel()
			if err != nil {
				checks["redis"] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				checks["redis"] = "ok"
			}
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": checks})
	}
}
