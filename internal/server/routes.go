package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/session"
	"github.com/xpanvictor/xarvis-gateway/internal/handlers"
	"github.com/xpanvictor/xarvis-gateway/internal/handlers/websocket"
	"github.com/xpanvictor/xarvis-gateway/internal/metrics"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
)

// Dependencies are the handlers and services the HTTP surface is built from.
type Dependencies struct {
	WebSocket  *websocket.WebSocketHandler
	Users      *handlers.UserHandler
	SessionAPI *handlers.SessionHandler
	Sessions   *session.Manager
	Metrics    *metrics.Metrics
	Logger     *Logger.Logger
}

// InitializeRoutes mounts every route on r.
//
//	GET  /health         liveness plus connection and session counts
//	GET  /metrics        prometheus exposition
//	GET  /ws             gateway socket
//	GET  /stats          per-connection stats
//	     /api/v1/...     accounts, tokens, keys and the caller's sessions
func InitializeRoutes(r *gin.Engine, dep Dependencies) {
	r.Use(handlers.RequestLoggerMiddleware(dep.Logger))
	r.Use(handlers.ErrorHandlerMiddleware(dep.Logger))
	r.Use(handlers.CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": dep.WebSocket.Connections(),
			"sessions":    dep.Sessions.Count(),
		})
	})
	if dep.Metrics != nil {
		r.GET("/metrics", gin.WrapH(dep.Metrics.Handler()))
	}

	dep.WebSocket.RegisterRoutes(r)

	v1 := r.Group("/api/v1")
	if dep.Users != nil {
		dep.Users.RegisterRoutes(v1)
	}
	if dep.SessionAPI != nil {
		dep.SessionAPI.RegisterRoutes(v1)
	}
}
