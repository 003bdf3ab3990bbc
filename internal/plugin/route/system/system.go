package system

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registrylifecycle "github.com/chirino/chatmem-service/internal/registry/lifecycle"
	registryroute "github.com/chirino/chatmem-service/internal/registry/route"
)

// Version is reported by the root endpoint.
var Version = "1.0.0"

var ready atomic.Bool

// MarkReady signals that the service has finished initializing and is ready to
// serve traffic.
func MarkReady() {
	ready.Store(true)
}

// MarkNotReady makes /ready fail so load balancers stop routing during shutdown.
func MarkNotReady() {
	ready.Store(false)
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 0,
		Type:  registryroute.RouteTypeMain,
		Loader: func(m *registryroute.Mount) error {
			m.Router.GET("/", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{
					"message": "ChatMem API is running",
					"version": Version,
					"docs":    "/openapi.json",
				})
			})
			return nil
		},
	})

	registryroute.Register(registryroute.Plugin{
		Order: 0,
		Type:  registryroute.RouteTypeManagement,
		Loader: func(m *registryroute.Mount) error {
			// Liveness: process is up
			m.Router.GET("/health", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{
					"status":    "healthy",
					"message":   "API is operational",
					"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
				})
			})

			// Readiness: service has finished initializing and the database answers
			m.Router.GET("/ready", func(c *gin.Context) {
				if !ready.Load() {
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
					return
				}
				if m.Store != nil {
					if err := m.Store.Ping(c.Request.Context()); err != nil {
						log.Warn("Readiness check failed", "err", err)
						c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
						return
					}
				}
				c.JSON(http.StatusOK, gin.H{"status": "ready"})
			})

			// Prometheus metrics
			m.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

			return nil
		},
	})

	registrylifecycle.Register(registrylifecycle.Hook{
		Name:  "readiness",
		Order: 1000,
		Start: func(ctx context.Context) error {
			MarkReady()
			log.Info("ChatMem API started", "version", Version)
			return nil
		},
		Stop: func(ctx context.Context) error {
			MarkNotReady()
			log.Info("ChatMem API shutting down")
			return nil
		},
	})
}
