package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a readiness dependency, such as the database pool or broker.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type Handler struct {
	deps    map[string]Pinger
	timeout time.Duration
}

func NewHandler(deps map[string]Pinger) *Handler {
	return &Handler{
		deps:    deps,
		timeout: 2 * time.Second,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, dep := range h.deps {
		if err := dep.PingContext(ctx); err != nil {
			checks[name] = "DOWN"
			ready = false
			continue
		}
		checks[name] = "UP"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP", "checks": checks})
}
