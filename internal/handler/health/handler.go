package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/dispatch-api/internal/handler"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type Handler struct {
	checks   map[string]Check
	gatherer prometheus.Gatherer
	timeout  time.Duration
}

// NewHandler serves readiness from checks and metrics from gatherer; a nil
// gatherer uses the default registry.
func NewHandler(checks map[string]Check, gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		checks:   checks,
		gatherer: gatherer,
		timeout:  2 * time.Second,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
		health.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"status": "UP"}))
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := gin.H{}
	ready := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = "DOWN"
			ready = false
			continue
		}
		status[name] = "UP"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, &handler.Response{
			Status:  "error",
			Message: "dependency unavailable",
			Data:    status,
		})
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(status))
}
