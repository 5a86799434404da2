package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadyFunc reports whether the service can answer consumers.
type ReadyFunc func() bool

// Handler serves the operational endpoints.
type Handler struct {
	ready   ReadyFunc
	metrics http.Handler
	started time.Time
}

// NewHandler creates a new handler instance. A nil gatherer serves the
// default prometheus registry.
func NewHandler(ready ReadyFunc, gatherer prometheus.Gatherer) *Handler {
	if ready == nil {
		ready = func() bool { return true }
	}
	metrics := promhttp.Handler()
	if gatherer != nil {
		metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return &Handler{
		ready:   ready,
		metrics: metrics,
		started: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
	r.GET("/metrics", h.MetricsHandler)
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{
		"status": "alive",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}))
}

// ReadinessCheck answers 503 until the first feed has been published.
func (h *Handler) ReadinessCheck(c *gin.Context) {
	if !h.ready() {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse("notification feed not loaded yet"))
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"status": "ready"}))
}

func (h *Handler) MetricsHandler(c *gin.Context) {
	h.metrics.ServeHTTP(c.Writer, c.Request)
}
