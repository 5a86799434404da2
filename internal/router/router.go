package router

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/dashboard-notifications/internal/handler"
	"github.com/jwalitptl/dashboard-notifications/internal/middleware"
	"github.com/jwalitptl/dashboard-notifications/pkg/logger"
	"github.com/jwalitptl/dashboard-notifications/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine        *gin.Engine
	h             *handler.Handler
	notificationH Handler
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        float64
	RateBurst        int
	CORSConfig       middleware.CORSConfig
}

func NewRouter(
	h *handler.Handler,
	notificationH Handler,
	log *logger.Logger,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	r := &Router{
		engine:        engine,
		h:             h,
		notificationH: notificationH,
	}

	// Recovery sits inside RequestID so panics are logged with the id.
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.ErrorHandler(log),
	)
	if m != nil {
		engine.Use(middleware.Metrics(m))
	}
	engine.Use(middleware.CORS(config.CORSConfig))

	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RPS:   config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.h.RegisterRoutes(api)
	r.notificationH.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
