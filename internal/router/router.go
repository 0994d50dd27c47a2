package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/dispatch-api/internal/middleware"
	pkgvalidator "github.com/jwalitptl/dispatch-api/pkg/validator"
)

const (
	APIPrefix = "/api/v1"
	feedPath  = APIPrefix + "/operator/feed"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	handlers []Handler
	metrics  *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	AllowedOrigins   []string
	RequestTimeout   time.Duration
	MaxBodySize      int64
	MaxUploadSize    int64
	MetricsPrefix    string
	// Registerer receives the request metrics; nil uses the default registry.
	Registerer prometheus.Registerer
}

func NewRouter(config RouterConfig, handlers ...Handler) (*Router, error) {
	gin.SetMode(gin.ReleaseMode)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := pkgvalidator.Register(v); err != nil {
			return nil, fmt.Errorf("failed to register validators: %w", err)
		}
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		handlers: handlers,
		metrics:  initRouterMetrics(config.MetricsPrefix, config.Registerer),
	}

	timeout := middleware.DefaultTimeoutConfig()
	if config.RequestTimeout > 0 {
		timeout.Duration = config.RequestTimeout
	}
	timeout.SkipPrefixes = []string{feedPath}

	sizes := middleware.DefaultSizeLimitConfig()
	if config.MaxBodySize > 0 {
		sizes.MaxBodySize = config.MaxBodySize
	}
	if config.MaxUploadSize > 0 {
		sizes.MaxUploadSize = config.MaxUploadSize
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(middleware.DefaultCORSConfig(config.AllowedOrigins)),
		middleware.SizeLimit(sizes),
		middleware.Timeout(timeout),
	)

	if config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}

	return r, nil
}

func (r *Router) Setup() {
	api := r.engine.Group(APIPrefix)
	for _, h := range r.handlers {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string, reg prometheus.Registerer) *routerMetrics {
	if prefix == "" {
		prefix = "dispatch"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &routerMetrics{
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_http_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := fmt.Sprintf("%d", c.Writer.Status())

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
