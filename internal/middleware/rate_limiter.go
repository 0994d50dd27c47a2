package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/dispatch-api/internal/handler"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
	// Idle limiters are dropped after this long.
	TTL time.Duration
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	config   RateLimiterConfig
	limiters *cache.Cache
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}
	return &RateLimiter{
		config:   config,
		limiters: cache.New(config.TTL, config.TTL),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.limiters.Get(key); ok {
		l := v.(*rate.Limiter)
		rl.limiters.SetDefault(key, l)
		return l
	}
	l := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	if err := rl.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		// lost the race to another request from the same client
		if v, ok := rl.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, handler.NewErrorResponse("rate limit exceeded"))
			return
		}
		c.Next()
	}
}
