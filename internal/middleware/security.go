package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

type SecurityConfig struct {
	HSTS       bool
	HSTSMaxAge int
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HSTS:       true,
		HSTSMaxAge: 31536000,
	}
}

// SecurityHeaders adds the headers an API behind TLS should always send.
func SecurityHeaders(config SecurityConfig) gin.HandlerFunc {
	hsts := fmt.Sprintf("max-age=%d; includeSubDomains", config.HSTSMaxAge)

	return func(c *gin.Context) {
		if config.HSTS {
			c.Header("Strict-Transport-Security", hsts)
		}
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Cache-Control", "no-store")

		c.Next()
	}
}
