package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/dispatch-api/internal/handler"
)

type SizeLimitConfig struct {
	MaxBodySize   int64
	MaxUploadSize int64
}

func DefaultSizeLimitConfig() SizeLimitConfig {
	return SizeLimitConfig{
		MaxBodySize:   1 << 20,
		MaxUploadSize: 10 << 20,
	}
}

// SizeLimit caps request bodies. Multipart uploads get the larger limit.
func SizeLimit(config SizeLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := config.MaxBodySize
		if strings.HasPrefix(c.ContentType(), "multipart/") {
			limit = config.MaxUploadSize
		}

		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				handler.NewErrorResponse(fmt.Sprintf("request body exceeds %d bytes", limit)))
			return
		}

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
