package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/dispatch-api/internal/handler"
)

// ErrorHandler renders errors attached with c.Error by handlers that did not
// write a response themselves.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		handler.Error(c, c.Errors.Last().Err)
	}
}
