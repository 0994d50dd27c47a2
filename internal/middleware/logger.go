package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger returns a middleware that logs HTTP requests. Bodies are never
// logged: they carry passwords and uploaded photos.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" && c.Query("access_token") == "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		msg := "Request processed"
		switch {
		case status >= 500:
			event = log.Error()
			msg = "Server error"
		case status >= 400:
			event = log.Warn()
			msg = "Client error"
		default:
			event = log.Info()
		}

		if acc := CurrentAccount(c); acc != nil {
			event = event.Str("account_id", acc.ID.String())
		}

		event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}
