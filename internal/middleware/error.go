package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/appointment-engine/pkg/httputil"
)

// ErrorHandler renders the last error handlers attached with c.Error when
// nothing has been written yet. Server-side failures are logged at error
// level, rejections at debug.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		lastErr := c.Errors.Last().Err
		status := httputil.StatusOf(lastErr)

		level := zerolog.DebugLevel
		if status >= 500 {
			level = zerolog.ErrorLevel
		}
		for _, e := range c.Errors {
			log.WithLevel(level).
				Err(e.Err).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Int("status", status).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		httputil.RespondWithError(c, lastErr)
	}
}
