package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/appointment-engine/pkg/httputil"
)

const DefaultMaxBodySize = 1 << 20

// SizeLimit rejects bodies over maxBytes up front and caps the reader for
// requests without a declared length.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, httputil.Response{
				Status:    httputil.StatusError,
				Code:      "payload_too_large",
				Message:   fmt.Sprintf("body size exceeds %d bytes", maxBytes),
				RequestID: c.GetString(ContextRequestID),
			})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
