package middleware

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PanicReporter receives recovered panics.
type PanicReporter interface {
	Recovered(ctx context.Context, value any)
}

// Recovery turns panics into a 500 OAuth error body and reports them.
func Recovery(reporter PanicReporter, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if reporter != nil {
				reporter.Recovered(c.Request.Context(), rec)
			}
			logger.Error("panic_recovered",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Internal server error.",
			})
		}()
		c.Next()
	}
}
