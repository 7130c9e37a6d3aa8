package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// GrantTypeKey carries the requested grant type for request logging.
	GrantTypeKey = "grant_type"
	// OAuthErrorKey carries the OAuth error code returned to the caller.
	OAuthErrorKey = "oauth_error"
)

// RequestLogger emits one "oauth_request" entry per call. Query strings and
// form bodies are never logged; only the route template, the grant type, the
// calling client and the bearer's account id are.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}

	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if grant := c.GetString(GrantTypeKey); grant != "" {
			fields = append(fields, zap.String("grant_type", grant))
		}
		if clientID := c.GetString(ClientIDKey); clientID != "" {
			fields = append(fields, zap.String("client_id", clientID))
		}
		if subject, ok := GetSubject(c); ok && subject.HasUser() {
			fields = append(fields, zap.String("account_id", subject.UserID))
		}
		if code := c.GetString(OAuthErrorKey); code != "" {
			fields = append(fields, zap.String("oauth_error", code))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("oauth_request", fields...)
		case status >= 400:
			logger.Warn("oauth_request", fields...)
		default:
			logger.Info("oauth_request", fields...)
		}
	}
}
