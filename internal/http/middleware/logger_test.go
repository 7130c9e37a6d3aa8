package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/razorphish/core-api-sub000/internal/domain"
)

func TestRequestLoggerRecordsGrantFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.POST("/oauth/token", func(c *gin.Context) {
		c.Set(GrantTypeKey, "password")
		c.Set(ClientIDKey, "core-web-ui")
		c.Set(OAuthErrorKey, "invalid_grant")
		c.Status(http.StatusForbidden)
	})
	r.GET("/api/auth/me", func(c *gin.Context) {
		c.Set(subjectKey, domain.Token{UserID: "acc-1", ClientID: "core-web-ui"})
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/oauth/token?password=leak", strings.NewReader("password=leak"))
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	entries := logs.All()
	require.Len(t, entries, 3)

	denied := entries[0]
	require.Equal(t, zapcore.WarnLevel, denied.Level)
	fields := denied.ContextMap()
	require.Equal(t, "/oauth/token", fields["route"])
	require.Equal(t, "password", fields["grant_type"])
	require.Equal(t, "core-web-ui", fields["client_id"])
	require.Equal(t, "invalid_grant", fields["oauth_error"])
	require.Equal(t, "req-1", fields["request_id"])
	for _, v := range fields {
		if s, ok := v.(string); ok {
			require.NotContains(t, s, "leak")
		}
	}

	me := entries[1].ContextMap()
	require.Equal(t, "acc-1", me["account_id"])
	require.NotContains(t, me, "grant_type")

	require.Equal(t, "unmatched", entries[2].ContextMap()["route"])
}
