package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/config"
)

func TestServeShutsDownOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	srv, err := NewHTTPServer(router, config.Config{}, zap.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestClientIPIgnoresUntrustedForwardedFor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clientIP := func(trusted []string) string {
		router := gin.New()
		router.GET("/ip", func(c *gin.Context) { c.String(http.StatusOK, c.ClientIP()) })
		_, err := NewHTTPServer(router, config.Config{TrustedProxies: trusted}, zap.NewNop())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/ip", nil)
		req.RemoteAddr = "192.0.2.1:4711"
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Body.String()
	}

	require.Equal(t, "192.0.2.1", clientIP(nil))
	require.Equal(t, "192.0.2.1", clientIP([]string{"10.0.0.0/8"}))
	require.Equal(t, "203.0.113.9", clientIP([]string{"192.0.2.0/24"}))
}

func TestNewHTTPServerRejectsInvalidProxy(t *testing.T) {
	_, err := NewHTTPServer(gin.New(), config.Config{TrustedProxies: []string{"not-an-ip"}}, zap.NewNop())
	require.Error(t, err)
}
