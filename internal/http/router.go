package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/config"
	"github.com/razorphish/core-api-sub000/internal/http/handler"
	httpmiddleware "github.com/razorphish/core-api-sub000/internal/http/middleware"
	"github.com/razorphish/core-api-sub000/internal/metrics"
	"github.com/razorphish/core-api-sub000/internal/middleware"
)

// RouterParams bundles what NewRouter needs.
type RouterParams struct {
	Config      config.Config
	OAuth       *handler.OAuthHandler
	Accounts    *handler.AccountHandler
	Bearer      *httpmiddleware.Bearer
	RateLimiter *middleware.RateLimiter
	Metrics     *metrics.Recorder
	Panics      httpmiddleware.PanicReporter
	Logger      *zap.Logger
}

// NewRouter wires Gin routes and middleware.
func NewRouter(p RouterParams) *gin.Engine {
	r := gin.New()
	r.Use(httpmiddleware.Recovery(p.Panics, p.Logger))
	r.Use(httpmiddleware.RequestLogger(p.Logger))
	r.Use(middleware.CORS(p.Config))
	r.Use(otelgin.Middleware(p.Config.ServiceName))

	r.GET("/healthz", p.OAuth.Health)
	r.GET("/metrics", gin.WrapH(p.Metrics.Handler()))

	r.GET("/.well-known/jwks.json", p.OAuth.JWKS)
	r.GET("/.well-known/oauth-authorization-server", p.OAuth.Metadata)

	oauth := r.Group("/oauth", p.RateLimiter.Handler())
	{
		oauth.POST("/token", p.OAuth.Token)
		oauth.POST("/revoke", p.OAuth.Revoke)
	}

	api := r.Group("/api")
	{
		api.POST("/auth/logout", p.Bearer.Authenticate, p.OAuth.Logout)
		if p.Accounts != nil {
			api.GET("/auth/me", p.Bearer.Authenticate, p.Accounts.Me)
			api.POST("/auth/password", p.Bearer.Authenticate, p.Accounts.ChangePassword)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	return r
}
