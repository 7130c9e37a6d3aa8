package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/exchange"
	"github.com/razorphish/core-api-sub000/internal/http/middleware"
	"github.com/razorphish/core-api-sub000/internal/jwt"
)

// OAuthHandler serves the token exchange endpoints.
type OAuthHandler struct {
	Exchange *exchange.Service
	Keys     *jwt.KeyManager
	Ping     func(ctx context.Context) error
	Logger   *zap.Logger
}

// NewOAuthHandler creates the handler set.
func NewOAuthHandler(svc *exchange.Service, keys *jwt.KeyManager, ping func(ctx context.Context) error, logger *zap.Logger) *OAuthHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &OAuthHandler{Exchange: svc, Keys: keys, Ping: ping, Logger: logger}
}

type tokenRequest struct {
	GrantType    string `form:"grant_type"`
	ClientID     string `form:"client_id"`
	ClientSecret string `form:"client_secret"`
	Username     string `form:"username"`
	Password     string `form:"password"`
	Scope        string `form:"scope"`
	RefreshToken string `form:"refresh_token"`
	Assertion    string `form:"assertion"`
}

// Token handles OAuth token grant exchanges.
func (h *OAuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": exchange.ErrCodeInvalidRequest, "error_description": "Invalid token request."})
		return
	}

	clientID, secret := clientCredentials(c, req.ClientID, req.ClientSecret)
	c.Set(middleware.ClientIDKey, clientID)
	c.Set(middleware.GrantTypeKey, strings.TrimSpace(req.GrantType))

	resp, err := h.Exchange.Exchange(c.Request.Context(), exchange.Request{
		GrantType:    strings.TrimSpace(req.GrantType),
		ClientID:     clientID,
		ClientSecret: secret,
		Origin:       c.GetHeader("Origin"),
		Scope:        req.Scope,
		Username:     req.Username,
		Password:     req.Password,
		RefreshToken: req.RefreshToken,
		Assertion:    req.Assertion,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, resp)
}

// Revoke processes RFC 7009 token revocation.
func (h *OAuthHandler) Revoke(c *gin.Context) {
	var req struct {
		Token        string `form:"token"`
		ClientID     string `form:"client_id"`
		ClientSecret string `form:"client_secret"`
	}
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": exchange.ErrCodeInvalidRequest, "error_description": "token is required."})
		return
	}

	clientID, secret := clientCredentials(c, req.ClientID, req.ClientSecret)
	c.Set(middleware.ClientIDKey, clientID)
	client, err := h.Exchange.AuthenticateClient(c.Request.Context(), clientID, secret, c.GetHeader("Origin"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.Exchange.Revoke(c.Request.Context(), client, req.Token); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// Logout deletes every token of the authenticated subject.
func (h *OAuthHandler) Logout(c *gin.Context) {
	subject, ok := middleware.GetSubject(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}
	if _, err := h.Exchange.Logout(c.Request.Context(), subject); err != nil {
		h.Logger.Error("logout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": exchange.ErrCodeServerError, "error_description": "Internal server error."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// JWKS exposes the server public key.
func (h *OAuthHandler) JWKS(c *gin.Context) {
	c.JSON(http.StatusOK, h.Keys.JWKS())
}

// Health pings the backing store.
func (h *OAuthHandler) Health(c *gin.Context) {
	if h.Ping != nil {
		if err := h.Ping(c.Request.Context()); err != nil {
			h.Logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *OAuthHandler) respondError(c *gin.Context, err error) {
	var grantErr *exchange.GrantError
	if !errors.As(err, &grantErr) {
		grantErr = &exchange.GrantError{Code: exchange.ErrCodeServerError, Description: "Internal server error.", Status: http.StatusInternalServerError}
	}
	if grantErr.Status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Basic realm="oauth"`)
	}
	c.Set(middleware.OAuthErrorKey, grantErr.Code)
	c.JSON(grantErr.Status, gin.H{"error": grantErr.Code, "error_description": grantErr.Description})
}

// clientCredentials prefers HTTP Basic over form fields. Basic credentials are
// form-urlencoded per RFC 6749 section 2.3.1.
func clientCredentials(c *gin.Context, formID, formSecret string) (string, string) {
	if id, secret, ok := c.Request.BasicAuth(); ok {
		if decoded, err := url.QueryUnescape(id); err == nil {
			id = decoded
		}
		if decoded, err := url.QueryUnescape(secret); err == nil {
			secret = decoded
		}
		return id, secret
	}
	return strings.TrimSpace(formID), formSecret
}
