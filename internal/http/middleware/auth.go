package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/razorphish/core-api-sub000/internal/domain"
	"github.com/razorphish/core-api-sub000/internal/exchange"
)

const (
	subjectKey = "subject"
	// ClientIDKey carries the calling client id for request logging.
	ClientIDKey = "client_id"
)

// Bearer resolves the Authorization header to a stored access token.
type Bearer struct {
	Exchange *exchange.Service
}

// Authenticate rejects requests without a live bearer token.
func (m *Bearer) Authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		abortInvalidToken(c, "Authorization header required.")
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		abortInvalidToken(c, "Bearer token required.")
		return
	}

	token, err := m.Exchange.ResolveBearer(c.Request.Context(), strings.TrimSpace(parts[1]))
	if err != nil {
		if errors.Is(err, exchange.ErrInvalidToken) {
			abortInvalidToken(c, "Invalid access token.")
			return
		}
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": exchange.ErrCodeServerError, "error_description": "Internal server error."})
		return
	}

	c.Set(subjectKey, token)
	c.Set(ClientIDKey, token.ClientID)
	c.Next()
}

// GetSubject returns the token attached by Authenticate.
func GetSubject(c *gin.Context) (domain.Token, bool) {
	value, ok := c.Get(subjectKey)
	if !ok {
		return domain.Token{}, false
	}
	token, ok := value.(domain.Token)
	return token, ok
}

func abortInvalidToken(c *gin.Context, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": desc})
}
