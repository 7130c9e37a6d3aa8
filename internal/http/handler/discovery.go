package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/razorphish/core-api-sub000/internal/exchange"
)

// AuthorizationServerMetadata is the RFC 8414 discovery document.
type AuthorizationServerMetadata struct {
	Issuer                   string   `json:"issuer"`
	TokenEndpoint            string   `json:"token_endpoint"`
	RevocationEndpoint       string   `json:"revocation_endpoint"`
	JWKSURI                  string   `json:"jwks_uri"`
	GrantTypesSupported      []string `json:"grant_types_supported"`
	TokenEndpointAuthMethods []string `json:"token_endpoint_auth_methods_supported"`
	SigningAlgValues         []string `json:"token_endpoint_auth_signing_alg_values_supported"`
	ScopesSupported          []string `json:"scopes_supported"`
}

// Metadata returns the discovery document built from the request host.
func (h *OAuthHandler) Metadata(c *gin.Context) {
	c.JSON(http.StatusOK, NewMetadata(schemeOnly(c.Request), c.Request.Host))
}

// NewMetadata builds the document for base scheme://host.
func NewMetadata(scheme, host string) AuthorizationServerMetadata {
	base := fmt.Sprintf("%s://%s", scheme, host)
	return AuthorizationServerMetadata{
		Issuer:             base,
		TokenEndpoint:      base + "/oauth/token",
		RevocationEndpoint: base + "/oauth/revoke",
		JWKSURI:            base + "/.well-known/jwks.json",
		GrantTypesSupported: []string{
			exchange.GrantPassword,
			exchange.GrantClientCredentials,
			exchange.GrantRefreshToken,
			exchange.GrantJWTBearer,
		},
		TokenEndpointAuthMethods: []string{"client_secret_basic", "client_secret_post"},
		SigningAlgValues:         []string{"RS256"},
		ScopesSupported:          []string{exchange.WildcardScope},
	}
}

func schemeOnly(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme
}

