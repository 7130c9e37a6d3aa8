package exchange

import (
	"time"

	"github.com/razorphish/core-api-sub000/internal/domain"
)

// IssuedTimeFormat renders the .issued and .expires fields.
const IssuedTimeFormat = time.RFC1123

// TokenResponse is the body of a successful token exchange.
type TokenResponse struct {
	AccessToken  string                `json:"access_token"`
	RefreshToken string                `json:"refresh_token,omitempty"`
	TokenType    string                `json:"token_type"`
	ExpiresIn    int64                 `json:"expires_in"`
	Issued       string                `json:".issued"`
	Expires      string                `json:".expires"`
	Scope        string                `json:"scope,omitempty"`
	User         *domain.PublicAccount `json:"user,omitempty"`
}

func newTokenResponse(access domain.Token, rawAccess, rawRefresh string) *TokenResponse {
	return &TokenResponse{
		AccessToken:  rawAccess,
		RefreshToken: rawRefresh,
		TokenType:    domain.TokenTypeBearer,
		ExpiresIn:    access.ExpiresIn,
		Issued:       access.CreatedAt.UTC().Format(IssuedTimeFormat),
		Expires:      access.DateExpire.UTC().Format(IssuedTimeFormat),
		Scope:        access.Scope,
	}
}
