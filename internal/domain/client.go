package domain

import "time"

// ApplicationType distinguishes clients that can keep a secret from those that cannot.
type ApplicationType string

const (
	ApplicationConfidential ApplicationType = "confidential"
	ApplicationNative       ApplicationType = "native"
)

// TokenProtocol selects the access token format issued to a client.
type TokenProtocol string

const (
	ProtocolHTTP TokenProtocol = "http"
	ProtocolJWT  TokenProtocol = "jwt"
)

// WildcardOrigin allows any origin when present in Client.AllowedOrigins.
const WildcardOrigin = "*"

// Client is a registered OAuth application.
type Client struct {
	ID                   string          `bson:"_id"`
	ClientID             string          `bson:"clientId"`
	Name                 string          `bson:"name"`
	SecretHash           string          `bson:"clientSecret"`
	IsTrusted            bool            `bson:"isTrusted"`
	ApplicationType      ApplicationType `bson:"applicationType"`
	AllowedOrigins       []string        `bson:"allowedOrigins"`
	TokenLifeTime        int             `bson:"tokenLifeTime"`
	RefreshTokenLifeTime int             `bson:"refreshTokenLifeTime"`
	TokenProtocol        TokenProtocol   `bson:"tokenProtocol"`
	Status               string          `bson:"status"`
	CreatedAt            time.Time       `bson:"createdAt"`

	// Origin is the request origin the client was verified against. It is
	// never persisted.
	Origin string `bson:"-"`
}
