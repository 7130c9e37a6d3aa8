package jwt

import (
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// Generator signs and validates RS256 access tokens.
type Generator struct {
	keys   *KeyManager
	issuer string
}

// NewGenerator constructs a JWT generator.
func NewGenerator(keys *KeyManager, issuer string) *Generator {
	return &Generator{keys: keys, issuer: issuer}
}

// AccessTokenClaims represent the private claims of an access token.
type AccessTokenClaims struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
	Origin   string `json:"origin,omitempty"`
}

// Enabled reports whether access tokens can be signed.
func (g *Generator) Enabled() bool {
	return g != nil && g.keys.CanSign()
}

// GenerateAccessToken produces a signed JWT for subject valid until expiry.
func (g *Generator) GenerateAccessToken(subject string, custom AccessTokenClaims, issuedAt, expiry time.Time) (string, error) {
	if !g.Enabled() {
		return "", ErrNoSigningKey
	}

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.RS256, Key: g.keys.private},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", g.keys.KeyID()),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	std := gojwt.Claims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    g.issuer,
		IssuedAt:  gojwt.NewNumericDate(issuedAt),
		NotBefore: gojwt.NewNumericDate(issuedAt),
		Expiry:    gojwt.NewNumericDate(expiry),
	}

	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// ValidateAccessToken verifies the signature and registered claims at now.
func (g *Generator) ValidateAccessToken(token string, now time.Time) (*gojwt.Claims, *AccessTokenClaims, error) {
	if g == nil || g.keys.PublicKey() == nil {
		return nil, nil, ErrNoSigningKey
	}

	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.RS256})
	if err != nil {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}

	var std gojwt.Claims
	var custom AccessTokenClaims
	if err := parsed.Claims(g.keys.PublicKey(), &std, &custom); err != nil {
		return nil, nil, fmt.Errorf("verify token: %w", err)
	}
	if err := std.ValidateWithLeeway(gojwt.Expected{Issuer: g.issuer, Time: now}, 0); err != nil {
		return nil, nil, fmt.Errorf("validate claims: %w", err)
	}
	return &std, &custom, nil
}
