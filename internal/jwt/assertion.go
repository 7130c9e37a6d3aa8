package jwt

import (
	"errors"
	"fmt"
	"time"

	golangjwt "github.com/golang-jwt/jwt/v5"
)

// ErrAssertionSubject is returned when an assertion names a different client.
var ErrAssertionSubject = errors.New("jwt: assertion subject does not match client")

// AssertionVerifier checks jwt-bearer grant assertions against the server
// public key.
type AssertionVerifier struct {
	keys *KeyManager
	now  func() time.Time
}

func NewAssertionVerifier(keys *KeyManager) *AssertionVerifier {
	return &AssertionVerifier{keys: keys, now: time.Now}
}

// WithClock returns a copy of v using now as its time source.
func (v *AssertionVerifier) WithClock(now func() time.Time) *AssertionVerifier {
	cp := *v
	cp.now = now
	return &cp
}

// Verify parses an RS256 assertion. When the assertion carries a subject it
// must equal clientID.
func (v *AssertionVerifier) Verify(assertion, clientID string) (*golangjwt.RegisteredClaims, error) {
	public := v.keys.PublicKey()
	if public == nil {
		return nil, ErrNoSigningKey
	}

	var claims golangjwt.RegisteredClaims
	_, err := golangjwt.ParseWithClaims(assertion, &claims,
		func(*golangjwt.Token) (any, error) { return public, nil },
		golangjwt.WithValidMethods([]string{golangjwt.SigningMethodRS256.Alg()}),
		golangjwt.WithExpirationRequired(),
		golangjwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("verify assertion: %w", err)
	}
	if claims.Subject != "" && claims.Subject != clientID {
		return nil, ErrAssertionSubject
	}
	return &claims, nil
}
