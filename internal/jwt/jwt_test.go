package jwt_test

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	golangjwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	customjwt "github.com/razorphish/core-api-sub000/internal/jwt"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func newManager(t *testing.T, key *rsa.PrivateKey) *customjwt.KeyManager {
	t.Helper()
	m, err := customjwt.NewKeyManager(key, nil)
	require.NoError(t, err)
	return m
}

func TestGeneratorRoundTrip(t *testing.T) {
	generator := customjwt.NewGenerator(newManager(t, newKey(t)), "https://auth.maras.co")
	require.True(t, generator.Enabled())

	token, err := generator.GenerateAccessToken("acc-1", customjwt.AccessTokenClaims{
		ClientID: "core-web-ui",
		Scope:    "*",
		Origin:   "http://localhost:4200",
	}, testNow, testNow.Add(30*time.Minute))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, custom, err := generator.ValidateAccessToken(token, testNow.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "acc-1", claims.Subject)
	require.Equal(t, "core-web-ui", custom.ClientID)
	require.Equal(t, "*", custom.Scope)

	_, _, err = generator.ValidateAccessToken(token, testNow.Add(time.Hour))
	require.Error(t, err)
}

func TestGeneratorWithoutPrivateKey(t *testing.T) {
	key := newKey(t)
	m, err := customjwt.NewKeyManager(nil, &key.PublicKey)
	require.NoError(t, err)

	generator := customjwt.NewGenerator(m, "")
	require.False(t, generator.Enabled())
	_, err = generator.GenerateAccessToken("acc-1", customjwt.AccessTokenClaims{}, testNow, testNow.Add(time.Minute))
	require.ErrorIs(t, err, customjwt.ErrNoSigningKey)
}

func TestJWKS(t *testing.T) {
	empty, err := customjwt.NewKeyManager(nil, nil)
	require.NoError(t, err)
	require.Empty(t, empty.JWKS().Keys)

	m := newManager(t, newKey(t))
	set := m.JWKS()
	require.Len(t, set.Keys, 1)
	require.True(t, set.Keys[0].IsPublic())
	require.Equal(t, m.KeyID(), set.Keys[0].KeyID)
	require.Equal(t, "RS256", set.Keys[0].Algorithm)
}

func TestKeyIDIsThumbprint(t *testing.T) {
	key := newKey(t)
	m := newManager(t, key)

	jwk := jose.JSONWebKey{Key: &key.PublicKey}
	thumb, err := jwk.Thumbprint(crypto.SHA256)
	require.NoError(t, err)
	require.Equal(t, base64.RawURLEncoding.EncodeToString(thumb), m.KeyID())

	public, err := customjwt.NewKeyManager(nil, &key.PublicKey)
	require.NoError(t, err)
	require.Equal(t, m.KeyID(), public.KeyID())
}

func TestLoadKeyManagerFromPEM(t *testing.T) {
	key := newKey(t)
	dir := t.TempDir()

	privPath := filepath.Join(dir, "private.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0o600))

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "public.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600))

	m, err := customjwt.LoadKeyManager(privPath, pubPath)
	require.NoError(t, err)
	require.True(t, m.CanSign())
	require.True(t, key.PublicKey.Equal(m.PublicKey()))

	other := newKey(t)
	otherDER, err := x509.MarshalPKIXPublicKey(&other.PublicKey)
	require.NoError(t, err)
	otherPath := filepath.Join(dir, "other.pem")
	require.NoError(t, os.WriteFile(otherPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: otherDER}), 0o600))

	_, err = customjwt.LoadKeyManager(privPath, otherPath)
	require.Error(t, err)
}

func signAssertion(t *testing.T, key *rsa.PrivateKey, claims golangjwt.RegisteredClaims) string {
	t.Helper()
	token, err := golangjwt.NewWithClaims(golangjwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestAssertionVerifier(t *testing.T) {
	key := newKey(t)
	verifier := customjwt.NewAssertionVerifier(newManager(t, key)).
		WithClock(func() time.Time { return testNow })

	valid := golangjwt.RegisteredClaims{
		Subject:   "core-web-ui",
		ExpiresAt: golangjwt.NewNumericDate(testNow.Add(5 * time.Minute)),
	}

	t.Run("valid", func(t *testing.T) {
		claims, err := verifier.Verify(signAssertion(t, key, valid), "core-web-ui")
		require.NoError(t, err)
		require.Equal(t, "core-web-ui", claims.Subject)
	})

	t.Run("foreign key", func(t *testing.T) {
		_, err := verifier.Verify(signAssertion(t, newKey(t), valid), "core-web-ui")
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired := valid
		expired.ExpiresAt = golangjwt.NewNumericDate(testNow.Add(-time.Minute))
		_, err := verifier.Verify(signAssertion(t, key, expired), "core-web-ui")
		require.Error(t, err)
	})

	t.Run("missing expiry", func(t *testing.T) {
		noExp := golangjwt.RegisteredClaims{Subject: "core-web-ui"}
		_, err := verifier.Verify(signAssertion(t, key, noExp), "core-web-ui")
		require.Error(t, err)
	})

	t.Run("other client", func(t *testing.T) {
		_, err := verifier.Verify(signAssertion(t, key, valid), "someone-else")
		require.ErrorIs(t, err, customjwt.ErrAssertionSubject)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := verifier.Verify("not-a-jwt", "core-web-ui")
		require.Error(t, err)
	})
}
