package jwt

import (
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
	golangjwt "github.com/golang-jwt/jwt/v5"
)

// ErrNoSigningKey is returned when a signature is requested but only a public
// key (or no key) is loaded.
var ErrNoSigningKey = errors.New("jwt: no signing key configured")

// KeyManager holds the server RSA key pair used for JWT-protocol access
// tokens, the published JWKS and assertion verification.
type KeyManager struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
	kid     string
}

// NewKeyManager wraps an in-memory key. Either argument may be nil; the
// public key is derived from the private key when omitted.
func NewKeyManager(private *rsa.PrivateKey, public *rsa.PublicKey) (*KeyManager, error) {
	if public == nil && private != nil {
		public = &private.PublicKey
	}
	m := &KeyManager{private: private, public: public}
	if public == nil {
		return m, nil
	}

	jwk := m.JSONWebKey()
	thumb, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("key thumbprint: %w", err)
	}
	m.kid = base64.RawURLEncoding.EncodeToString(thumb)
	return m, nil
}

// LoadKeyManager reads PEM encoded keys from disk. Empty paths are skipped.
func LoadKeyManager(privatePath, publicPath string) (*KeyManager, error) {
	var (
		private *rsa.PrivateKey
		public  *rsa.PublicKey
	)
	if privatePath != "" {
		raw, err := os.ReadFile(privatePath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		if private, err = golangjwt.ParseRSAPrivateKeyFromPEM(raw); err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
	}
	if publicPath != "" {
		raw, err := os.ReadFile(publicPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		if public, err = golangjwt.ParseRSAPublicKeyFromPEM(raw); err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
	}
	if private != nil && public != nil && !private.PublicKey.Equal(public) {
		return nil, errors.New("jwt: public key does not match private key")
	}
	return NewKeyManager(private, public)
}

// CanSign reports whether a private key is loaded.
func (m *KeyManager) CanSign() bool {
	return m != nil && m.private != nil
}

// PublicKey returns the verification key, or nil.
func (m *KeyManager) PublicKey() *rsa.PublicKey {
	if m == nil {
		return nil
	}
	return m.public
}

// KeyID is the RFC 7638 thumbprint of the public key.
func (m *KeyManager) KeyID() string {
	if m == nil {
		return ""
	}
	return m.kid
}

// JSONWebKey converts the public key to jose.JSONWebKey.
func (m *KeyManager) JSONWebKey() jose.JSONWebKey {
	return jose.JSONWebKey{
		KeyID:     m.kid,
		Use:       "sig",
		Algorithm: string(jose.RS256),
		Key:       m.public,
	}
}

// JWKS returns the public JSON Web Key Set; it is empty when no key is loaded.
func (m *KeyManager) JWKS() jose.JSONWebKeySet {
	if m.PublicKey() == nil {
		return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{}}
	}
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{m.JSONWebKey()}}
}
