package signer

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/razorphish/core-api-sub000/internal/domain"
)

// DefaultTokenLength is the number of characters in a generated opaque token.
const DefaultTokenLength = 256

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// largest multiple of len(alphabet) that fits in a byte; bytes at or above it
// are rejected so every character is equally likely.
const maxUnbiased = 256 - (256 % len(alphabet))

// GenerateOpaqueToken returns n cryptographically random alphanumeric
// characters. n <= 0 selects DefaultTokenLength.
func GenerateOpaqueToken(n int) (string, error) {
	if n <= 0 {
		n = DefaultTokenLength
	}
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// Fingerprint returns the hex SHA-256 digest of token. It is the only form
// of a secret that is ever persisted.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IssueRequest describes a token to mint.
type IssueRequest struct {
	UserID          string
	ClientID        string
	Name            string
	LifetimeMinutes int
	Scope           string
	Origin          string
	LoginProvider   string
	ForceRefresh    bool
	// Raw, when set, is used as the secret instead of a generated opaque token
	// (signed JWT access tokens).
	Raw string
	// At pins the issuance time; zero means now.
	At time.Time
}

// Issued pairs the storable record with the secret returned to the caller once.
type Issued struct {
	Token domain.Token
	Raw   string
}

// Signer mints token records.
type Signer struct {
	node   *snowflake.Node
	length int
	now    func() time.Time
}

// Option customises a Signer.
type Option func(*Signer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// WithTokenLength overrides the opaque token length.
func WithTokenLength(n int) Option {
	return func(s *Signer) {
		if n > 0 {
			s.length = n
		}
	}
}

// New constructs a Signer.
func New(node *snowflake.Node, opts ...Option) *Signer {
	s := &Signer{node: node, length: DefaultTokenLength, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now exposes the signer clock so collaborators share one notion of time.
func (s *Signer) Now() time.Time {
	return s.now().UTC()
}

// Issue computes expiry from the lifetime and returns the record with its raw secret.
func (s *Signer) Issue(req IssueRequest) (Issued, error) {
	raw := req.Raw
	if raw == "" {
		generated, err := GenerateOpaqueToken(s.length)
		if err != nil {
			return Issued{}, fmt.Errorf("generate token: %w", err)
		}
		raw = generated
	}

	now := req.At.UTC()
	if req.At.IsZero() {
		now = s.Now()
	}
	expiresIn := int64(req.LifetimeMinutes) * 60
	provider := req.LoginProvider
	if provider == "" {
		provider = "local"
	}

	return Issued{
		Raw: raw,
		Token: domain.Token{
			ID:            s.node.Generate().String(),
			Value:         Fingerprint(raw),
			LoginProvider: provider,
			Name:          req.Name,
			Scope:         req.Scope,
			Type:          domain.TokenTypeBearer,
			ExpiresIn:     expiresIn,
			DateExpire:    ExpiresAt(now, req.LifetimeMinutes),
			UserID:        req.UserID,
			ClientID:      req.ClientID,
			Origin:        req.Origin,
			ForceRefresh:  req.ForceRefresh,
			CreatedAt:     now,
		},
	}, nil
}

// ExpiresAt is the absolute expiry of a token issued at for minutes.
func ExpiresAt(at time.Time, minutes int) time.Time {
	return at.Add(time.Duration(minutes) * time.Minute)
}
