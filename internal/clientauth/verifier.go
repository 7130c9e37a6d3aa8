package clientauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/domain"
	"github.com/razorphish/core-api-sub000/internal/repository"
	"github.com/razorphish/core-api-sub000/internal/signer"
)

// Reason enumerates why a client was rejected. The order of the constants is
// the order in which the checks run.
type Reason int

const (
	ReasonNotFound Reason = iota
	ReasonSecretIncorrect
	ReasonOriginDisabled
	ReasonNotTrusted
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "NOT_FOUND"
	case ReasonSecretIncorrect:
		return "SECRET_INCORRECT"
	case ReasonOriginDisabled:
		return "ORIGIN_DISABLED"
	case ReasonNotTrusted:
		return "NOT_TRUSTED"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Failure is returned when a client is rejected.
type Failure struct {
	ClientID string
	Reason   Reason
}

func (f *Failure) Error() string {
	return fmt.Sprintf("client %q rejected: %s", f.ClientID, f.Reason)
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Verifier authenticates OAuth clients.
type Verifier struct {
	clients repository.ClientRepository
	logger  *zap.Logger
}

func NewVerifier(clients repository.ClientRepository, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.L()
	}
	return &Verifier{clients: clients, logger: logger}
}

// Verify checks existence, secret, origin and trust in that order. On success
// the returned client carries the origin it was verified against.
func (v *Verifier) Verify(ctx context.Context, clientID, secret, origin string) (domain.Client, error) {
	client, err := v.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			return v.reject(clientID, ReasonNotFound)
		}
		return domain.Client{}, fmt.Errorf("lookup client: %w", err)
	}

	if !SecretMatches(client, secret) {
		return v.reject(clientID, ReasonSecretIncorrect)
	}
	if !OriginAllowed(client, origin) {
		return v.reject(clientID, ReasonOriginDisabled)
	}
	if !client.IsTrusted {
		return v.reject(clientID, ReasonNotTrusted)
	}

	client.Origin = origin
	return client, nil
}

func (v *Verifier) reject(clientID string, reason Reason) (domain.Client, error) {
	v.logger.Debug("client rejected", zap.String("client_id", clientID), zap.Stringer("reason", reason))
	return domain.Client{}, &Failure{ClientID: clientID, Reason: reason}
}

// SecretMatches compares the fingerprint of secret with the stored hash.
func SecretMatches(client domain.Client, secret string) bool {
	digest := signer.Fingerprint(secret)
	return subtle.ConstantTimeCompare([]byte(digest), []byte(client.SecretHash)) == 1
}

// OriginAllowed is true when the allow-list holds the wildcard or origin itself.
func OriginAllowed(client domain.Client, origin string) bool {
	for _, allowed := range client.AllowedOrigins {
		if allowed == domain.WildcardOrigin || allowed == origin {
			return true
		}
	}
	return false
}
