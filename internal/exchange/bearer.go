package exchange

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/domain"
	"github.com/razorphish/core-api-sub000/internal/signer"
)

// ErrInvalidToken is returned for unknown, expired or non-access bearer tokens.
var ErrInvalidToken = errors.New("exchange: invalid bearer token")

// ResolveBearer maps a presented access token to its stored record, consulting
// the cache before the store.
func (s *Service) ResolveBearer(ctx context.Context, raw string) (domain.Token, error) {
	ctx, span := s.startSpan(ctx, "Exchange.ResolveBearer")
	defer span.End()

	if raw == "" {
		return domain.Token{}, ErrInvalidToken
	}
	digest := signer.Fingerprint(raw)

	cached, err := s.cache.Get(ctx, digest)
	if err != nil {
		s.log().Warn("token cache lookup failed", zap.Error(err))
	}

	var token domain.Token
	if cached != nil {
		token = *cached
	} else {
		token, err = s.tokens.GetByValue(ctx, digest)
		if errors.Is(err, domain.ErrTokenNotFound) {
			return domain.Token{}, ErrInvalidToken
		}
		if err != nil {
			span.RecordError(err)
			return domain.Token{}, fmt.Errorf("lookup bearer token: %w", err)
		}
	}

	if token.Name != domain.TokenNameAccess {
		return domain.Token{}, ErrInvalidToken
	}
	if token.Expired(s.signer.Now()) {
		_ = s.cache.Delete(ctx, digest)
		return domain.Token{}, ErrInvalidToken
	}
	if cached == nil {
		if err := s.cache.Set(ctx, token); err != nil {
			s.log().Warn("cache access token failed", zap.Error(err))
		}
	}
	return token, nil
}

// Logout deletes every token of the subject the bearer token represents: the
// account when it has one, otherwise the client's own tokens.
func (s *Service) Logout(ctx context.Context, subject domain.Token) (int64, error) {
	ctx, span := s.startSpan(ctx, "Exchange.Logout")
	defer span.End()

	var (
		digests []string
		err     error
	)
	if subject.HasUser() {
		digests, err = s.tokens.DeleteByUser(ctx, subject.UserID)
	} else {
		digests, err = s.tokens.DeleteByClientSubject(ctx, subject.ClientID)
	}
	if err != nil {
		span.RecordError(err)
		s.report(ctx, err)
		return 0, fmt.Errorf("logout: %w", err)
	}

	s.evict(ctx, digests...)
	deleted := int64(len(digests))
	s.audit("logout", "client_id", subject.ClientID, "user_id", subject.UserID, "deleted", deleted)
	return deleted, nil
}

// Revoke deletes the presented token when it belongs to client. Unknown tokens
// are not an error.
func (s *Service) Revoke(ctx context.Context, client domain.Client, raw string) error {
	ctx, span := s.startSpan(ctx, "Exchange.Revoke")
	defer span.End()

	if raw == "" {
		return invalidRequest("token is required.")
	}

	digest := signer.Fingerprint(raw)
	token, err := s.tokens.GetByValue(ctx, digest)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		s.report(ctx, err)
		return serverError(err)
	}
	if token.ClientID != client.ClientID {
		return nil
	}

	if err := s.tokens.DeleteByValue(ctx, digest); err != nil {
		s.report(ctx, err)
		return serverError(err)
	}
	s.evict(ctx, token.Value)
	s.audit("token.revoked", "client_id", client.ClientID, "token_id", token.ID, "name", token.Name)
	return nil
}

// SweepExpired removes tokens whose expiry has passed.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx, s.signer.Now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired tokens: %w", err)
	}
	s.metrics.Swept(n)
	return n, nil
}

func (s *Service) evict(ctx context.Context, digests ...string) {
	if len(digests) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, digests...); err != nil {
		s.log().Warn("evict cached tokens failed", zap.Error(err))
	}
}

func (s *Service) report(ctx context.Context, err error) {
	if s.reporter != nil {
		s.reporter.Report(ctx, err)
	}
}
