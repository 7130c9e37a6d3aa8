package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	tokencache "github.com/razorphish/core-api-sub000/internal/adapter/cache"
	"github.com/razorphish/core-api-sub000/internal/clientauth"
	"github.com/razorphish/core-api-sub000/internal/domain"
	"github.com/razorphish/core-api-sub000/internal/jwt"
	"github.com/razorphish/core-api-sub000/internal/lockout"
	"github.com/razorphish/core-api-sub000/internal/metrics"
	"github.com/razorphish/core-api-sub000/internal/repository"
	"github.com/razorphish/core-api-sub000/internal/signer"
)

// Grant types accepted by the token endpoint.
const (
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
	GrantRefreshToken      = "refresh_token"
	GrantJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

const (
	// WildcardScope is granted to assertion tokens.
	WildcardScope = "*"

	defaultAccessLifetime    = 30
	defaultRefreshLifetime   = 1440
	defaultAssertionLifetime = 30

	loginProviderLocal     = "local"
	loginProviderClient    = "client"
	loginProviderAssertion = "jwt-bearer"
)

// Reporter receives infrastructure failures.
type Reporter interface {
	Report(ctx context.Context, err error)
}

// Config holds the lifetimes used when a client does not specify its own.
type Config struct {
	DefaultAccessLifetime    int
	DefaultRefreshLifetime   int
	AssertionLifetimeMinutes int
}

func (c Config) normalized() Config {
	if c.DefaultAccessLifetime <= 0 {
		c.DefaultAccessLifetime = defaultAccessLifetime
	}
	if c.DefaultRefreshLifetime <= 0 {
		c.DefaultRefreshLifetime = defaultRefreshLifetime
	}
	if c.AssertionLifetimeMinutes <= 0 {
		c.AssertionLifetimeMinutes = defaultAssertionLifetime
	}
	return c
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Clients    *clientauth.Verifier
	Guard      *lockout.Guard
	Accounts   repository.AccountRepository
	Tokens     repository.TokenRepository
	Cache      repository.TokenCache
	Signer     *signer.Signer
	JWT        *jwt.Generator
	Assertions *jwt.AssertionVerifier
	Metrics    *metrics.Recorder
	Reporter   Reporter
	Logger     *zap.Logger
	Tracer     trace.Tracer
}

// Service orchestrates the OAuth2 token exchange.
type Service struct {
	clients    *clientauth.Verifier
	guard      *lockout.Guard
	accounts   repository.AccountRepository
	tokens     repository.TokenRepository
	cache      repository.TokenCache
	signer     *signer.Signer
	jwt        *jwt.Generator
	assertions *jwt.AssertionVerifier
	metrics    *metrics.Recorder
	reporter   Reporter
	cfg        Config
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewService wires dependencies.
func NewService(deps Deps, cfg Config) *Service {
	if deps.Cache == nil {
		deps.Cache = tokencache.NoopTokenCache{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("github.com/razorphish/core-api-sub000/internal/exchange")
	}
	return &Service{
		clients:    deps.Clients,
		guard:      deps.Guard,
		accounts:   deps.Accounts,
		tokens:     deps.Tokens,
		cache:      deps.Cache,
		signer:     deps.Signer,
		jwt:        deps.JWT,
		assertions: deps.Assertions,
		metrics:    deps.Metrics,
		reporter:   deps.Reporter,
		cfg:        cfg.normalized(),
		logger:     deps.Logger,
		tracer:     deps.Tracer,
	}
}

// Request is a parsed token endpoint call.
type Request struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Origin       string
	Scope        string
	Username     string
	Password     string
	RefreshToken string
	Assertion    string
}

// Exchange authenticates the calling client and runs the selected grant.
func (s *Service) Exchange(ctx context.Context, req Request) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "Exchange.Exchange")
	defer span.End()
	span.SetAttributes(attribute.String("oauth.grant_type", req.GrantType), attribute.String("oauth.client_id", req.ClientID))

	resp, err := s.exchange(ctx, req)
	s.observe(ctx, req.GrantType, err)
	if err != nil {
		span.RecordError(err)
	}
	return resp, err
}

func (s *Service) exchange(ctx context.Context, req Request) (*TokenResponse, error) {
	switch req.GrantType {
	case GrantClientCredentials, GrantPassword, GrantRefreshToken, GrantJWTBearer:
	case "":
		return nil, invalidRequest("grant_type is required.")
	default:
		return nil, unsupportedGrant(req.GrantType)
	}

	client, err := s.AuthenticateClient(ctx, req.ClientID, req.ClientSecret, req.Origin)
	if err != nil {
		return nil, err
	}

	switch req.GrantType {
	case GrantClientCredentials:
		return s.ClientCredentials(ctx, client, req.ClientSecret, req.Scope)
	case GrantPassword:
		return s.Password(ctx, client, req.Username, req.Password, req.Scope)
	case GrantRefreshToken:
		return s.Refresh(ctx, client, req.RefreshToken)
	default:
		return s.JWTBearer(ctx, client, req.Assertion)
	}
}

// AuthenticateClient verifies the calling application.
func (s *Service) AuthenticateClient(ctx context.Context, clientID, secret, origin string) (domain.Client, error) {
	if strings.TrimSpace(clientID) == "" {
		return domain.Client{}, invalidClient(errors.New("missing client_id"))
	}
	client, err := s.clients.Verify(ctx, clientID, secret, origin)
	if err != nil {
		if _, ok := clientauth.AsFailure(err); ok {
			return domain.Client{}, invalidClient(err)
		}
		return domain.Client{}, serverError(err)
	}
	return client, nil
}

// ClientCredentials re-verifies the client and issues an access token whose
// subject is the client itself.
func (s *Service) ClientCredentials(ctx context.Context, client domain.Client, secret, scope string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "Exchange.ClientCredentials")
	defer span.End()

	verified, err := s.clients.Verify(ctx, client.ClientID, secret, client.Origin)
	if err != nil {
		if _, ok := clientauth.AsFailure(err); ok {
			return nil, invalidClient(err)
		}
		return nil, serverError(err)
	}

	access, raw, err := s.issueAccess(ctx, verified, "", s.accessLifetime(verified), normalizeScope(scope), loginProviderClient, false)
	if err != nil {
		return nil, serverError(err)
	}

	s.audit("client_credentials.success", "client_id", verified.ClientID)
	return newTokenResponse(access, raw, ""), nil
}

// Password authenticates the end user and issues an access and refresh token.
func (s *Service) Password(ctx context.Context, client domain.Client, username, password, scope string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "Exchange.Password")
	defer span.End()

	if strings.TrimSpace(username) == "" || password == "" {
		return nil, invalidGrant(descCredentials, errors.New("missing username or password"))
	}

	account, err := s.guard.Authenticate(ctx, username, password)
	if err != nil {
		failure, ok := lockout.AsFailure(err)
		if !ok {
			return nil, serverError(err)
		}
		span.SetAttributes(attribute.String("oauth.failure", failure.Reason.String()))
		s.audit("password.login.failure", "client_id", client.ClientID, "reason", failure.Reason.String())
		if failure.Reason == lockout.ReasonMaxAttempts {
			return nil, invalidGrant(descLocked, err)
		}
		return nil, invalidGrant(descCredentials, err)
	}

	effectiveScope := normalizeScope(scope)
	forceRefresh := account.AllowsRefresh()
	access, rawAccess, err := s.issueAccess(ctx, client, account.ID, s.accessLifetime(client), effectiveScope, loginProviderLocal, forceRefresh)
	if err != nil {
		return nil, serverError(err)
	}
	_, rawRefresh, err := s.issueRefresh(ctx, client, account.ID, s.refreshLifetime(client), effectiveScope, loginProviderLocal, forceRefresh)
	if err != nil {
		s.discard(ctx, access)
		return nil, serverError(err)
	}

	s.audit("password.login.success", "client_id", client.ClientID, "user_id", account.ID)
	resp := newTokenResponse(access, rawAccess, rawRefresh)
	public := account.Public()
	resp.User = &public
	return resp, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh token
// itself is returned unchanged.
func (s *Service) Refresh(ctx context.Context, client domain.Client, rawRefresh string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "Exchange.Refresh")
	defer span.End()

	if rawRefresh == "" {
		return nil, invalidRequest("refresh_token is required.")
	}

	stored, err := s.tokens.GetByValue(ctx, signer.Fingerprint(rawRefresh))
	switch {
	case errors.Is(err, domain.ErrTokenNotFound):
		return nil, invalidGrant(descRevoked, err)
	case err != nil:
		return nil, serverError(fmt.Errorf("lookup refresh token: %w", err))
	case stored.Name != domain.TokenNameRefresh:
		return nil, invalidGrant(descRevoked, errors.New("token is not a refresh token"))
	}

	now := s.signer.Now()
	if stored.Expired(now) {
		return nil, invalidGrant(descExpired, nil)
	}
	if !stored.ForceRefresh {
		return nil, invalidGrant(descRefreshOff, nil)
	}
	if stored.ClientID != "" && stored.ClientID != client.ClientID {
		return nil, invalidGrant(descClientMismatch, nil)
	}

	lifetime := s.accessLifetime(client)
	provider := stored.LoginProvider
	if stored.HasUser() {
		if _, err := s.accounts.GetByID(ctx, stored.UserID); err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return nil, invalidGrant(descRevoked, err)
			}
			return nil, serverError(fmt.Errorf("lookup account: %w", err))
		}
	} else if provider == loginProviderAssertion {
		lifetime = s.cfg.AssertionLifetimeMinutes
	}

	bound := client
	bound.Origin = stored.Origin
	access, rawAccess, err := s.issueAccess(ctx, bound, stored.UserID, lifetime, stored.Scope, provider, stored.ForceRefresh)
	if err != nil {
		return nil, serverError(err)
	}

	s.audit("refresh_token.success", "client_id", client.ClientID, "user_id", stored.UserID)
	return newTokenResponse(access, rawAccess, rawRefresh), nil
}

// JWTBearer verifies a signed assertion and issues tokens whose subject is the
// client, with a fixed lifetime and wildcard scope.
func (s *Service) JWTBearer(ctx context.Context, client domain.Client, assertion string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "Exchange.JWTBearer")
	defer span.End()

	if assertion == "" {
		return nil, invalidRequest("assertion is required.")
	}
	if s.assertions == nil {
		return nil, serverError(jwt.ErrNoSigningKey)
	}
	if _, err := s.assertions.Verify(assertion, client.ClientID); err != nil {
		if errors.Is(err, jwt.ErrNoSigningKey) {
			return nil, serverError(err)
		}
		return nil, invalidGrant(descAssertion, err)
	}

	lifetime := s.cfg.AssertionLifetimeMinutes
	access, rawAccess, err := s.issueAccess(ctx, client, "", lifetime, WildcardScope, loginProviderAssertion, true)
	if err != nil {
		return nil, serverError(err)
	}
	_, rawRefresh, err := s.issueRefresh(ctx, client, "", lifetime, WildcardScope, loginProviderAssertion, true)
	if err != nil {
		s.discard(ctx, access)
		return nil, serverError(err)
	}

	s.audit("jwt_bearer.success", "client_id", client.ClientID)
	return newTokenResponse(access, rawAccess, rawRefresh), nil
}

func (s *Service) issueAccess(ctx context.Context, client domain.Client, userID string, lifetime int, scope, provider string, forceRefresh bool) (domain.Token, string, error) {
	req := signer.IssueRequest{
		UserID:          userID,
		ClientID:        client.ClientID,
		Name:            domain.TokenNameAccess,
		LifetimeMinutes: lifetime,
		Scope:           scope,
		Origin:          client.Origin,
		LoginProvider:   provider,
		ForceRefresh:    forceRefresh,
		At:              s.signer.Now(),
	}

	if client.TokenProtocol == domain.ProtocolJWT && s.jwt.Enabled() {
		subject := userID
		if subject == "" {
			subject = client.ClientID
		}
		raw, err := s.jwt.GenerateAccessToken(subject, jwt.AccessTokenClaims{
			ClientID: client.ClientID,
			Scope:    scope,
			Origin:   client.Origin,
		}, req.At, signer.ExpiresAt(req.At, lifetime))
		if err != nil {
			return domain.Token{}, "", fmt.Errorf("sign access token: %w", err)
		}
		req.Raw = raw
	}

	issued, err := s.persist(ctx, req)
	if err != nil {
		return domain.Token{}, "", err
	}
	if err := s.cache.Set(ctx, issued.Token); err != nil {
		s.log().Warn("cache access token failed", zap.Error(err))
	}
	return issued.Token, issued.Raw, nil
}

func (s *Service) issueRefresh(ctx context.Context, client domain.Client, userID string, lifetime int, scope, provider string, forceRefresh bool) (domain.Token, string, error) {
	issued, err := s.persist(ctx, signer.IssueRequest{
		UserID:          userID,
		ClientID:        client.ClientID,
		Name:            domain.TokenNameRefresh,
		LifetimeMinutes: lifetime,
		Scope:           scope,
		Origin:          client.Origin,
		LoginProvider:   provider,
		ForceRefresh:    forceRefresh,
	})
	if err != nil {
		return domain.Token{}, "", err
	}
	return issued.Token, issued.Raw, nil
}

// discard removes an access token whose grant failed after it was stored.
func (s *Service) discard(ctx context.Context, token domain.Token) {
	if err := s.tokens.DeleteByValue(ctx, token.Value); err != nil {
		s.log().Warn("discard access token failed", zap.String("token_id", token.ID), zap.Error(err))
	}
	s.evict(ctx, token.Value)
}

func (s *Service) persist(ctx context.Context, req signer.IssueRequest) (signer.Issued, error) {
	issued, err := s.signer.Issue(req)
	if err != nil {
		return signer.Issued{}, fmt.Errorf("issue %s: %w", req.Name, err)
	}
	if err := s.tokens.Create(ctx, issued.Token); err != nil {
		return signer.Issued{}, fmt.Errorf("persist %s: %w", req.Name, err)
	}
	return issued, nil
}

func (s *Service) accessLifetime(client domain.Client) int {
	if client.TokenLifeTime > 0 {
		return client.TokenLifeTime
	}
	return s.cfg.DefaultAccessLifetime
}

func (s *Service) refreshLifetime(client domain.Client) int {
	if client.RefreshTokenLifeTime > 0 {
		return client.RefreshTokenLifeTime
	}
	return s.cfg.DefaultRefreshLifetime
}

func normalizeScope(scope string) string {
	trimmed := strings.Join(strings.Fields(scope), " ")
	if trimmed == "" {
		return WildcardScope
	}
	return trimmed
}

func (s *Service) observe(ctx context.Context, grant string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "denied"
		var grantErr *GrantError
		if errors.As(err, &grantErr) && grantErr.Code == ErrCodeServerError {
			outcome = "error"
			s.log().Error("token exchange failed", zap.String("grant_type", grant), zap.Error(err))
			s.report(ctx, err)
		}
	}
	if !knownGrant(grant) {
		grant = "other"
	}
	s.metrics.Grant(grant, outcome)
}

func knownGrant(grant string) bool {
	switch grant {
	case GrantClientCredentials, GrantPassword, GrantRefreshToken, GrantJWTBearer:
		return true
	}
	return false
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *Service) audit(event string, attrs ...any) {
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	s.log().Info("audit", fields...)
}

func (s *Service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
