package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/domain"
	"github.com/razorphish/core-api-sub000/internal/metrics"
	"github.com/razorphish/core-api-sub000/internal/password"
	"github.com/razorphish/core-api-sub000/internal/repository"
)

const (
	// DefaultMaxAttempts is the failed-attempt threshold that triggers a lock.
	DefaultMaxAttempts = 5
	// DefaultLockDuration is how long a locked account stays locked.
	DefaultLockDuration = 2 * time.Hour
)

// Reason enumerates why authentication failed.
type Reason int

const (
	ReasonNotFound Reason = iota
	ReasonPasswordIncorrect
	ReasonMaxAttempts
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "NOT_FOUND"
	case ReasonPasswordIncorrect:
		return "PASSWORD_INCORRECT"
	case ReasonMaxAttempts:
		return "MAX_ATTEMPTS"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Failure is returned when credentials are rejected.
type Failure struct {
	Reason Reason
}

func (f *Failure) Error() string {
	return "authenticate: " + f.Reason.String()
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsLocked is true iff LockUntil is set and strictly after now.
func IsLocked(a domain.Account, now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}

// Policy holds the lockout thresholds.
type Policy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// DefaultPolicy returns the built-in thresholds.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, LockDuration: DefaultLockDuration}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.LockDuration <= 0 {
		p.LockDuration = DefaultLockDuration
	}
	return p
}

// Failed returns the update for a failed authentication.
func (p Policy) Failed(a domain.Account, now time.Time) domain.LoginUpdate {
	p = p.normalized()
	if a.LockUntil != nil && !a.LockUntil.After(now) {
		return domain.LoginUpdate{Kind: domain.LoginRestart}
	}
	update := domain.LoginUpdate{Kind: domain.LoginIncrement}
	if a.LoginAttempts+1 >= p.MaxAttempts && !IsLocked(a, now) {
		until := now.Add(p.LockDuration)
		update.LockUntil = &until
	}
	return update
}

// Succeeded returns the update for a successful authentication.
func Succeeded(a domain.Account) domain.LoginUpdate {
	if a.LoginAttempts > 0 || a.LockUntil != nil {
		return domain.LoginUpdate{Kind: domain.LoginReset}
	}
	return domain.LoginUpdate{Kind: domain.LoginNoop}
}

// Guard authenticates accounts and maintains their lockout counters.
type Guard struct {
	accounts repository.AccountRepository
	hasher   password.Hasher
	policy   Policy
	now      func() time.Time
	metrics  *metrics.Recorder
	logger   *zap.Logger
}

// Option customises a Guard.
type Option func(*Guard)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(g *Guard) { g.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// NewGuard wires a Guard.
func NewGuard(accounts repository.AccountRepository, hasher password.Hasher, policy Policy, opts ...Option) *Guard {
	g := &Guard{
		accounts: accounts,
		hasher:   hasher,
		policy:   policy.normalized(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate checks identifier/password. Rejections are *Failure; any other
// error is a store failure.
func (g *Guard) Authenticate(ctx context.Context, identifier, plain string) (domain.Account, error) {
	account, err := g.accounts.GetByUsername(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Account{}, &Failure{Reason: ReasonNotFound}
		}
		return domain.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	return g.Verify(ctx, account, plain)
}

// Verify checks plain against an already loaded account and records the
// outcome in its attempt counters.
func (g *Guard) Verify(ctx context.Context, account domain.Account, plain string) (domain.Account, error) {
	now := g.now().UTC()
	if IsLocked(account, now) {
		if err := g.apply(ctx, &account, g.policy.Failed(account, now)); err != nil {
			return domain.Account{}, err
		}
		return domain.Account{}, &Failure{Reason: ReasonMaxAttempts}
	}

	if !g.hasher.Compare(plain, account.PasswordHash) {
		if err := g.apply(ctx, &account, g.policy.Failed(account, now)); err != nil {
			return domain.Account{}, err
		}
		if IsLocked(account, now) {
			g.metrics.Lockout()
			g.log().Info("audit",
				zap.String("event", "account.locked"),
				zap.String("account_id", account.ID),
				zap.Time("lock_until", *account.LockUntil),
			)
			return domain.Account{}, &Failure{Reason: ReasonMaxAttempts}
		}
		return domain.Account{}, &Failure{Reason: ReasonPasswordIncorrect}
	}

	if err := g.apply(ctx, &account, Succeeded(account)); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

func (g *Guard) apply(ctx context.Context, account *domain.Account, update domain.LoginUpdate) error {
	if update.Kind == domain.LoginNoop {
		return nil
	}
	if err := g.accounts.ApplyLoginUpdate(ctx, account.ID, update); err != nil {
		return fmt.Errorf("update login attempts: %w", err)
	}
	update.ApplyTo(account)
	return nil
}

func (g *Guard) log() *zap.Logger {
	if g.logger != nil {
		return g.logger
	}
	return zap.L()
}
