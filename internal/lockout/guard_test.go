package lockout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/domain"
	"github.com/razorphish/core-api-sub000/internal/lockout"
	"github.com/razorphish/core-api-sub000/internal/metrics"
	"github.com/razorphish/core-api-sub000/internal/password"
	"github.com/razorphish/core-api-sub000/internal/repository"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestIsLocked(t *testing.T) {
	require.False(t, lockout.IsLocked(domain.Account{}, fixedNow))
	require.True(t, lockout.IsLocked(domain.Account{LockUntil: ptr(fixedNow.Add(time.Second))}, fixedNow))
	require.False(t, lockout.IsLocked(domain.Account{LockUntil: ptr(fixedNow)}, fixedNow))
	require.False(t, lockout.IsLocked(domain.Account{LockUntil: ptr(fixedNow.Add(-time.Minute))}, fixedNow))
}

func TestPolicyFailed(t *testing.T) {
	policy := lockout.DefaultPolicy()

	cases := []struct {
		name      string
		account   domain.Account
		kind      domain.LoginUpdateKind
		lockUntil *time.Time
	}{
		{
			name:    "first failure increments",
			account: domain.Account{LoginAttempts: 0},
			kind:    domain.LoginIncrement,
		},
		{
			name:    "below threshold increments",
			account: domain.Account{LoginAttempts: 3},
			kind:    domain.LoginIncrement,
		},
		{
			name:      "fifth failure locks",
			account:   domain.Account{LoginAttempts: 4},
			kind:      domain.LoginIncrement,
			lockUntil: ptr(fixedNow.Add(2 * time.Hour)),
		},
		{
			name:    "already locked only increments",
			account: domain.Account{LoginAttempts: 7, LockUntil: ptr(fixedNow.Add(time.Hour))},
			kind:    domain.LoginIncrement,
		},
		{
			name:    "expired lock restarts",
			account: domain.Account{LoginAttempts: 9, LockUntil: ptr(fixedNow.Add(-time.Minute))},
			kind:    domain.LoginRestart,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			update := policy.Failed(tc.account, fixedNow)
			require.Equal(t, tc.kind, update.Kind)
			require.Equal(t, tc.lockUntil, update.LockUntil)
		})
	}
}

func TestSucceeded(t *testing.T) {
	require.Equal(t, domain.LoginNoop, lockout.Succeeded(domain.Account{}).Kind)
	require.Equal(t, domain.LoginReset, lockout.Succeeded(domain.Account{LoginAttempts: 2}).Kind)
	require.Equal(t, domain.LoginReset, lockout.Succeeded(domain.Account{LockUntil: ptr(fixedNow.Add(-time.Hour))}).Kind)
}

type guardFixture struct {
	guard    *lockout.Guard
	accounts *repository.MemoryAccountRepo
	metrics  *metrics.Recorder
	now      *time.Time
}

func newGuardFixture(t *testing.T, seed domain.Account) guardFixture {
	t.Helper()
	accounts := repository.NewMemoryAccountRepo()
	_, err := accounts.Create(context.Background(), seed)
	require.NoError(t, err)

	now := fixedNow
	rec := metrics.New()
	guard := lockout.NewGuard(accounts, password.Argon2ID{}, lockout.DefaultPolicy(),
		lockout.WithClock(func() time.Time { return now }),
		lockout.WithMetrics(rec),
		lockout.WithLogger(zap.NewNop()),
	)
	return guardFixture{guard: guard, accounts: accounts, metrics: rec, now: &now}
}

func seededAccount(t *testing.T) domain.Account {
	t.Helper()
	cred, err := password.Argon2ID{}.Hash("Letme1n!")
	require.NoError(t, err)
	return domain.Account{
		ID:           "acc-1",
		Username:     "david@maras.co",
		Email:        "David@Maras.co",
		PasswordHash: cred.Hash,
		Salt:         cred.Salt,
		Status:       domain.AccountActive,
	}
}

func reasonOf(t *testing.T, err error) lockout.Reason {
	t.Helper()
	f, ok := lockout.AsFailure(err)
	require.True(t, ok, "expected failure, got %v", err)
	return f.Reason
}

func TestAuthenticateUnknownAccount(t *testing.T) {
	fx := newGuardFixture(t, seededAccount(t))
	_, err := fx.guard.Authenticate(context.Background(), "nobody@maras.co", "Letme1n!")
	require.Equal(t, lockout.ReasonNotFound, reasonOf(t, err))
}

func TestAuthenticateSuccessMatchesEmailCaseInsensitively(t *testing.T) {
	fx := newGuardFixture(t, seededAccount(t))
	account, err := fx.guard.Authenticate(context.Background(), "DAVID@maras.co", "Letme1n!")
	require.NoError(t, err)
	require.Equal(t, "acc-1", account.ID)
	require.Zero(t, account.LoginAttempts)
}

func TestAuthenticateLocksOnFifthFailure(t *testing.T) {
	ctx := context.Background()
	fx := newGuardFixture(t, seededAccount(t))

	for i := 1; i <= 4; i++ {
		_, err := fx.guard.Authenticate(ctx, "david@maras.co", "wrong")
		require.Equal(t, lockout.ReasonPasswordIncorrect, reasonOf(t, err), "attempt %d", i)
	}

	_, err := fx.guard.Authenticate(ctx, "david@maras.co", "wrong")
	require.Equal(t, lockout.ReasonMaxAttempts, reasonOf(t, err))

	stored, err := fx.accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, 5, stored.LoginAttempts)
	require.NotNil(t, stored.LockUntil)
	require.Equal(t, fixedNow.Add(2*time.Hour), *stored.LockUntil)
	require.Equal(t, float64(1), testutil.ToFloat64(fx.metrics.Lockouts()))

	// The correct password is still refused while the lock holds.
	_, err = fx.guard.Authenticate(ctx, "david@maras.co", "Letme1n!")
	require.Equal(t, lockout.ReasonMaxAttempts, reasonOf(t, err))

	stored, err = fx.accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, 6, stored.LoginAttempts)
	require.Equal(t, fixedNow.Add(2*time.Hour), *stored.LockUntil)
}

func TestAuthenticateAfterLockExpires(t *testing.T) {
	ctx := context.Background()
	seed := seededAccount(t)
	seed.LoginAttempts = 6
	seed.LockUntil = ptr(fixedNow.Add(-time.Minute))

	t.Run("failure restarts the counter", func(t *testing.T) {
		fx := newGuardFixture(t, seed)
		_, err := fx.guard.Authenticate(ctx, "david@maras.co", "wrong")
		require.Equal(t, lockout.ReasonPasswordIncorrect, reasonOf(t, err))

		stored, err := fx.accounts.GetByID(ctx, "acc-1")
		require.NoError(t, err)
		require.Equal(t, 1, stored.LoginAttempts)
		require.Nil(t, stored.LockUntil)
	})

	t.Run("success resets the counter", func(t *testing.T) {
		fx := newGuardFixture(t, seed)
		account, err := fx.guard.Authenticate(ctx, "david@maras.co", "Letme1n!")
		require.NoError(t, err)
		require.Zero(t, account.LoginAttempts)
		require.Nil(t, account.LockUntil)

		stored, err := fx.accounts.GetByID(ctx, "acc-1")
		require.NoError(t, err)
		require.Zero(t, stored.LoginAttempts)
		require.Nil(t, stored.LockUntil)
	})
}

func TestAuthenticateSuccessResetsPartialCount(t *testing.T) {
	ctx := context.Background()
	seed := seededAccount(t)
	seed.LoginAttempts = 3
	fx := newGuardFixture(t, seed)

	_, err := fx.guard.Authenticate(ctx, "david@maras.co", "Letme1n!")
	require.NoError(t, err)

	stored, err := fx.accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Zero(t, stored.LoginAttempts)
}

type failingAccounts struct {
	repository.AccountRepository
}

func (failingAccounts) GetByUsername(context.Context, string) (domain.Account, error) {
	return domain.Account{}, errors.New("connection refused")
}

func TestVerifyLoadedAccountCountsFailures(t *testing.T) {
	fx := newGuardFixture(t, seededAccount(t))
	ctx := context.Background()

	for i := 0; i < lockout.DefaultMaxAttempts; i++ {
		account, err := fx.accounts.GetByID(ctx, "acc-1")
		require.NoError(t, err)
		_, err = fx.guard.Verify(ctx, account, "wrong")
		require.Error(t, err)
	}

	account, err := fx.accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, lockout.DefaultMaxAttempts, account.LoginAttempts)
	require.True(t, lockout.IsLocked(account, *fx.now))

	_, err = fx.guard.Verify(ctx, account, "Letme1n!")
	require.Equal(t, lockout.ReasonMaxAttempts, reasonOf(t, err))
}

func TestAuthenticateStoreErrorIsNotAFailure(t *testing.T) {
	guard := lockout.NewGuard(failingAccounts{}, password.Argon2ID{}, lockout.Policy{})
	_, err := guard.Authenticate(context.Background(), "david@maras.co", "x")
	require.Error(t, err)
	_, ok := lockout.AsFailure(err)
	require.False(t, ok)
}

func TestReasonString(t *testing.T) {
	require.Equal(t, "NOT_FOUND", lockout.ReasonNotFound.String())
	require.Equal(t, "PASSWORD_INCORRECT", lockout.ReasonPasswordIncorrect.String())
	require.Equal(t, "MAX_ATTEMPTS", lockout.ReasonMaxAttempts.String())
	require.Equal(t, 2, int(lockout.ReasonMaxAttempts))
}
