package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/domain"
	"github.com/razorphish/core-api-sub000/internal/lockout"
	"github.com/razorphish/core-api-sub000/internal/password"
	"github.com/razorphish/core-api-sub000/internal/repository"
)

var (
	// ErrAccountExists is returned when the username or email is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrPasswordRequired rejects empty passwords.
	ErrPasswordRequired = errors.New("password is required")
	// ErrPasswordMismatch is returned when the current password does not verify.
	ErrPasswordMismatch = errors.New("current password is incorrect")
	// ErrAccountLocked is returned while the account is locked out.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrIdentifierRequired rejects accounts without an email.
	ErrIdentifierRequired = errors.New("email is required")
)

// RegisterInput describes a new account.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Roles     []string
}

// AccountService owns account writes that touch credentials.
type AccountService struct {
	accounts repository.AccountRepository
	hasher   password.Hasher
	guard    *lockout.Guard
	node     *snowflake.Node
	now      func() time.Time
	logger   *zap.Logger
}

// NewAccountService wires dependencies. guard counts failed current-password
// checks against the same lockout as the password grant.
func NewAccountService(accounts repository.AccountRepository, hasher password.Hasher, guard *lockout.Guard, node *snowflake.Node, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.L()
	}
	return &AccountService{accounts: accounts, hasher: hasher, guard: guard, node: node, now: time.Now, logger: logger}
}

// Register creates an active account with a freshly hashed password.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (domain.Account, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return domain.Account{}, ErrIdentifierRequired
	}
	if in.Password == "" {
		return domain.Account{}, ErrPasswordRequired
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = email
	}

	for _, identifier := range []string{email, username} {
		_, err := s.accounts.GetByUsername(ctx, identifier)
		if err == nil {
			return domain.Account{}, ErrAccountExists
		}
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Account{}, fmt.Errorf("lookup account: %w", err)
		}
	}

	cred, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	account := domain.Account{
		ID:           s.node.Generate().String(),
		Username:     username,
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		DisplayName:  strings.TrimSpace(strings.TrimSpace(in.FirstName) + " " + strings.TrimSpace(in.LastName)),
		PasswordHash: cred.Hash,
		Salt:         cred.Salt,
		Status:       domain.AccountActive,
		Roles:        in.Roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	s.logger.Info("audit", zap.String("event", "account.registered"), zap.String("account_id", created.ID))
	return created, nil
}

// SetPassword re-hashes plain and stores it. Callers never write hashes directly.
func (s *AccountService) SetPassword(ctx context.Context, accountID, plain string) error {
	if plain == "" {
		return ErrPasswordRequired
	}
	cred, err := s.hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePassword(ctx, accountID, cred.Hash, cred.Salt); err != nil {
		return err
	}
	s.logger.Info("audit", zap.String("event", "account.password_changed"), zap.String("account_id", accountID))
	return nil
}

// ChangePassword verifies current before replacing it with next.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if next == "" {
		return ErrPasswordRequired
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if _, err := s.guard.Verify(ctx, account, current); err != nil {
		failure, ok := lockout.AsFailure(err)
		if !ok {
			return err
		}
		if failure.Reason == lockout.ReasonMaxAttempts {
			return ErrAccountLocked
		}
		return ErrPasswordMismatch
	}
	return s.SetPassword(ctx, accountID, next)
}

// Profile returns the public projection of the account.
func (s *AccountService) Profile(ctx context.Context, accountID string) (domain.PublicAccount, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return domain.PublicAccount{}, err
	}
	return account.Public(), nil
}
