package repository

import (
	"context"
	"time"

	"github.com/razorphish/core-api-sub000/internal/domain"
)

// AccountRepository exposes persistence for end-user accounts.
type AccountRepository interface {
	// GetByUsername matches the normalized username or email.
	GetByUsername(ctx context.Context, username string) (domain.Account, error)
	GetByID(ctx context.Context, id string) (domain.Account, error)
	Create(ctx context.Context, account domain.Account) (domain.Account, error)
	UpdatePassword(ctx context.Context, id, hash, salt string) error
	ApplyLoginUpdate(ctx context.Context, id string, update domain.LoginUpdate) error
}

// ClientRepository exposes OAuth client registrations.
type ClientRepository interface {
	GetByClientID(ctx context.Context, clientID string) (domain.Client, error)
	Upsert(ctx context.Context, client domain.Client) error
}

// TokenRepository persists issued tokens keyed by their fingerprint.
type TokenRepository interface {
	Create(ctx context.Context, token domain.Token) error
	GetByValue(ctx context.Context, digest string) (domain.Token, error)
	DeleteByValue(ctx context.Context, digest string) error
	// DeleteByUser and DeleteByClientSubject return the digests they removed.
	DeleteByUser(ctx context.Context, userID string) ([]string, error)
	DeleteByClientSubject(ctx context.Context, clientID string) ([]string, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// TokenCache is a read-through cache in front of TokenRepository lookups.
type TokenCache interface {
	Get(ctx context.Context, digest string) (*domain.Token, error)
	Set(ctx context.Context, token domain.Token) error
	Delete(ctx context.Context, digests ...string) error
}

// Store bundles the repositories of one backend.
type Store struct {
	Accounts AccountRepository
	Clients  ClientRepository
	Tokens   TokenRepository
	Ping     func(ctx context.Context) error
	Close    func(ctx context.Context) error
}
