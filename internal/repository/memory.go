package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/razorphish/core-api-sub000/internal/domain"
)

// Compile-time interface assertions.
var (
	_ AccountRepository = (*MemoryAccountRepo)(nil)
	_ ClientRepository  = (*MemoryClientRepo)(nil)
	_ TokenRepository   = (*MemoryTokenRepo)(nil)
)

// NewMemoryStore returns a process-local store. It backs STORE_DRIVER=memory
// and the unit tests.
func NewMemoryStore() *Store {
	return &Store{
		Accounts: NewMemoryAccountRepo(),
		Clients:  NewMemoryClientRepo(),
		Tokens:   NewMemoryTokenRepo(),
		Ping:     func(context.Context) error { return nil },
		Close:    func(context.Context) error { return nil },
	}
}

// MemoryAccountRepo implements AccountRepository in memory.
type MemoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
}

func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{accounts: map[string]domain.Account{}}
}

func (r *MemoryAccountRepo) GetByUsername(_ context.Context, username string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	normalized := domain.NormalizeIdentifier(username)
	for _, a := range r.accounts {
		if a.NormalizedUsername == normalized || a.NormalizedEmail == normalized {
			return a, nil
		}
	}
	return domain.Account{}, domain.ErrAccountNotFound
}

func (r *MemoryAccountRepo) GetByID(_ context.Context, id string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return a, nil
}

func (r *MemoryAccountRepo) Create(_ context.Context, account domain.Account) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account.Normalize()
	r.accounts[account.ID] = account
	return account, nil
}

func (r *MemoryAccountRepo) UpdatePassword(_ context.Context, id, hash, salt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.PasswordHash = hash
	a.Salt = salt
	a.UpdatedAt = time.Now().UTC()
	r.accounts[id] = a
	return nil
}

func (r *MemoryAccountRepo) ApplyLoginUpdate(_ context.Context, id string, update domain.LoginUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	update.ApplyTo(&a)
	r.accounts[id] = a
	return nil
}

// MemoryClientRepo implements ClientRepository in memory.
type MemoryClientRepo struct {
	mu      sync.Mutex
	clients map[string]domain.Client
}

func NewMemoryClientRepo() *MemoryClientRepo {
	return &MemoryClientRepo{clients: map[string]domain.Client{}}
}

func (r *MemoryClientRepo) GetByClientID(_ context.Context, clientID string) (domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return domain.Client{}, domain.ErrClientNotFound
	}
	return c, nil
}

func (r *MemoryClientRepo) Upsert(_ context.Context, client domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clients[client.ClientID]; ok {
		client.ID = existing.ID
		client.CreatedAt = existing.CreatedAt
	}
	client.Origin = ""
	r.clients[client.ClientID] = client
	return nil
}

// MemoryTokenRepo implements TokenRepository in memory.
type MemoryTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]domain.Token
}

func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{tokens: map[string]domain.Token{}}
}

func (r *MemoryTokenRepo) Create(_ context.Context, token domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.Value] = token
	return nil
}

func (r *MemoryTokenRepo) GetByValue(_ context.Context, digest string) (domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[digest]
	if !ok {
		return domain.Token{}, domain.ErrTokenNotFound
	}
	return t, nil
}

func (r *MemoryTokenRepo) DeleteByValue(_ context.Context, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, digest)
	return nil
}

func (r *MemoryTokenRepo) DeleteByUser(_ context.Context, userID string) ([]string, error) {
	return r.deleteWhere(func(t domain.Token) bool { return t.UserID == userID }), nil
}

func (r *MemoryTokenRepo) DeleteByClientSubject(_ context.Context, clientID string) ([]string, error) {
	return r.deleteWhere(func(t domain.Token) bool { return t.ClientID == clientID && !t.HasUser() }), nil
}

func (r *MemoryTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	return int64(len(r.deleteWhere(func(t domain.Token) bool { return t.DateExpire.Before(before) }))), nil
}

// All returns every stored token ordered by creation time.
func (r *MemoryTokenRepo) All() []domain.Token {
	return r.filter(func(domain.Token) bool { return true })
}

func (r *MemoryTokenRepo) filter(keep func(domain.Token) bool) []domain.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Token
	for _, t := range r.tokens {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MemoryTokenRepo) deleteWhere(match func(domain.Token) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for k, t := range r.tokens {
		if match(t) {
			delete(r.tokens, k)
			removed = append(removed, k)
		}
	}
	return removed
}
