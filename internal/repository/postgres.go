package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/razorphish/core-api-sub000/internal/domain"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Compile-time interface assertions.
var (
	_ AccountRepository = (*PostgresAccountRepo)(nil)
	_ ClientRepository  = (*PostgresClientRepo)(nil)
	_ TokenRepository   = (*PostgresTokenRepo)(nil)
)

// OpenPostgres connects to Postgres, applies migrations and returns the store.
func OpenPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{
		Accounts: NewPostgresAccountRepo(pool),
		Clients:  NewPostgresClientRepo(pool),
		Tokens:   NewPostgresTokenRepo(pool),
		Ping:     pool.Ping,
		Close: func(context.Context) error {
			pool.Close()
			return nil
		},
	}, nil
}

// RunMigrations applies embedded SQL files that have not been recorded yet.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migration files: %w", err)
	}

	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			versions = append(versions, entry.Name())
		}
	}
	sort.Strings(versions)

	for _, version := range versions {
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if exists {
			continue
		}

		script, err := migrationFiles.ReadFile("migrations/" + version)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}

		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(script)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
	}
	return nil
}

const accountColumns = `id, username, normalized_username, email, normalized_email, first_name, last_name, display_name,
password_hash, salt, login_attempts, lock_until, status, roles, addresses, devices, force_refresh, created_at, updated_at`

// PostgresAccountRepo implements AccountRepository.
type PostgresAccountRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAccountRepo(pool *pgxpool.Pool) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: pool}
}

func (r *PostgresAccountRepo) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	normalized := domain.NormalizeIdentifier(username)
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE normalized_username = $1 OR normalized_email = $1
LIMIT 1`, normalized)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account by id: %w", err)
	}
	return account, nil
}

const insertAccountSQL = `INSERT INTO accounts (id, username, normalized_username, email, normalized_email, first_name, last_name,
display_name, password_hash, salt, login_attempts, lock_until, status, roles, addresses, devices, force_refresh, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::jsonb, $16::jsonb, $17, $18, $19)`

func (r *PostgresAccountRepo) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	account.Normalize()
	addresses, err := json.Marshal(nonNilSlice(account.Addresses))
	if err != nil {
		return domain.Account{}, fmt.Errorf("encode addresses: %w", err)
	}
	devices, err := json.Marshal(nonNilSlice(account.Devices))
	if err != nil {
		return domain.Account{}, fmt.Errorf("encode devices: %w", err)
	}
	var forceRefresh *bool
	if account.RefreshToken != nil {
		v := account.RefreshToken.ForceRefresh
		forceRefresh = &v
	}

	_, err = r.db.Exec(ctx, insertAccountSQL,
		account.ID,
		account.Username,
		account.NormalizedUsername,
		account.Email,
		account.NormalizedEmail,
		account.FirstName,
		account.LastName,
		account.DisplayName,
		account.PasswordHash,
		account.Salt,
		account.LoginAttempts,
		account.LockUntil,
		string(account.Status),
		nonNilSlice(account.Roles),
		string(addresses),
		string(devices),
		forceRefresh,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) UpdatePassword(ctx context.Context, id, hash, salt string) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET password_hash = $2, salt = $3, updated_at = NOW() WHERE id = $1`, id, hash, salt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepo) ApplyLoginUpdate(ctx context.Context, id string, update domain.LoginUpdate) error {
	var (
		query string
		args  = []any{id}
	)
	switch update.Kind {
	case domain.LoginNoop:
		return nil
	case domain.LoginIncrement:
		query = `UPDATE accounts SET login_attempts = login_attempts + 1, lock_until = COALESCE($2, lock_until), updated_at = NOW() WHERE id = $1`
		args = append(args, update.LockUntil)
	case domain.LoginRestart:
		query = `UPDATE accounts SET login_attempts = 1, lock_until = NULL, updated_at = NOW() WHERE id = $1`
	case domain.LoginReset:
		query = `UPDATE accounts SET login_attempts = 0, lock_until = NULL, updated_at = NOW() WHERE id = $1`
	default:
		return fmt.Errorf("unknown login update kind %d", update.Kind)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("apply login update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		account      domain.Account
		status       string
		addresses    []byte
		devices      []byte
		forceRefresh *bool
	)
	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.NormalizedUsername,
		&account.Email,
		&account.NormalizedEmail,
		&account.FirstName,
		&account.LastName,
		&account.DisplayName,
		&account.PasswordHash,
		&account.Salt,
		&account.LoginAttempts,
		&account.LockUntil,
		&status,
		&account.Roles,
		&addresses,
		&devices,
		&forceRefresh,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return domain.Account{}, err
	}
	account.Status = domain.AccountStatus(status)
	if len(addresses) > 0 {
		if err := json.Unmarshal(addresses, &account.Addresses); err != nil {
			return domain.Account{}, fmt.Errorf("decode addresses: %w", err)
		}
	}
	if len(devices) > 0 {
		if err := json.Unmarshal(devices, &account.Devices); err != nil {
			return domain.Account{}, fmt.Errorf("decode devices: %w", err)
		}
	}
	if forceRefresh != nil {
		account.RefreshToken = &domain.RefreshPreference{ForceRefresh: *forceRefresh}
	}
	return account, nil
}

// PostgresClientRepo implements ClientRepository.
type PostgresClientRepo struct {
	db *pgxpool.Pool
}

func NewPostgresClientRepo(pool *pgxpool.Pool) *PostgresClientRepo {
	return &PostgresClientRepo{db: pool}
}

func (r *PostgresClientRepo) GetByClientID(ctx context.Context, clientID string) (domain.Client, error) {
	const query = `
SELECT id, client_id, name, client_secret, is_trusted, application_type, allowed_origins,
       token_life_time, refresh_token_life_time, token_protocol, status, created_at
FROM clients
WHERE client_id = $1
LIMIT 1`

	var (
		client   domain.Client
		appType  string
		protocol string
	)
	if err := r.db.QueryRow(ctx, query, clientID).Scan(
		&client.ID,
		&client.ClientID,
		&client.Name,
		&client.SecretHash,
		&client.IsTrusted,
		&appType,
		&client.AllowedOrigins,
		&client.TokenLifeTime,
		&client.RefreshTokenLifeTime,
		&protocol,
		&client.Status,
		&client.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Client{}, domain.ErrClientNotFound
		}
		return domain.Client{}, fmt.Errorf("get oauth client: %w", err)
	}
	client.ApplicationType = domain.ApplicationType(appType)
	client.TokenProtocol = domain.TokenProtocol(protocol)
	return client, nil
}

const upsertClientSQL = `INSERT INTO clients (id, client_id, name, client_secret, is_trusted, application_type, allowed_origins,
token_life_time, refresh_token_life_time, token_protocol, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (client_id) DO UPDATE SET
    name = EXCLUDED.name,
    client_secret = EXCLUDED.client_secret,
    is_trusted = EXCLUDED.is_trusted,
    application_type = EXCLUDED.application_type,
    allowed_origins = EXCLUDED.allowed_origins,
    token_life_time = EXCLUDED.token_life_time,
    refresh_token_life_time = EXCLUDED.refresh_token_life_time,
    token_protocol = EXCLUDED.token_protocol,
    status = EXCLUDED.status`

func (r *PostgresClientRepo) Upsert(ctx context.Context, client domain.Client) error {
	_, err := r.db.Exec(ctx, upsertClientSQL,
		client.ID,
		client.ClientID,
		client.Name,
		client.SecretHash,
		client.IsTrusted,
		string(client.ApplicationType),
		nonNilSlice(client.AllowedOrigins),
		client.TokenLifeTime,
		client.RefreshTokenLifeTime,
		string(client.TokenProtocol),
		client.Status,
		client.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

const tokenColumns = `id, value, login_provider, name, scope, type, expires_in, date_expire, user_id, client_id, origin, force_refresh, created_at`

// PostgresTokenRepo implements TokenRepository.
type PostgresTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTokenRepo(pool *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: pool}
}

func (r *PostgresTokenRepo) Create(ctx context.Context, token domain.Token) error {
	var userID *string
	if token.UserID != "" {
		userID = &token.UserID
	}
	_, err := r.db.Exec(ctx, `INSERT INTO tokens (`+tokenColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		token.ID,
		token.Value,
		token.LoginProvider,
		token.Name,
		token.Scope,
		token.Type,
		token.ExpiresIn,
		token.DateExpire,
		userID,
		token.ClientID,
		token.Origin,
		token.ForceRefresh,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) GetByValue(ctx context.Context, digest string) (domain.Token, error) {
	row := r.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE value = $1`, digest)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Token{}, domain.ErrTokenNotFound
		}
		return domain.Token{}, fmt.Errorf("get token: %w", err)
	}
	return token, nil
}

func (r *PostgresTokenRepo) DeleteByValue(ctx context.Context, digest string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM tokens WHERE value = $1`, digest); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) DeleteByUser(ctx context.Context, userID string) ([]string, error) {
	return r.deleteReturning(ctx, `DELETE FROM tokens WHERE user_id = $1 RETURNING value`, userID)
}

func (r *PostgresTokenRepo) DeleteByClientSubject(ctx context.Context, clientID string) ([]string, error) {
	return r.deleteReturning(ctx, `DELETE FROM tokens WHERE client_id = $1 AND user_id IS NULL RETURNING value`, clientID)
}

func (r *PostgresTokenRepo) deleteReturning(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("delete tokens: %w", err)
	}
	digests, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("delete tokens: %w", err)
	}
	return digests, nil
}

func (r *PostgresTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM tokens WHERE date_expire < $1`, before)
}

func (r *PostgresTokenRepo) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanToken(row pgx.Row) (domain.Token, error) {
	var (
		token  domain.Token
		userID *string
	)
	if err := row.Scan(
		&token.ID,
		&token.Value,
		&token.LoginProvider,
		&token.Name,
		&token.Scope,
		&token.Type,
		&token.ExpiresIn,
		&token.DateExpire,
		&userID,
		&token.ClientID,
		&token.Origin,
		&token.ForceRefresh,
		&token.CreatedAt,
	); err != nil {
		return domain.Token{}, err
	}
	if userID != nil {
		token.UserID = *userID
	}
	return token, nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
