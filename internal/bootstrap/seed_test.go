package bootstrap

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/config"
	"github.com/razorphish/core-api-sub000/internal/domain"
	"github.com/razorphish/core-api-sub000/internal/lockout"
	"github.com/razorphish/core-api-sub000/internal/password"
	"github.com/razorphish/core-api-sub000/internal/repository"
	"github.com/razorphish/core-api-sub000/internal/service"
	"github.com/razorphish/core-api-sub000/internal/signer"
)

func newSeeder(t *testing.T, seed config.Seed) (*Seeder, *repository.Store) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	store := repository.NewMemoryStore()
	guard := lockout.NewGuard(store.Accounts, password.Argon2ID{}, lockout.DefaultPolicy())
	accounts := service.NewAccountService(store.Accounts, password.Argon2ID{}, guard, node, zap.NewNop())
	return NewSeeder(config.Config{Seed: seed}, store, accounts, node, zap.NewNop()), store
}

func defaultSeed() config.Seed {
	return config.Seed{
		ClientID:             "core-web-ui",
		ClientName:           "Core Web UI",
		ClientSecret:         "s3cret",
		ClientOrigins:        []string{"http://localhost:4200"},
		ClientTrusted:        true,
		ClientProtocol:       "http",
		TokenLifeTime:        30,
		RefreshTokenLifeTime: 1440,
		AccountEmail:         "david@maras.co",
		AccountPassword:      "Letme1n!",
		AccountRoles:         []string{"admin"},
	}
}

func TestSeederCreatesClientAndAccount(t *testing.T) {
	s, store := newSeeder(t, defaultSeed())
	ctx := context.Background()

	require.NoError(t, s.Run(ctx))

	client, err := store.Clients.GetByClientID(ctx, "core-web-ui")
	require.NoError(t, err)
	require.Equal(t, signer.Fingerprint("s3cret"), client.SecretHash)
	require.True(t, client.IsTrusted)
	require.Equal(t, domain.ProtocolHTTP, client.TokenProtocol)
	require.Equal(t, []string{"http://localhost:4200"}, client.AllowedOrigins)

	account, err := store.Accounts.GetByUsername(ctx, "DAVID@maras.co")
	require.NoError(t, err)
	require.Equal(t, []string{"admin"}, account.Roles)
	require.True(t, password.Compare("Letme1n!", account.PasswordHash))
}

func TestSeederIsIdempotent(t *testing.T) {
	seed := defaultSeed()
	s, store := newSeeder(t, seed)
	ctx := context.Background()
	require.NoError(t, s.Run(ctx))

	first, err := store.Clients.GetByClientID(ctx, "core-web-ui")
	require.NoError(t, err)

	seed.ClientSecret = "rotated"
	seed.AccountPassword = "N3wpass!"
	s.seed = seed
	require.NoError(t, s.Run(ctx))

	second, err := store.Clients.GetByClientID(ctx, "core-web-ui")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, signer.Fingerprint("rotated"), second.SecretHash)

	account, err := store.Accounts.GetByUsername(ctx, "david@maras.co")
	require.NoError(t, err)
	require.True(t, password.Compare("N3wpass!", account.PasswordHash))
}

func TestSeederRequiresClientSecret(t *testing.T) {
	seed := defaultSeed()
	seed.ClientSecret = ""
	s, _ := newSeeder(t, seed)
	require.ErrorContains(t, s.Run(context.Background()), "SEED_CLIENT_SECRET")
}

func TestSeederSkipsAccountWithoutPassword(t *testing.T) {
	seed := defaultSeed()
	seed.AccountPassword = ""
	s, store := newSeeder(t, seed)
	ctx := context.Background()

	require.NoError(t, s.Run(ctx))
	_, err := store.Accounts.GetByUsername(ctx, "david@maras.co")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}
