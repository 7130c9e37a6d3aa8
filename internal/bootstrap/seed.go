package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/config"
	"github.com/razorphish/core-api-sub000/internal/domain"
	"github.com/razorphish/core-api-sub000/internal/repository"
	"github.com/razorphish/core-api-sub000/internal/service"
	"github.com/razorphish/core-api-sub000/internal/signer"
)

const clientStatusActive = "active"

// Seeder upserts the configured client and account.
type Seeder struct {
	seed     config.Seed
	clients  repository.ClientRepository
	accounts repository.AccountRepository
	service  *service.AccountService
	node     *snowflake.Node
	logger   *zap.Logger
}

// NewSeeder wires dependencies.
func NewSeeder(cfg config.Config, store *repository.Store, accounts *service.AccountService, node *snowflake.Node, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.L()
	}
	return &Seeder{
		seed:     cfg.Seed,
		clients:  store.Clients,
		accounts: store.Accounts,
		service:  accounts,
		node:     node,
		logger:   logger,
	}
}

// EnsureSeed runs the seeder on start when SEED_ON_START is set.
func EnsureSeed(lc fx.Lifecycle, cfg config.Config, seeder *Seeder) {
	if !cfg.SeedOnStart {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return seeder.Run(ctx)
		},
	})
}

// Run upserts the client, then creates the account or resets its password.
func (s *Seeder) Run(ctx context.Context) error {
	if err := s.seedClient(ctx); err != nil {
		return err
	}
	return s.seedAccount(ctx)
}

func (s *Seeder) seedClient(ctx context.Context) error {
	seed := s.seed
	if strings.TrimSpace(seed.ClientID) == "" || seed.ClientSecret == "" {
		return fmt.Errorf("seed client missing required config: SEED_CLIENT_ID and SEED_CLIENT_SECRET")
	}

	protocol := domain.TokenProtocol(strings.ToLower(seed.ClientProtocol))
	if protocol != domain.ProtocolJWT {
		protocol = domain.ProtocolHTTP
	}

	client := domain.Client{
		ID:                   s.node.Generate().String(),
		ClientID:             strings.TrimSpace(seed.ClientID),
		Name:                 seed.ClientName,
		SecretHash:           signer.Fingerprint(seed.ClientSecret),
		IsTrusted:            seed.ClientTrusted,
		ApplicationType:      domain.ApplicationConfidential,
		AllowedOrigins:       seed.ClientOrigins,
		TokenLifeTime:        seed.TokenLifeTime,
		RefreshTokenLifeTime: seed.RefreshTokenLifeTime,
		TokenProtocol:        protocol,
		Status:               clientStatusActive,
		CreatedAt:            time.Now().UTC(),
	}
	if err := s.clients.Upsert(ctx, client); err != nil {
		return fmt.Errorf("seed client: %w", err)
	}

	s.logger.Info("seed client upserted",
		zap.String("client_id", client.ClientID),
		zap.Strings("origins", client.AllowedOrigins),
		zap.Bool("trusted", client.IsTrusted),
	)
	return nil
}

func (s *Seeder) seedAccount(ctx context.Context) error {
	seed := s.seed
	email := strings.TrimSpace(seed.AccountEmail)
	if email == "" || seed.AccountPassword == "" {
		s.logger.Info("seed account skipped, SEED_ACCOUNT_EMAIL or SEED_ACCOUNT_PASSWORD not set")
		return nil
	}

	existing, err := s.accounts.GetByUsername(ctx, email)
	switch {
	case err == nil:
		if err := s.service.SetPassword(ctx, existing.ID, seed.AccountPassword); err != nil {
			return fmt.Errorf("seed account password: %w", err)
		}
		s.logger.Info("seed account password reset", zap.String("account_id", existing.ID))
		return nil
	case !errors.Is(err, domain.ErrAccountNotFound):
		return fmt.Errorf("seed account lookup: %w", err)
	}

	created, err := s.service.Register(ctx, service.RegisterInput{
		Username:  seed.AccountUsername,
		Email:     email,
		Password:  seed.AccountPassword,
		FirstName: seed.AccountFirst,
		LastName:  seed.AccountLast,
		Roles:     seed.AccountRoles,
	})
	if err != nil {
		return fmt.Errorf("seed account: %w", err)
	}

	s.logger.Info("seed account created",
		zap.String("account_id", created.ID),
		zap.String("email", created.Email),
	)
	return nil
}
