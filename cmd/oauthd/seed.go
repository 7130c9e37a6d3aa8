package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/bootstrap"
	"github.com/razorphish/core-api-sub000/internal/config"
	"github.com/razorphish/core-api-sub000/internal/password"
	"github.com/razorphish/core-api-sub000/internal/service"
)

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Upsert the configured client and account, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			return runSeed(ctx, cfg, logger)
		},
	}
}

func runSeed(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(context.Background()) }()

	hasher, err := password.New(cfg.PasswordAlgorithm, cfg.BcryptCost)
	if err != nil {
		return err
	}
	node, err := newSnowflake(cfg)
	if err != nil {
		return err
	}

	guard := newGuard(store, hasher, cfg, nil, logger)
	accounts := service.NewAccountService(store.Accounts, hasher, guard, node, logger)
	if err := bootstrap.NewSeeder(cfg, store, accounts, node, logger).Run(ctx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}
