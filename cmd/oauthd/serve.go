package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/razorphish/core-api-sub000/internal/adapter/cache"
	"github.com/razorphish/core-api-sub000/internal/bootstrap"
	"github.com/razorphish/core-api-sub000/internal/clientauth"
	"github.com/razorphish/core-api-sub000/internal/config"
	"github.com/razorphish/core-api-sub000/internal/exchange"
	httptransport "github.com/razorphish/core-api-sub000/internal/http"
	"github.com/razorphish/core-api-sub000/internal/http/handler"
	httpmiddleware "github.com/razorphish/core-api-sub000/internal/http/middleware"
	"github.com/razorphish/core-api-sub000/internal/jwt"
	"github.com/razorphish/core-api-sub000/internal/lockout"
	"github.com/razorphish/core-api-sub000/internal/metrics"
	apimiddleware "github.com/razorphish/core-api-sub000/internal/middleware"
	"github.com/razorphish/core-api-sub000/internal/password"
	"github.com/razorphish/core-api-sub000/internal/repository"
	"github.com/razorphish/core-api-sub000/internal/server"
	"github.com/razorphish/core-api-sub000/internal/service"
	"github.com/razorphish/core-api-sub000/internal/signer"
	"github.com/razorphish/core-api-sub000/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP token server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := newApp()
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newApp(opts ...fx.Option) *fx.App {
	base := []fx.Option{
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSentry,
			newMetrics,
			newSnowflake,
			newStore,
			newTokenCache,
			newHasher,
			newSigner,
			newKeyManager,
			newTokenGenerator,
			jwt.NewAssertionVerifier,
			newClientVerifier,
			newGuard,
			newExchangeService,
			newAccountService,
			bootstrap.NewSeeder,
			newOAuthHandler,
			handler.NewAccountHandler,
			newBearer,
			newRateLimiter,
			newRouter,
			server.NewHTTPServer,
			newSweeper,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureSeed, startHTTPServer, startSweeper),
	}
	return fx.New(append(base, opts...)...)
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSentry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.SentryReporter, error) {
	reporter, err := telemetry.NewSentryReporter(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			reporter.Flush()
			return nil
		},
	})
	return reporter, nil
}

func newMetrics() *metrics.Recorder {
	return metrics.New()
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

func openStore(ctx context.Context, cfg config.Config) (*repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		return repository.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.StorePostgres:
		return repository.OpenPostgres(ctx, cfg.DatabaseURL)
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func newStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*repository.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("store connected", zap.String("driver", cfg.StoreDriver))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close(ctx)
		},
	})
	return store, nil
}

func newTokenCache(lc fx.Lifecycle, cfg config.Config) (repository.TokenCache, error) {
	if cfg.RedisAddr == "" {
		return cacheadapter.NoopTokenCache{}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return cacheadapter.NewRedisTokenCache(client, cfg.TokenCacheTTL), nil
}

func newHasher(cfg config.Config) (password.Hasher, error) {
	return password.New(cfg.PasswordAlgorithm, cfg.BcryptCost)
}

func newSigner(node *snowflake.Node, cfg config.Config) *signer.Signer {
	return signer.New(node, signer.WithTokenLength(cfg.OpaqueTokenLength))
}

func newKeyManager(cfg config.Config) (*jwt.KeyManager, error) {
	return jwt.LoadKeyManager(cfg.JWTPrivateKeyFile, cfg.JWTPublicKeyFile)
}

func newTokenGenerator(keys *jwt.KeyManager, cfg config.Config) *jwt.Generator {
	return jwt.NewGenerator(keys, cfg.JWTIssuer)
}

func newClientVerifier(store *repository.Store, logger *zap.Logger) *clientauth.Verifier {
	return clientauth.NewVerifier(store.Clients, logger)
}

func newGuard(store *repository.Store, hasher password.Hasher, cfg config.Config, m *metrics.Recorder, logger *zap.Logger) *lockout.Guard {
	policy := lockout.Policy{MaxAttempts: cfg.LockoutMaxAttempts, LockDuration: cfg.LockoutDuration}
	return lockout.NewGuard(store.Accounts, hasher, policy, lockout.WithMetrics(m), lockout.WithLogger(logger))
}

type exchangeParams struct {
	fx.In

	Config     config.Config
	Clients    *clientauth.Verifier
	Guard      *lockout.Guard
	Store      *repository.Store
	Cache      repository.TokenCache
	Signer     *signer.Signer
	JWT        *jwt.Generator
	Assertions *jwt.AssertionVerifier
	Metrics    *metrics.Recorder
	Reporter   *telemetry.SentryReporter
	Telemetry  *telemetry.Provider
	Logger     *zap.Logger
}

func newExchangeService(p exchangeParams) *exchange.Service {
	return exchange.NewService(exchange.Deps{
		Clients:    p.Clients,
		Guard:      p.Guard,
		Accounts:   p.Store.Accounts,
		Tokens:     p.Store.Tokens,
		Cache:      p.Cache,
		Signer:     p.Signer,
		JWT:        p.JWT,
		Assertions: p.Assertions,
		Metrics:    p.Metrics,
		Reporter:   p.Reporter,
		Logger:     p.Logger,
		Tracer:     p.Telemetry.Tracer(),
	}, exchange.Config{
		DefaultAccessLifetime:    p.Config.DefaultAccessLifetime,
		DefaultRefreshLifetime:   p.Config.DefaultRefreshLifetime,
		AssertionLifetimeMinutes: p.Config.AssertionLifetimeMinutes,
	})
}

func newAccountService(store *repository.Store, hasher password.Hasher, guard *lockout.Guard, node *snowflake.Node, logger *zap.Logger) *service.AccountService {
	return service.NewAccountService(store.Accounts, hasher, guard, node, logger)
}

func newOAuthHandler(svc *exchange.Service, keys *jwt.KeyManager, store *repository.Store, logger *zap.Logger) *handler.OAuthHandler {
	return handler.NewOAuthHandler(svc, keys, store.Ping, logger)
}

func newBearer(svc *exchange.Service) *httpmiddleware.Bearer {
	return &httpmiddleware.Bearer{Exchange: svc}
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

type routerParams struct {
	fx.In

	Config      config.Config
	OAuth       *handler.OAuthHandler
	Accounts    *handler.AccountHandler
	Bearer      *httpmiddleware.Bearer
	RateLimiter *apimiddleware.RateLimiter
	Metrics     *metrics.Recorder
	Sentry      *telemetry.SentryReporter
	Logger      *zap.Logger
}

func newRouter(p routerParams) *gin.Engine {
	if !p.Config.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	return httptransport.NewRouter(httptransport.RouterParams{
		Config:      p.Config,
		OAuth:       p.OAuth,
		Accounts:    p.Accounts,
		Bearer:      p.Bearer,
		RateLimiter: p.RateLimiter,
		Metrics:     p.Metrics,
		Panics:      p.Sentry,
		Logger:      p.Logger,
	})
}

func newSweeper(svc *exchange.Service, cfg config.Config, logger *zap.Logger) *server.Sweeper {
	return server.NewSweeper(svc, cfg.TokenSweepInterval, logger)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func startSweeper(lc fx.Lifecycle, sweeper *server.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sweeper.Start()
			return nil
		},
		OnStop: sweeper.Stop,
	})
}

func useTelemetry(*telemetry.Provider) {}
