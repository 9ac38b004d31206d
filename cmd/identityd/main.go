package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
	"github.com/goliatone/go-identity/api"
	"github.com/goliatone/go-identity/config"
	"github.com/goliatone/go-identity/federated"
	"github.com/goliatone/go-identity/logging"
	"github.com/goliatone/go-identity/metrics"
	"github.com/goliatone/go-identity/repository"
	"github.com/goliatone/go-identity/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	_ "github.com/lib/pq"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return identity.Upstream(err, "redis_ping")
	}

	sessions := session.NewRedisStore(rdb, session.WithTTL(cfg.SessionTTL))

	m := metrics.New(prometheus.NewRegistry())
	m.RegisterRuntime()
	m.RegisterDBStats(db.DB, "identity")

	services, err := identity.NewServices(cfg, identity.Dependencies{
		Store:    repository.NewIdentityRepository(db),
		Vault:    identity.NewBcryptVault(cfg.BcryptCost),
		Sessions: sessions,
		Logger:   logger,
		Observer: m,
		Activity: activitymap.LogSink(logger.With("channel", "activity")),
		Notifier: identity.LogNotifier{Logger: logger},
	})
	if err != nil {
		return err
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithSessions(sessions),
		api.WithMetrics(m),
		api.WithFrontendURL(cfg.FrontendURL),
		api.WithSessionCookie(cfg.SessionCookie),
		api.WithSecureCookies(cfg.CookieSecure),
	}

	if cfg.FederationEnabled() {
		flow, err := federatedFlow(ctx, cfg, logger)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithFederatedFlow(flow))
	} else {
		logger.Warn("federated login disabled: IDENTITY_OIDC_CLIENT_ID not set")
	}

	server, err := api.New(services, opts...)
	if err != nil {
		return err
	}
	app := server.App()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.HTTPAddr)
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return app.ShutdownWithTimeout(shutdownTimeout)
}

func openDB(cfg config.Config) (*bun.DB, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		sqldb, err := sql.Open("postgres", cfg.DatabaseDSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseDSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite")
		}
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	}
}

func federatedFlow(ctx context.Context, cfg config.Config, logger identity.Logger) (*federated.Flow, error) {
	provider, err := federated.NewOIDCProvider(ctx, cfg.Provider(), federated.WithProviderLogger(logger))
	if err != nil {
		return nil, err
	}

	states, err := federated.NewEncryptedStateManager([]byte(cfg.StateKey), []byte(cfg.StateSigningKey), cfg.StateTTL)
	if err != nil {
		return nil, err
	}

	return federated.NewFlow(provider, states,
		federated.WithFlowLogger(logger),
		federated.WithFlowStateTTL(cfg.StateTTL),
	), nil
}
