package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-router"
	"github.com/inflowhq/go-auth"
	"github.com/inflowhq/go-auth/activitymap"
	"github.com/inflowhq/go-auth/migrations"
	"github.com/inflowhq/go-auth/repository"
	"github.com/inflowhq/go-auth/social"
	"github.com/inflowhq/go-auth/social/providers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/fx"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

func main() {
	app := fx.New(
		fx.Provide(
			newOptions,
			newZapLogger,
			newLogger,
			newActivitySink,
			newDB,
			newSessionStore,
			newRepository,
			newMetrics,
			newTokenIssuer,
			newSessionRegistry,
			newAuthService,
			newCookieTransport,
			newProtect,
			newAuthController,
			newSocialController,
			newSweeper,
			newHTTPServer,
		),
		fx.Invoke(registerRoutes, startSweeper, startHTTPServer),
	)

	app.Run()
}

func newOptions() (*auth.Options, error) {
	return auth.LoadOptions()
}

func newZapLogger(opts *auth.Options) (*zap.Logger, error) {
	if opts.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newLogger(l *zap.Logger) auth.Logger {
	return auth.NewZapLogger(l)
}

func newActivitySink(l *zap.Logger) auth.ActivitySink {
	return activitymap.ZapSink(l)
}

func newDB(lc fx.Lifecycle, opts *auth.Options, logger auth.Logger) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch opts.DatabaseDriver {
	case auth.DatabaseDriverPostgres:
		if sqldb, err = sql.Open("postgres", opts.DatabaseURL); err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		if sqldb, err = sql.Open(sqliteshim.ShimName, opts.DatabaseURL); err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if opts.AutoMigrate {
		if err := migrations.Up(sqldb, opts.DatabaseDriver); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("database migrated", "driver", opts.DatabaseDriver)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

func newSessionStore(lc fx.Lifecycle, opts *auth.Options, db *bun.DB) (auth.SessionStore, error) {
	if opts.SessionStore != auth.SessionStoreRedis {
		return auth.NewSQLSessionStore(db), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
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
	return repository.NewRedisSessionStore(client, opts.RedisPrefix), nil
}

func newRepository(db *bun.DB, store auth.SessionStore) (auth.RepositoryManager, error) {
	repo := auth.NewRepositoryManager(db, auth.WithSessionStore(store))
	if err := repo.Validate(); err != nil {
		return nil, err
	}
	return repo, nil
}

func newMetrics() auth.Metrics {
	return auth.NewMetricsCollector(prometheus.DefaultRegisterer)
}

func newTokenIssuer(opts *auth.Options, logger auth.Logger) *auth.TokenIssuer {
	return auth.NewTokenIssuer(opts, auth.WithTokenLogger(logger))
}

func newSessionRegistry(repo auth.RepositoryManager, opts *auth.Options, logger auth.Logger, metrics auth.Metrics) *auth.SessionRegistry {
	return auth.NewSessionRegistry(repo.Sessions(), repo.Users(),
		auth.WithRegistryLogger(logger),
		auth.WithRegistryMetrics(metrics),
		auth.WithMaxSessionsPerUser(opts.MaxSessionsPerUser),
	)
}

func newAuthService(repo auth.RepositoryManager, issuer *auth.TokenIssuer, registry *auth.SessionRegistry, logger auth.Logger, metrics auth.Metrics, activity auth.ActivitySink) *auth.AuthService {
	return auth.NewAuthService(repo, issuer, registry,
		auth.WithServiceLogger(logger),
		auth.WithServiceMetrics(metrics),
		auth.WithActivitySink(activity),
	)
}

func newCookieTransport(opts *auth.Options) *auth.CookieTransport {
	return auth.NewCookieTransport(auth.CookieOptionsFromConfig(opts))
}

func newProtect(issuer *auth.TokenIssuer) router.MiddlewareFunc {
	return auth.RequireAuth(issuer)
}

func newAuthController(service *auth.AuthService, transport *auth.CookieTransport, protect router.MiddlewareFunc, opts *auth.Options, logger auth.Logger) *auth.AuthController {
	return auth.NewAuthController(service, transport, protect,
		auth.WithControllerLogger(logger),
		auth.WithControllerDebug(opts.IsDevelopment()),
	)
}

func newSocialController(
	opts *auth.Options,
	repo auth.RepositoryManager,
	service *auth.AuthService,
	transport *auth.CookieTransport,
	protect router.MiddlewareFunc,
	logger auth.Logger,
	metrics auth.Metrics,
	activity auth.ActivitySink,
) *social.HTTPController {
	integrator := social.NewIntegrator(repo, repository.NewUserIdentities(nil),
		social.WithIntegratorLogger(logger),
		social.WithIntegratorActivity(activity),
	)

	authenticator := social.NewAuthenticator(
		providers.FromOptions(opts, nil),
		social.NewStateCodec(opts.OAuthStateSecret),
		integrator,
		service,
		social.WithAuthenticatorLogger(logger),
		social.WithAuthenticatorMetrics(metrics),
	)

	cfg := social.HTTPConfigFromOptions(opts)
	cfg.Logger = logger
	return social.NewHTTPController(authenticator, integrator, transport, protect, cfg)
}

func newSweeper(registry *auth.SessionRegistry, opts *auth.Options, logger auth.Logger) *auth.SessionSweeper {
	return auth.NewSessionSweeper(registry, opts.SweepInterval, logger)
}

func newHTTPServer() router.Server[*fiber.App] {
	return router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:  true,
			StrictRouting: false,
		}))
	})
}

// registerRoutes mounts password auth before the OAuth routes so the
// static /auth paths win over /auth/:provider.
func registerRoutes(srv router.Server[*fiber.App], authController *auth.AuthController, socialController *social.HTTPController) {
	r := srv.Router()

	r.Get("/health", func(ctx router.Context) error {
		return ctx.JSON(router.StatusOK, map[string]any{"status": "ok"})
	})

	authController.RegisterRoutes(r)
	socialController.RegisterRoutes(r)

	srv.WrappedRouter().Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func startSweeper(lc fx.Lifecycle, sweeper *auth.SessionSweeper) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sweeper.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			sweeper.Stop()
			return nil
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv router.Server[*fiber.App], opts *auth.Options, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Serve(opts.HTTPAddr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			logger.Info("http server listening", zap.String("addr", opts.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
