package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/alungalsinan/groot-scribe-studio/config"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/statsd"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
	"github.com/alungalsinan/groot-scribe-studio/internal/service"
)

// App holds the wired coordinator and the resources it owns.
type App struct {
	Config      config.AppConfig
	Logger      *slog.Logger
	Coordinator *service.Coordinator
	Backend     ports.AuthBackend
	Stores      Stores
	DB          *sql.DB
	Redis       redis.UniversalClient
	Observe     Observability

	closers []func() error
}

// AppDeps lets callers inject pre-built resources. Nil fields are built from config.
type AppDeps struct {
	DB         *sql.DB
	Redis      redis.UniversalClient
	HTTPClient *http.Client
}

// NewApp builds every collaborator of the coordinator from cfg. The returned
// App is not initialized; call Coordinator.Initialize.
func NewApp(ctx context.Context, cfg config.AppConfig, logger *slog.Logger, deps AppDeps) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger, DB: deps.DB, Redis: deps.Redis}

	if err := app.connect(ctx); err != nil {
		return nil, errors.Join(err, app.Close())
	}

	stores, err := BuildStores(cfg.Store, app.DB)
	if err != nil {
		return nil, errors.Join(err, app.Close())
	}
	app.Stores = stores

	sessions, err := BuildSessionStore(cfg.Auth.Session, app.Redis, logger)
	if err != nil {
		return nil, errors.Join(err, app.Close())
	}

	backend, err := BuildAuthBackend(ctx, AuthBackendConfig{
		Auth:       cfg.Auth,
		Sessions:   sessions,
		HTTPClient: deps.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, errors.Join(err, app.Close())
	}
	app.Backend = backend
	if c, ok := backend.(interface{ Close() }); ok {
		app.closers = append(app.closers, func() error { c.Close(); return nil })
	}

	if cfg.Auth.Mode == config.AuthModeMock {
		if seedErr := stores.SeedDevRole(ctx, cfg.Auth.DevAuth, logger); seedErr != nil {
			return nil, errors.Join(seedErr, app.Close())
		}
	}

	app.Observe = BuildObservability(logger, cfg.Observability)
	var metrics statsd.Sink
	if app.Observe.Metrics != nil {
		metrics = app.Observe.Metrics
		app.closers = append(app.closers, app.Observe.Metrics.Close)
	}

	coord, err := service.NewCoordinator(service.CoordinatorOptions{
		Auth:           backend,
		Profiles:       stores.Profiles,
		Roles:          stores.Roles,
		Notifier:       app.Observe.Notifier,
		Metrics:        metrics,
		Logger:         logger,
		RedirectURL:    cfg.Auth.RedirectURL,
		ResolveTimeout: cfg.Coordinator.ResolveTimeout,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create coordinator: %w", err), app.Close())
	}
	app.Coordinator = coord

	return app, nil
}

// connect opens the Postgres and Redis connections the config asks for.
// Injected connections are used as-is and not closed by App.
func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	if a.DB == nil && cfg.Store.Backend == config.StoreBackendPostgres {
		db, err := ConnectDB(ctx, cfg.Postgres, a.Logger)
		if err != nil {
			return err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
	}
	if a.Redis == nil && cfg.Auth.Session.Store == config.SessionStoreRedis {
		client, err := ConnectRedis(ctx, cfg.Redis, a.Logger)
		if err != nil {
			return err
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
	}
	return nil
}

// Refresher returns the backend's on-demand refresh, if it has one.
//
//nolint:ireturn // optional capability of the backend.
func (a *App) Refresher() (Refresher, bool) {
	r, ok := a.Backend.(Refresher)
	return r, ok
}

// Close tears down the coordinator and the resources App opened, in reverse order.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.Coordinator != nil {
		a.Coordinator.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
