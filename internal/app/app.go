// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/forumwatch/internal/api"
	"github.com/JakeFAU/forumwatch/internal/clock/system"
	"github.com/JakeFAU/forumwatch/internal/completion"
	"github.com/JakeFAU/forumwatch/internal/config"
	"github.com/JakeFAU/forumwatch/internal/fetch"
	"github.com/JakeFAU/forumwatch/internal/id/uuid"
	"github.com/JakeFAU/forumwatch/internal/lock"
	"github.com/JakeFAU/forumwatch/internal/notify"
	"github.com/JakeFAU/forumwatch/internal/pipeline"
	"github.com/JakeFAU/forumwatch/internal/radar"
	"github.com/JakeFAU/forumwatch/internal/storage/memory"
	"github.com/JakeFAU/forumwatch/internal/storage/postgres"
)

// Store is a radar.Store that can report readiness.
type Store interface {
	radar.Store
	Ping(ctx context.Context) error
}

// App holds the shared, long-lived services for one process. It is built once at startup and
// handed to the command that needs it.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    Store
	pipeline *pipeline.Pipeline
	closers  []func()
}

// New builds every service from cfg and fails fast if a backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("initializing application services",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("lock", cfg.Lock.Driver),
	)

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	guard, err := a.openGuard(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		ConnectTimeout: cfg.HTTP.ConnectTimeout,
		MaxConcurrency: cfg.HTTP.MaxConcurrency,
		MaxRedirects:   cfg.HTTP.MaxRedirects,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		Stage:          "feeds",
	}, logger)
	completer := completion.NewRunner(completion.Config{
		Endpoint:    cfg.Completion.Endpoint,
		Model:       cfg.Completion.Model,
		APIKey:      cfg.Completion.APIKey,
		Strict:      cfg.Completion.Strict,
		WebSearch:   cfg.Completion.WebSearch,
		MaxAttempts: cfg.Completion.MaxAttempts,
		BaseBackoff: cfg.Completion.BaseBackoff,
		Timeout:     cfg.Completion.Timeout,
	}, logger)
	dispatcher := notify.NewDispatcher(cfg.Notify, logger)
	if !dispatcher.Enabled() {
		logger.Info("no digest channel configured")
	}

	a.pipeline = pipeline.New(cfg, pipeline.Deps{
		Store:     store,
		Fetcher:   fetcher,
		Completer: completer,
		Notifier:  dispatcher,
		Guard:     guard,
		Clock:     system.New(),
		IDs:       uuid.New(),
	}, logger)

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) openStore(ctx context.Context) (Store, error) {
	switch a.cfg.Storage.Driver {
	case "", "memory":
		a.logger.Warn("using in-memory store, state is lost on exit")
		return memory.NewStore(), nil
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Ping(ctx); err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, a.cfg.DB.DSN, a.logger.Named("migrate")); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", a.cfg.Storage.Driver)
	}
}

func (a *App) openGuard(ctx context.Context) (lock.Guard, error) {
	switch a.cfg.Lock.Driver {
	case "", "local":
		return lock.NewLocal(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("error closing redis client", zap.Error(err))
			}
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return lock.NewRedis(client, lock.DefaultKey, a.cfg.Lock.TTL), nil
	default:
		return nil, fmt.Errorf("unknown lock driver: %s", a.cfg.Lock.Driver)
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the persistent store.
func (a *App) Store() Store { return a.store }

// Pipeline returns the guarded pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Handler builds the HTTP API.
func (a *App) Handler() http.Handler {
	return api.NewServer(a.pipeline, a.store, a.store, a.cfg, a.logger.Named("api")).Handler()
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
