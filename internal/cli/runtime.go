// Package cli implements the helpdeskctl operator commands.
package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medsupport/helpdesk/internal/app"
	"github.com/medsupport/helpdesk/internal/clock"
	"github.com/medsupport/helpdesk/internal/config"
	"github.com/medsupport/helpdesk/internal/events"
	"github.com/medsupport/helpdesk/internal/observability"
	"github.com/medsupport/helpdesk/internal/persistence"
)

// Runtime is what a command needs to do its work.
type Runtime struct {
	Config   *config.Config
	Logger   *zap.Logger
	Repos    app.Repositories
	Services *app.Services
	Clock    clock.Clock
	close    func()
}

// Close releases storage and notifier connections.
func (r *Runtime) Close() {
	if r != nil && r.close != nil {
		r.close()
	}
}

// OpenFunc builds a Runtime. Tests swap it for an in-memory one.
type OpenFunc func(ctx context.Context, verbose bool) (*Runtime, error)

var openRuntime OpenFunc = OpenFromEnv

// SetOpener replaces how commands obtain their Runtime and returns a func
// restoring the previous one.
func SetOpener(fn OpenFunc) (restore func()) {
	prev := openRuntime
	openRuntime = fn
	return func() { openRuntime = prev }
}

// OpenFromEnv loads configuration from the environment and connects storage
// the same way the API server does.
func OpenFromEnv(ctx context.Context, verbose bool) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := zap.NewNop()
	if verbose {
		if logger, err = observability.NewLogger(cfg.Logger); err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	pg, repos, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if repos.InMemory {
		logger.Warn("no POSTGRES_DSN set; commands run against an empty in-memory store")
	}

	var redis *persistence.Redis
	if cfg.Notification.Mode == config.NotifyModeQueue {
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
	}
	notifier, err := app.NewNotifier(cfg.Notification, redis, nil, logger)
	if err != nil {
		pg.Close()
		redis.Close()
		return nil, err
	}

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Repos:    repos,
		Services: app.NewServices(cfg, repos, notifier, events.NewInMemoryDispatcher(), nil, logger),
		Clock:    clock.System{},
		close: func() {
			redis.Close()
			pg.Close()
			_ = logger.Sync()
		},
	}, nil
}

// NewRuntime assembles a Runtime from already-built parts.
func NewRuntime(cfg *config.Config, repos app.Repositories, services *app.Services, clk clock.Clock) *Runtime {
	if clk == nil {
		clk = clock.System{}
	}
	return &Runtime{Config: cfg, Logger: zap.NewNop(), Repos: repos, Services: services, Clock: clk}
}
