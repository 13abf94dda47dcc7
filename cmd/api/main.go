package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/medsupport/helpdesk/internal/api/http"
	"github.com/medsupport/helpdesk/internal/api/http/handlers"
	"github.com/medsupport/helpdesk/internal/app"
	"github.com/medsupport/helpdesk/internal/auth"
	"github.com/medsupport/helpdesk/internal/clock"
	"github.com/medsupport/helpdesk/internal/config"
	"github.com/medsupport/helpdesk/internal/events"
	"github.com/medsupport/helpdesk/internal/notify"
	"github.com/medsupport/helpdesk/internal/observability"
	"github.com/medsupport/helpdesk/internal/persistence"
	"github.com/medsupport/helpdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, repos, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer pg.Close()

	var redis *persistence.Redis
	if cfg.Notification.Mode == config.NotifyModeQueue {
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
	}

	metrics := observability.NewMetrics()
	if redis != nil {
		metrics.WatchQueueDepth(func() (int64, error) {
			qctx, qcancel := context.WithTimeout(ctx, time.Second)
			defer qcancel()
			return redis.QueueLength(qctx, cfg.Notification.QueueKey)
		})
	}
	notifier, err := app.NewNotifier(cfg.Notification, redis, metrics, logger)
	if err != nil {
		logger.Fatal("failed to build notifier", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	services := app.NewServices(cfg, repos, notifier, dispatcher, metrics, logger)
	clk := clock.System{}

	var wg sync.WaitGroup
	if redis != nil {
		delivery, channel := app.NewDeliveryNotifier(cfg.Notification, logger)
		queueWorker := worker.NewNotificationWorker(redis.Client, cfg.Notification.QueueKey,
			notify.WithRecorder(delivery, channel, metrics), cfg.Notification.SendRatePerSecond, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			queueWorker.Run(ctx)
		}()
	}

	sweeper := worker.NewSLASweeper(services.Escalation, cfg.SLA.SweepInterval(), clk, cfg.SLA.SystemActor(), logger)
	if sweeper.Enabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(ctx)
		}()
	}

	deps := map[string]handlers.Pinger{}
	if pg.Enabled() {
		deps["postgres"] = pg
	}
	if redis != nil {
		deps["redis"] = redis
	}

	fiberApp := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(fiberApp, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(fiberApp, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Auth:    handlers.NewAuthHandler(services.Auth),
		Tickets: handlers.NewTicketsHandler(services.Tickets, repos.Categories, clk),
		Admin: handlers.NewAdminHandler(handlers.AdminDependencies{
			Analytics:    services.Analytics,
			Reports:      services.Reports,
			Maintenance:  services.Maintenance,
			Escalation:   services.Escalation,
			Admin:        services.Admin,
			Checks:       deps,
			Clock:        clk,
			DefaultRange: cfg.Analytics.DefaultRange,
		}),
		AuthMiddleware: auth.NewAuthMiddleware(services.Auth.TokenManager(), repos.Users),
		Metrics:        metrics.Handler(),
	})

	go func() {
		if err := fiberApp.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("helpdesk started",
		zap.String("addr", cfg.App.Addr()),
		zap.Bool("in_memory", repos.InMemory),
		zap.String("notify_mode", cfg.Notification.Mode),
	)

	waitForShutdown(logger)

	_ = fiberApp.Shutdown()
	cancel()
	wg.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
