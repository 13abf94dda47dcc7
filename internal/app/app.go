// Package app wires repositories, notifiers and services from configuration.
// Both the API server and helpdeskctl build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/medsupport/helpdesk/internal/config"
	"github.com/medsupport/helpdesk/internal/events"
	"github.com/medsupport/helpdesk/internal/notify"
	"github.com/medsupport/helpdesk/internal/observability"
	"github.com/medsupport/helpdesk/internal/persistence"
	"github.com/medsupport/helpdesk/internal/repository"
	"github.com/medsupport/helpdesk/internal/repository/memory"
	"github.com/medsupport/helpdesk/internal/service"
)

// Repositories is the storage layer in use.
type Repositories struct {
	Tickets      repository.TicketRepository
	ActivityLogs repository.ActivityLogRepository
	Users        repository.UserRepository
	Categories   repository.CategoryRepository
	InMemory     bool
}

// NewRepositories returns Postgres repositories when pg is connected and the
// in-memory store otherwise.
func NewRepositories(pg *persistence.Postgres) Repositories {
	if !pg.Enabled() {
		store := memory.NewStore()
		return Repositories{
			Tickets:      store.Tickets(),
			ActivityLogs: store.ActivityLogs(),
			Users:        store.Users(),
			Categories:   store.Categories(),
			InMemory:     true,
		}
	}
	pool := pg.PoolHandle()
	return Repositories{
		Tickets:      repository.NewTicketRepository(pool),
		ActivityLogs: repository.NewActivityLogRepository(pool),
		Users:        repository.NewUserRepository(pool),
		Categories:   repository.NewCategoryRepository(pool),
	}
}

// NewDeliveryNotifier returns the channel that actually hands mail off: SMTP
// when a host is configured, the log otherwise.
func NewDeliveryNotifier(cfg config.NotificationConfig, logger *zap.Logger) (notify.Notifier, string) {
	if cfg.SMTPHost == "" {
		return notify.NewLogNotifier(logger), config.NotifyModeLog
	}
	return newSMTPNotifier(cfg, logger), config.NotifyModeSMTP
}

// NewNotifier returns the notifier services send through, instrumented with
// metrics. In queue mode messages are pushed to Redis for the worker.
func NewNotifier(cfg config.NotificationConfig, rdb *persistence.Redis, metrics *observability.Metrics, logger *zap.Logger) (notify.Notifier, error) {
	switch cfg.Mode {
	case config.NotifyModeQueue:
		if rdb == nil || rdb.Client == nil {
			return nil, fmt.Errorf("notification mode %q needs redis", cfg.Mode)
		}
		return notify.WithRecorder(notify.NewQueueNotifier(rdb.Client, cfg.QueueKey, logger), config.NotifyModeQueue, metrics), nil
	case config.NotifyModeSMTP:
		return notify.WithRecorder(newSMTPNotifier(cfg, logger), config.NotifyModeSMTP, metrics), nil
	default:
		return notify.WithRecorder(notify.NewLogNotifier(logger), config.NotifyModeLog, metrics), nil
	}
}

func newSMTPNotifier(cfg config.NotificationConfig, logger *zap.Logger) *notify.SMTPNotifier {
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Addr:     cfg.SMTPAddr(),
		Host:     cfg.SMTPHost,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
	}, logger, nil)
}

// Services bundles every domain service.
type Services struct {
	Auth         *service.AuthService
	Tickets      *service.TicketService
	Escalation   *service.EscalationService
	Analytics    *service.AnalyticsService
	Reports      *service.ReportService
	Maintenance  *service.MaintenanceService
	Admin        *service.AdminService
	Seed         *service.SeedService
	Notification *service.NotificationService
}

// NewServices constructs the services and subscribes notification handlers
// on dispatcher.
func NewServices(cfg *config.Config, repos Repositories, notifier notify.Notifier, dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *Services {
	escalation := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo:      repos.Tickets,
		ActivityLogRepo: repos.ActivityLogs,
		UserRepo:        repos.Users,
		Notifier:        notifier,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Logger:          logger,
	})
	notification := service.NewNotificationService(dispatcher, repos.Users, notifier, logger)
	notification.RegisterHandlers()

	return &Services{
		Auth: service.NewAuthService(cfg.Auth, repos.Users),
		Tickets: service.NewTicketService(service.TicketDependencies{
			TicketRepo:      repos.Tickets,
			ActivityLogRepo: repos.ActivityLogs,
			UserRepo:        repos.Users,
			CategoryRepo:    repos.Categories,
			Escalation:      escalation,
			Dispatcher:      dispatcher,
			Logger:          logger,
		}),
		Escalation: escalation,
		Analytics: service.NewAnalyticsService(service.AnalyticsDependencies{
			TicketRepo:      repos.Tickets,
			ActivityLogRepo: repos.ActivityLogs,
			UserRepo:        repos.Users,
			CategoryRepo:    repos.Categories,
			Metrics:         metrics,
			Logger:          logger,
		}),
		Reports: service.NewReportService(service.ReportDependencies{
			TicketRepo:      repos.Tickets,
			ActivityLogRepo: repos.ActivityLogs,
			UserRepo:        repos.Users,
			CategoryRepo:    repos.Categories,
		}),
		Admin: service.NewAdminService(service.AdminServiceDependencies{
			UserRepo:        repos.Users,
			CategoryRepo:    repos.Categories,
			TicketRepo:      repos.Tickets,
			ActivityLogRepo: repos.ActivityLogs,
			Logger:          logger,
		}),
		Maintenance:  service.NewMaintenanceService(repos.ActivityLogs, cfg.Retention.Retention(), metrics, logger),
		Seed:         service.NewSeedService(repos.Users, repos.Categories, cfg.Auth.BcryptCost, logger),
		Notification: notification,
	}
}

// Open connects storage per cfg, applies migrations when asked and seeds the
// in-memory store. Callers close the returned Postgres.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*persistence.Postgres, Repositories, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, Repositories{}, fmt.Errorf("connect postgres: %w", err)
	}
	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			pg.Close()
			return nil, Repositories{}, fmt.Errorf("run migrations: %w", err)
		}
	}

	repos := NewRepositories(pg)
	if !repos.InMemory {
		if err := VerifySystemActor(ctx, repos.Users, cfg.SLA.SystemActor()); err != nil {
			pg.Close()
			return nil, Repositories{}, err
		}
	}
	if repos.InMemory {
		seed := service.NewSeedService(repos.Users, repos.Categories, cfg.Auth.BcryptCost, logger)
		if _, err := seed.Seed(ctx); err != nil {
			return nil, Repositories{}, fmt.Errorf("seed memory store: %w", err)
		}
	}
	return pg, repos, nil
}

// VerifySystemActor fails when actorID names no stored user. Escalation
// entries reference their actor, so an unknown id would make every sweep
// insert fail.
func VerifySystemActor(ctx context.Context, users repository.UserRepository, actorID *string) error {
	if actorID == nil {
		return nil
	}
	if _, err := users.GetByID(ctx, *actorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("SLA_SYSTEM_ACTOR_ID %s: no such user", *actorID)
		}
		return fmt.Errorf("look up SLA system actor: %w", err)
	}
	return nil
}
