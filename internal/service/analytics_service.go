package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medsupport/helpdesk/internal/analytics"
	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/observability"
	"github.com/medsupport/helpdesk/internal/repository"
	apperrors "github.com/medsupport/helpdesk/pkg/util/errorutil"
)

// AnalyticsService assembles the admin analytics report.
type AnalyticsService struct {
	tickets    repository.TicketRepository
	logs       repository.ActivityLogRepository
	users      repository.UserRepository
	categories repository.CategoryRepository
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// AnalyticsDependencies bundles repositories for the analytics service.
type AnalyticsDependencies struct {
	TicketRepo      repository.TicketRepository
	ActivityLogRepo repository.ActivityLogRepository
	UserRepo        repository.UserRepository
	CategoryRepo    repository.CategoryRepository
	Metrics         *observability.Metrics
	Logger          *zap.Logger
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(deps AnalyticsDependencies) *AnalyticsService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{
		tickets:    deps.TicketRepo,
		logs:       deps.ActivityLogRepo,
		users:      deps.UserRepo,
		categories: deps.CategoryRepo,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// BuildReport computes the report for the days-long window ending at now.
// days must be 7 or 30. Any load or compute failure yields a single
// ANALYTICS_FAILED error and no partial report.
func (s *AnalyticsService) BuildReport(ctx context.Context, days int, now time.Time) (*analytics.Report, error) {
	if !analytics.ValidDays(days) {
		return nil, apperrors.NewValidationError("invalid analytics window", map[string]any{
			"days":    days,
			"allowed": []int{analytics.WeekDays, analytics.MonthDays},
		})
	}

	started := time.Now()
	report, err := s.build(ctx, days, now.UTC())
	s.metrics.ObserveAnalytics(time.Since(started), err)
	if err != nil {
		s.logger.Error("analytics report failed", zap.Int("days", days), zap.Error(err))
		return nil, apperrors.NewAnalyticsFailed(err)
	}
	return report, nil
}

func (s *AnalyticsService) build(ctx context.Context, days int, now time.Time) (*analytics.Report, error) {
	start := analytics.WindowStart(now, days)

	created, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{CreatedFrom: &start})
	if err != nil {
		return nil, fmt.Errorf("load created tickets: %w", err)
	}
	resolved, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:    []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed},
		UpdatedFrom: &start,
	})
	if err != nil {
		return nil, fmt.Errorf("load resolved tickets: %w", err)
	}
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	users, err := s.users.ListByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	escalations, err := s.logs.List(ctx, repository.ActivityLogFilter{
		Actions: []string{domain.ActionSLAEscalated},
		From:    &start,
	})
	if err != nil {
		return nil, fmt.Errorf("load escalation logs: %w", err)
	}

	usernames := make(map[string]string, len(users))
	for _, u := range users {
		usernames[u.ID] = u.Username
	}

	return analytics.Build(analytics.Input{
		Days:           days,
		Now:            now,
		Created:        created,
		Resolved:       resolved,
		Categories:     categories,
		Usernames:      usernames,
		EscalationLogs: escalations,
	})
}
