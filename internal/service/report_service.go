package service

import (
	"context"
	"fmt"
	"time"

	"github.com/medsupport/helpdesk/internal/analytics"
	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/repository"
)

// SystemReport is the all-time overview shown to administrators.
type SystemReport struct {
	GeneratedAt        time.Time                 `json:"generated_at"`
	TotalTickets       int                       `json:"total_tickets"`
	OpenTickets        int                       `json:"open_tickets"`
	ClosedTickets      int                       `json:"closed_tickets"`
	ByPriority         map[string]int            `json:"by_priority"`
	ByRole             map[string]int            `json:"users_by_role"`
	TotalUsers         int                       `json:"total_users"`
	NewTicketsLastWeek int                       `json:"new_tickets_last_week"`
	ActivityLastWeek   int                       `json:"activity_last_week"`
	ByCategory         []analytics.CategoryCount `json:"by_category"`
	AvgResolutionHours float64                   `json:"avg_resolution_hours"`
}

// ReportService builds the system overview report.
type ReportService struct {
	tickets    repository.TicketRepository
	logs       repository.ActivityLogRepository
	users      repository.UserRepository
	categories repository.CategoryRepository
}

// ReportDependencies bundles repositories for the report service.
type ReportDependencies struct {
	TicketRepo      repository.TicketRepository
	ActivityLogRepo repository.ActivityLogRepository
	UserRepo        repository.UserRepository
	CategoryRepo    repository.CategoryRepository
}

// NewReportService constructs the service.
func NewReportService(deps ReportDependencies) *ReportService {
	return &ReportService{
		tickets:    deps.TicketRepo,
		logs:       deps.ActivityLogRepo,
		users:      deps.UserRepo,
		categories: deps.CategoryRepo,
	}
}

// GenerateReport summarises the whole system as of now.
func (s *ReportService) GenerateReport(ctx context.Context, now time.Time) (*SystemReport, error) {
	now = now.UTC()
	weekAgo := now.Add(-7 * 24 * time.Hour)

	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{})
	if err != nil {
		return nil, fmt.Errorf("load tickets: %w", err)
	}
	users, err := s.users.ListByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	activity, err := s.logs.Count(ctx, repository.ActivityLogFilter{From: &weekAgo})
	if err != nil {
		return nil, fmt.Errorf("count activity: %w", err)
	}

	report := &SystemReport{
		GeneratedAt:      now,
		TotalTickets:     len(tickets),
		ByPriority:       map[string]int{},
		ByRole:           map[string]int{},
		TotalUsers:       len(users),
		ActivityLastWeek: activity,
		ByCategory:       make([]analytics.CategoryCount, 0, len(categories)),
	}
	for _, p := range []domain.TicketPriority{domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityUrgent} {
		report.ByPriority[string(p)] = 0
	}
	for _, r := range []domain.UserRole{domain.UserRoleAdmin, domain.UserRoleTechnician, domain.UserRoleUser} {
		report.ByRole[string(r)] = 0
	}

	perCategory := map[string]int{}
	var resolvedHours float64
	var resolvedCount int
	for _, t := range tickets {
		if t.Status == domain.TicketStatusOpen {
			report.OpenTickets++
		}
		if t.Status.Done() {
			report.ClosedTickets++
			resolvedHours += analytics.ResolutionHours(t)
			resolvedCount++
		}
		report.ByPriority[string(t.Priority)]++
		if !t.CreatedAt.Before(weekAgo) {
			report.NewTicketsLastWeek++
		}
		if t.CategoryID != nil {
			perCategory[*t.CategoryID]++
		}
	}
	for _, u := range users {
		report.ByRole[string(u.Role)]++
	}
	for _, c := range categories {
		report.ByCategory = append(report.ByCategory, analytics.CategoryCount{Name: c.Name, Count: perCategory[c.ID]})
	}
	if resolvedCount > 0 {
		report.AvgResolutionHours = roundHours(resolvedHours / float64(resolvedCount))
	}
	return report, nil
}
