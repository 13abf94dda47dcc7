package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsupport/helpdesk/internal/domain"
)

func TestGenerateReport(t *testing.T) {
	f := newFixture(t)
	cats := seedCategories(t, f)
	now := base

	f.addTicket(t, domain.Ticket{Priority: domain.TicketPriorityHigh, CategoryID: ptr(cats["Hardware"]), CreatedAt: now.Add(-time.Hour)})
	f.addTicket(t, domain.Ticket{Status: domain.TicketStatusInProgress, CreatedAt: now.Add(-48 * time.Hour)})
	f.addTicket(t, domain.Ticket{
		Status: domain.TicketStatusResolved, CategoryID: ptr(cats["Hardware"]),
		CreatedAt: now.Add(-40 * 24 * time.Hour), UpdatedAt: now.Add(-40*24*time.Hour + 5*time.Hour),
	})
	f.addTicket(t, domain.Ticket{
		Status: domain.TicketStatusClosed, Priority: domain.TicketPriorityLow,
		CreatedAt: now.Add(-10 * 24 * time.Hour), UpdatedAt: now.Add(-10*24*time.Hour + time.Hour),
	})
	require.NoError(t, f.store.ActivityLogs().Create(context.Background(), &domain.ActivityLog{
		TicketID: "x", Action: domain.ActionCreated, Timestamp: now.Add(-time.Hour),
	}))
	require.NoError(t, f.store.ActivityLogs().Create(context.Background(), &domain.ActivityLog{
		TicketID: "x", Action: domain.ActionCreated, Timestamp: now.Add(-20 * 24 * time.Hour),
	}))

	svc := NewReportService(ReportDependencies{
		TicketRepo:      f.store.Tickets(),
		ActivityLogRepo: f.store.ActivityLogs(),
		UserRepo:        f.store.Users(),
		CategoryRepo:    f.store.Categories(),
	})
	report, err := svc.GenerateReport(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalTickets)
	assert.Equal(t, 1, report.OpenTickets, "in_progress is not open")
	assert.Equal(t, 2, report.ClosedTickets)
	assert.Equal(t, map[string]int{"low": 1, "medium": 2, "high": 1, "urgent": 0}, report.ByPriority)
	assert.Equal(t, map[string]int{"admin": 2, "technician": 1, "user": 1}, report.ByRole)
	assert.Equal(t, 4, report.TotalUsers)
	assert.Equal(t, 2, report.NewTicketsLastWeek)
	assert.Equal(t, 1, report.ActivityLastWeek)
	assert.Equal(t, 3.0, report.AvgResolutionHours)

	counts := map[string]int{}
	for _, c := range report.ByCategory {
		counts[c.Name] = c.Count
	}
	assert.Equal(t, 2, counts["Hardware"])
	assert.Len(t, report.ByCategory, 5)
}
