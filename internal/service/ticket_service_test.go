package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsupport/helpdesk/internal/domain"
	apperrors "github.com/medsupport/helpdesk/pkg/util/errorutil"
)

func newTicketService(f *fixture) *TicketService {
	NewNotificationService(f.dispatcher, f.store.Users(), f.notifier, nil).RegisterHandlers()
	return NewTicketService(TicketDependencies{
		TicketRepo:      f.store.Tickets(),
		ActivityLogRepo: f.store.ActivityLogs(),
		UserRepo:        f.store.Users(),
		CategoryRepo:    f.store.Categories(),
		Escalation:      f.escalation,
		Dispatcher:      f.dispatcher,
	})
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	return de.Code
}

func TestCreateTicket(t *testing.T) {
	f := newFixture(t)
	svc := newTicketService(f)

	ticket, err := svc.CreateTicket(context.Background(), f.user, TicketCreateInput{
		Title:       "  VPN drops  ",
		Description: "every hour",
	}, base)
	require.NoError(t, err)

	assert.Equal(t, "VPN drops", ticket.Title)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, base, ticket.CreatedAt)

	logs, err := f.store.ActivityLogs().ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ActionCreated, logs[0].Action)
	assert.Equal(t, "Ticket created by user", logs[0].Description)

	assert.ElementsMatch(t, []string{"admin@example.com", "tech@example.com"}, f.notifier.recipients())
	for _, m := range f.notifier.messages() {
		assert.Equal(t, "New Ticket Created: VPN drops", m.Subject)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	svc := newTicketService(f)

	_, err := svc.CreateTicket(context.Background(), f.user, TicketCreateInput{Title: " "}, base)
	assert.Equal(t, "VALIDATION_FAILED", domainCode(t, err))

	_, err = svc.CreateTicket(context.Background(), f.user, TicketCreateInput{Title: "x", Priority: "critical"}, base)
	assert.Equal(t, "VALIDATION_FAILED", domainCode(t, err))

	_, err = svc.CreateTicket(context.Background(), f.user, TicketCreateInput{Title: "x", CategoryID: ptr("nope")}, base)
	assert.Equal(t, "VALIDATION_FAILED", domainCode(t, err))
}

func TestListTicketsScopesByRole(t *testing.T) {
	f := newFixture(t)
	svc := newTicketService(f)
	other := f.addUser(t, "other", "other@example.com", domain.UserRoleUser)
	tech2 := f.addUser(t, "tech2", "tech2@example.com", domain.UserRoleTechnician)

	mine := f.addTicket(t, domain.Ticket{CreatedByID: f.user.ID, Priority: domain.TicketPriorityLow})
	assigned := f.addTicket(t, domain.Ticket{CreatedByID: other.ID, AssigneeID: ptr(f.tech.ID), Status: domain.TicketStatusResolved, CreatedAt: base.Add(time.Minute)})
	elsewhere := f.addTicket(t, domain.Ticket{CreatedByID: other.ID, AssigneeID: ptr(tech2.ID), CreatedAt: base.Add(2 * time.Minute)})

	now := base.Add(time.Hour)
	ids := func(views []TicketView) []string {
		out := make([]string, len(views))
		for i, v := range views {
			out[i] = v.Ticket.ID
		}
		return out
	}

	adminViews, stats, err := svc.ListTickets(context.Background(), f.admin, TicketListFilter{}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{elsewhere.ID, assigned.ID, mine.ID}, ids(adminViews))
	assert.Equal(t, DashboardStats{Total: 3, Open: 2, Closed: 1}, stats)

	techViews, stats, err := svc.ListTickets(context.Background(), f.tech, TicketListFilter{}, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{mine.ID, assigned.ID}, ids(techViews))
	assert.Equal(t, 2, stats.Total)

	userViews, stats, err := svc.ListTickets(context.Background(), f.user, TicketListFilter{}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, ids(userViews))
	assert.Equal(t, DashboardStats{Total: 1, Open: 1}, stats)
	assert.Equal(t, 72, userViews[0].SLA.SLAHours)
	assert.Equal(t, int64(71*3600), userViews[0].SLA.RemainingSeconds)
}

func TestListTicketsEscalatesBreachedTickets(t *testing.T) {
	f := newFixture(t)
	svc := newTicketService(f)
	ticket := f.addTicket(t, domain.Ticket{Priority: domain.TicketPriorityUrgent})

	views, _, err := svc.ListTickets(context.Background(), f.admin, TicketListFilter{}, base.Add(9*time.Hour))
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].SLA.IsBreached)
	assert.Equal(t, 1, f.escalationCount(t, ticket.ID))

	_, _, err = svc.ListTickets(context.Background(), f.admin, TicketListFilter{}, base.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, f.escalationCount(t, ticket.ID), "viewing again does not escalate twice")
}

func TestGetTicketAccessAndActivityOrder(t *testing.T) {
	f := newFixture(t)
	svc := newTicketService(f)
	ticket, err := svc.CreateTicket(context.Background(), f.user, TicketCreateInput{Title: "Mouse"}, base)
	require.NoError(t, err)
	_, err = svc.UpdateTicket(context.Background(), f.tech, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusInProgress)}, base.Add(time.Hour))
	require.NoError(t, err)

	detail, err := svc.GetTicket(context.Background(), f.user, ticket.ID, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, detail.Activity, 2)
	assert.Equal(t, domain.ActionStatusChanged, detail.Activity[0].Action, "newest first")
	assert.Equal(t, domain.ActionCreated, detail.Activity[1].Action)

	stranger := f.addUser(t, "stranger", "s@example.com", domain.UserRoleUser)
	_, err = svc.GetTicket(context.Background(), stranger, ticket.ID, base)
	assert.Equal(t, "FORBIDDEN", domainCode(t, err))

	_, err = svc.GetTicket(context.Background(), f.tech, "missing", base)
	assert.Equal(t, "NOT_FOUND", domainCode(t, err))
}

func TestUpdateTicketLogsAndNotifies(t *testing.T) {
	f := newFixture(t)
	svc := newTicketService(f)
	ticket, err := svc.CreateTicket(context.Background(), f.user, TicketCreateInput{Title: "Laptop"}, base)
	require.NoError(t, err)
	f.notifier.reset()

	now := base.Add(time.Hour)
	updated, err := svc.UpdateTicket(context.Background(), f.admin, ticket.ID, TicketUpdateInput{
		Status:      ptr(domain.TicketStatusInProgress),
		Priority:    ptr(domain.TicketPriorityHigh),
		SetAssignee: true,
		AssigneeID:  ptr(f.tech.ID),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, now, updated.UpdatedAt)

	logs, err := f.store.ActivityLogs().ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	var actions []string
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Equal(t, []string{
		domain.ActionCreated,
		domain.ActionStatusChanged,
		domain.ActionAssignmentChanged,
		domain.ActionPriorityChanged,
	}, actions)
	assert.Equal(t, "Ticket assigned to tech by admin", logs[2].Description)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "user@example.com", msgs[0].To)
	assert.Equal(t, "Ticket Updated: Laptop", msgs[0].Subject)
	assert.Contains(t, msgs[0].Body, "Status changed from open to in_progress")
	assert.Equal(t, "tech@example.com", msgs[1].To)
	assert.Equal(t, "Ticket Assigned: Laptop", msgs[1].Subject)
}

func TestUpdateTicketNoChangesIsNoop(t *testing.T) {
	f := newFixture(t)
	svc := newTicketService(f)
	ticket := f.addTicket(t, domain.Ticket{})

	updated, err := svc.UpdateTicket(context.Background(), f.tech, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusOpen)}, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, base, updated.UpdatedAt)
	assert.Empty(t, f.notifier.messages())
}

func TestUpdateTicketPermissions(t *testing.T) {
	f := newFixture(t)
	svc := newTicketService(f)
	ticket := f.addTicket(t, domain.Ticket{CreatedByID: f.user.ID})

	_, err := svc.UpdateTicket(context.Background(), f.user, ticket.ID, TicketUpdateInput{Priority: ptr(domain.TicketPriorityUrgent)}, base)
	assert.Equal(t, "FORBIDDEN", domainCode(t, err))

	closed, err := svc.UpdateTicket(context.Background(), f.user, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusClosed)}, base)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)

	_, err = svc.UpdateTicket(context.Background(), f.admin, ticket.ID, TicketUpdateInput{SetAssignee: true, AssigneeID: ptr(f.user.ID)}, base)
	assert.Equal(t, "VALIDATION_FAILED", domainCode(t, err), "only staff can be assignees")

	_, err = svc.UpdateTicket(context.Background(), f.admin, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatus("paused"))}, base)
	assert.Equal(t, "VALIDATION_FAILED", domainCode(t, err))
}

func TestUpdateTicketUnassign(t *testing.T) {
	f := newFixture(t)
	svc := newTicketService(f)
	ticket := f.addTicket(t, domain.Ticket{AssigneeID: ptr(f.tech.ID)})

	updated, err := svc.UpdateTicket(context.Background(), f.admin, ticket.ID, TicketUpdateInput{SetAssignee: true}, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, updated.AssigneeID)

	logs, err := f.store.ActivityLogs().ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Ticket assigned to Unassigned by admin", logs[0].Description)
}

func TestAddCommentNotifiesCreatorAndAssigneeOnce(t *testing.T) {
	f := newFixture(t)
	svc := newTicketService(f)
	ctx := context.Background()

	shared := f.addUser(t, "deskside", "user@example.com", domain.UserRoleTechnician)
	ticket := f.addTicket(t, domain.Ticket{Title: "Laptop fan", AssigneeID: &shared.ID})

	entry, err := svc.AddComment(ctx, f.admin, ticket.ID, " ordered a replacement ", base)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCommentAdded, entry.Action)
	assert.Equal(t, "admin: ordered a replacement", entry.Description)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, f.admin.ID, *entry.UserID)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 1, "creator and assignee share an address")
	assert.Equal(t, "user@example.com", msgs[0].To)
	assert.Equal(t, "New Comment on Ticket: Laptop fan", msgs[0].Subject)
	assert.Contains(t, msgs[0].Body, "Comment by admin: ordered a replacement")

	f.notifier.reset()
	_, err = svc.AddComment(ctx, f.user, ticket.ID, "thanks", base)
	require.NoError(t, err)
	assert.Equal(t, []string{"user@example.com"}, f.notifier.recipients(), "assignee only")

	logs, err := f.store.ActivityLogs().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestAddCommentValidation(t *testing.T) {
	f := newFixture(t)
	svc := newTicketService(f)
	ctx := context.Background()
	ticket := f.addTicket(t, domain.Ticket{Title: "Monitor", CreatedByID: f.tech.ID})

	_, err := svc.AddComment(ctx, f.user, ticket.ID, "hello", base)
	assert.Equal(t, "FORBIDDEN", domainCode(t, err))

	_, err = svc.AddComment(ctx, f.tech, ticket.ID, "  ", base)
	assert.Equal(t, "VALIDATION_FAILED", domainCode(t, err))

	_, err = svc.AddComment(ctx, f.tech, ticket.ID, strings.Repeat("x", maxCommentLength+1), base)
	assert.Equal(t, "VALIDATION_FAILED", domainCode(t, err))

	_, err = svc.AddComment(ctx, f.tech, "missing", "hello", base)
	assert.Equal(t, "NOT_FOUND", domainCode(t, err))

	assert.Empty(t, f.notifier.messages())
}
