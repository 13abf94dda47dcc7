package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/events"
	"github.com/medsupport/helpdesk/internal/repository"
	"github.com/medsupport/helpdesk/internal/repository/memory"
)

var base = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]bool
}

func (r *recordingNotifier) Send(_ context.Context, to, subject, body string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{To: to, Subject: subject, Body: body})
	return !r.fail[to]
}

func (r *recordingNotifier) messages() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMessage(nil), r.sent...)
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

func (r *recordingNotifier) recipients() []string {
	var out []string
	for _, m := range r.messages() {
		out = append(out, m.To)
	}
	return out
}

type fixture struct {
	store      *memory.Store
	notifier   *recordingNotifier
	dispatcher events.Dispatcher
	escalation *EscalationService

	admin  *domain.User
	admin2 *domain.User
	tech   *domain.User
	user   *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      memory.NewStore(),
		notifier:   &recordingNotifier{fail: map[string]bool{}},
		dispatcher: events.NewInMemoryDispatcher(),
	}
	f.admin = f.addUser(t, "admin", "admin@example.com", domain.UserRoleAdmin)
	f.admin2 = f.addUser(t, "backup", "", domain.UserRoleAdmin)
	f.tech = f.addUser(t, "tech", "tech@example.com", domain.UserRoleTechnician)
	f.user = f.addUser(t, "user", "user@example.com", domain.UserRoleUser)
	f.escalation = f.newEscalation(f.store.ActivityLogs(), f.store.Users())
	return f
}

func (f *fixture) newEscalation(logs repository.ActivityLogRepository, users repository.UserRepository) *EscalationService {
	return NewEscalationService(EscalationDependencies{
		TicketRepo:      f.store.Tickets(),
		ActivityLogRepo: logs,
		UserRepo:        users,
		Notifier:        f.notifier,
		Dispatcher:      f.dispatcher,
	})
}

func (f *fixture) addUser(t *testing.T, username, email string, role domain.UserRole) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, Email: email, Role: role}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u
}

func (f *fixture) addTicket(t *testing.T, ticket domain.Ticket) *domain.Ticket {
	t.Helper()
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	if ticket.CreatedByID == "" {
		ticket.CreatedByID = f.user.ID
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = base
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	require.NoError(t, f.store.Tickets().Create(context.Background(), &ticket))
	return &ticket
}

func (f *fixture) escalationCount(t *testing.T, ticketID string) int {
	t.Helper()
	n, err := f.store.ActivityLogs().Count(context.Background(), repository.ActivityLogFilter{
		TicketID: &ticketID,
		Actions:  []string{domain.ActionSLAEscalated},
	})
	require.NoError(t, err)
	return n
}

type failingLogs struct {
	repository.ActivityLogRepository
	failFor string
	err     error
}

func (f failingLogs) CreateOnce(ctx context.Context, entry *domain.ActivityLog) (bool, error) {
	if f.failFor == "" || entry.TicketID == f.failFor {
		return false, f.err
	}
	return f.ActivityLogRepository.CreateOnce(ctx, entry)
}

func (f failingLogs) List(ctx context.Context, filter repository.ActivityLogFilter) ([]domain.ActivityLog, error) {
	if f.failFor == "" {
		return nil, f.err
	}
	return f.ActivityLogRepository.List(ctx, filter)
}

type failingUsers struct {
	repository.UserRepository
	err error
}

func (f failingUsers) ListByRole(context.Context, ...domain.UserRole) ([]domain.User, error) {
	return nil, f.err
}

type failingTickets struct {
	repository.TicketRepository
	err error
}

func (f failingTickets) ListWithFilter(context.Context, repository.TicketFilter) ([]domain.Ticket, error) {
	return nil, f.err
}

func ptr[T any](v T) *T {
	return &v
}
